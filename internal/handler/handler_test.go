package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/auth"
	"github.com/iurnickita/kiosk/internal/directory"
	"github.com/iurnickita/kiosk/internal/ledger"
	"github.com/iurnickita/kiosk/internal/mocks"
	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/service"
	"github.com/iurnickita/kiosk/internal/service/config"
)

// stubAuth пропускает запрос от имени пользователя из заголовка X-Test-User.
type stubAuth struct{}

func (stubAuth) Login(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (stubAuth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-Test-User")
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		r.Header.Set(auth.UserIDKey, userID)
		h(w, r)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, service.Service) {
	t.Helper()
	dir := directory.New(
		[]model.User{
			{ID: "100001", Username: "alice", DisplayName: "Alice"},
			{ID: "100002", Username: "bob", DisplayName: "Bob"},
		},
		[]model.Item{
			{ID: "coffee", Name: "Coffee", Price: 150, Ration: 1, Buyable: true, Stockable: true, Unit: "pcs"},
			{ID: "mate", Name: "Mate", Price: 300, Buyable: true},
		},
	)
	svc := service.NewService(config.Config{BackgroundTimeout: time.Second},
		ledger.NewRegistry(mocks.NewAcceptingStore()), dir, dir,
		mocks.NewAcceptingSender(), mocks.NewAcceptingPublisher(), zap.NewNop())

	h := newHandler(stubAuth{}, svc, zap.NewNop())
	srv := httptest.NewServer(h.newRouter())
	t.Cleanup(func() {
		srv.Close()
		svc.Wait()
	})
	return srv, svc
}

func do(t *testing.T, srv *httptest.Server, method, path, userID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPurchaseAndAccount(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, http.MethodPost, "/api/user/purchase", "100001", `{"item_id":"coffee"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var receipt ReceiptJSONResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&receipt))
	assert.Equal(t, int64(-150), receipt.Balance)
	assert.Equal(t, "-1.50", receipt.BalanceCHF)

	resp = do(t, srv, http.MethodGet, "/api/user/account", "100001", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view service.AccountView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, int64(-150), view.Balance)
	require.Len(t, view.Bookings, 1)

	resp = do(t, srv, http.MethodGet, "/api/user/bookings/"+receipt.Booking.ID, "100001", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/api/user/bookings/missing", "100001", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		code   int
	}{
		{name: "no auth", method: http.MethodGet, path: "/api/user/account", code: http.StatusUnauthorized},
		{name: "unknown item", method: http.MethodPost, path: "/api/user/purchase", user: "100001", body: `{"item_id":"tea"}`, code: http.StatusNotFound},
		{name: "missing item", method: http.MethodPost, path: "/api/user/purchase", user: "100001", body: `{}`, code: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/api/user/purchase", user: "100001", body: `{"item":"coffee"}`, code: http.StatusBadRequest},
		{name: "self transfer", method: http.MethodPost, path: "/api/user/sendmoney", user: "100001", body: `{"recipient":"100001","amount":1}`, code: http.StatusBadRequest},
		{name: "zero transfer", method: http.MethodPost, path: "/api/user/sendmoney", user: "100001", body: `{"recipient":"100002","amount":0}`, code: http.StatusBadRequest},
		{name: "negative deposit", method: http.MethodPost, path: "/api/kiosk/deposit", user: "100002", body: `{"user_id":"100001","amount":-5}`, code: http.StatusBadRequest},
		{name: "unknown user", method: http.MethodPost, path: "/api/kiosk/deposit", user: "100002", body: `{"user_id":"999999","amount":5}`, code: http.StatusNotFound},
		{name: "huge deposit", method: http.MethodPost, path: "/api/kiosk/deposit", user: "100002", body: `{"user_id":"100001","amount":1e300}`, code: http.StatusBadRequest},
		{name: "huge transfer", method: http.MethodPost, path: "/api/user/sendmoney", user: "100001", body: `{"recipient":"100002","amount":1e19}`, code: http.StatusBadRequest},
		{name: "huge initialize", method: http.MethodPost, path: "/api/kiosk/initialize", user: "100002", body: `{"user_id":"100001","amount":-1e300}`, code: http.StatusBadRequest},
		{name: "negative marks", method: http.MethodPost, path: "/api/kiosk/tally", user: "100002", body: `{"user_id":"100001","entries":[{"item_id":"coffee","marks":-1}]}`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestSendMoneyAccepted(t *testing.T) {
	srv, svc := newTestServer(t)

	resp := do(t, srv, http.MethodPost, "/api/user/sendmoney", "100001", `{"recipient":"100002","amount":2.5,"remark":"coffee"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	svc.Wait()

	view, err := svc.Account("100002")
	require.NoError(t, err)
	assert.Equal(t, int64(250), view.Balance)

	resp = do(t, srv, http.MethodGet, "/api/kiosk/dangling", "100001", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTally(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"user_id":"100001","entries":[{"item_id":"coffee","marks":3},{"item_id":"mate","marks":0}]}`
	resp := do(t, srv, http.MethodPost, "/api/kiosk/tally", "100002", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result PostTallyJSONResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Outcomes, 2)
	require.NotNil(t, result.Outcomes[0].Booking)
	assert.Equal(t, "3 x Coffee", result.Outcomes[0].Booking.Name)
	assert.True(t, result.Outcomes[1].Skipped)
	assert.Equal(t, int64(-450), result.Balance)
	assert.Equal(t, "3 x Coffee", result.Description)

	resp = do(t, srv, http.MethodGet, "/api/kiosk/stock", "100002", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stock []service.StockView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stock))
	require.Len(t, stock, 1)
	assert.Equal(t, int64(-3), stock[0].Info.Quantity)
}

func TestArchiveAndOverview(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, srv, http.MethodPost, "/api/kiosk/deposit", "100002", `{"user_id":"100001","amount":20}`)
	do(t, srv, http.MethodPost, "/api/user/purchase", "100001", `{"item_id":"mate"}`)

	resp := do(t, srv, http.MethodPost, "/api/kiosk/archive", "100002", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var outcomes []ArchiveOutcomeJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcomes))
	require.NotEmpty(t, outcomes)
	assert.Equal(t, "100001", outcomes[0].UserID)
	assert.True(t, outcomes[0].Archived)
	assert.Equal(t, int64(1700), outcomes[0].Balance)

	resp = do(t, srv, http.MethodGet, "/api/kiosk/overview", "100002", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var overview service.Overview
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&overview))
	assert.Equal(t, int64(1700), overview.Total)
}

func TestCentsInput(t *testing.T) {
	assert.Equal(t, int64(1050), centsInput(10.5))
	assert.Equal(t, int64(30), centsInput(0.3))
	assert.Equal(t, int64(-1), centsInput(-0.01))
}
