package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/auth/config"
	"github.com/iurnickita/kiosk/internal/directory"
	"github.com/iurnickita/kiosk/internal/model"
)

const testSecret = "test-secret"

func testAuth() Auth {
	users := directory.New([]model.User{{ID: "100001", Username: "alice"}}, nil)
	return NewAuth(config.Config{Secret: testSecret, TokenTTL: time.Hour}, users, zap.NewNop())
}

func TestToken(t *testing.T) {
	now := time.Now()
	token, err := BuildToken("100001", testSecret, time.Hour, now)
	require.NoError(t, err)

	userID, err := GetUserID(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "100001", userID)

	_, err = GetUserID(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := BuildToken("100001", testSecret, time.Hour, now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = GetUserID(expired, testSecret)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = BuildToken("100001", "", time.Hour, now)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestTokenRejectsForeignIssuer(t *testing.T) {
	claims := Claims{
		UserID: "100001",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = GetUserID(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginAndMiddleware(t *testing.T) {
	a := testAuth()

	w := httptest.NewRecorder()
	a.Login(w, httptest.NewRequest(http.MethodPost, "/api/user/login", strings.NewReader(`{"username":"alice"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	var gotUser string
	protected := a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get(UserIDKey)
	})

	r := httptest.NewRequest(http.MethodGet, "/api/user/account", nil)
	r.AddCookie(cookies[0])
	r.Header.Set(UserIDKey, "999999")
	w = httptest.NewRecorder()
	protected(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100001", gotUser)

	w = httptest.NewRecorder()
	protected(w, httptest.NewRequest(http.MethodGet, "/api/user/account", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRejects(t *testing.T) {
	a := testAuth()

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "unknown user", body: `{"username":"mallory"}`, code: http.StatusUnauthorized},
		{name: "empty username", body: `{"username":""}`, code: http.StatusBadRequest},
		{name: "bad json", body: `{`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			a.Login(w, httptest.NewRequest(http.MethodPost, "/api/user/login", strings.NewReader(tt.body)))
			assert.Equal(t, tt.code, w.Code)
			assert.Empty(t, w.Result().Cookies())
		})
	}
}
