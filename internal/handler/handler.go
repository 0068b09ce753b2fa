package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/auth"
	"github.com/iurnickita/kiosk/internal/handler/config"
	"github.com/iurnickita/kiosk/internal/logger"
	"github.com/iurnickita/kiosk/internal/model"
	"github.com/iurnickita/kiosk/internal/notify"
	"github.com/iurnickita/kiosk/internal/service"
)

const maxBodyBytes = 1 << 16

// Serve обслуживает API до отмены ctx, затем дает текущим запросам завершиться.
func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, service, zaplog)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           logger.RequestLogMdlw(h.newRouter(), zaplog),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type handler struct {
	auth     auth.Auth
	service  service.Service
	validate *validator.Validate
	zaplog   *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		auth:     auth,
		service:  service,
		validate: validator.New(),
		zaplog:   zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/user/login", h.auth.Login)
	mux.HandleFunc("GET /api/user/account", h.auth.Middleware(h.GetAccount))
	mux.HandleFunc("GET /api/user/bookings/{id}", h.auth.Middleware(h.GetBooking))
	mux.HandleFunc("POST /api/user/purchase", h.auth.Middleware(h.PostPurchase))
	mux.HandleFunc("POST /api/user/reverse", h.auth.Middleware(h.PostReverse))
	mux.HandleFunc("POST /api/user/sendmoney", h.auth.Middleware(h.PostSendMoney))

	mux.HandleFunc("POST /api/kiosk/deposit", h.auth.Middleware(h.PostDeposit))
	mux.HandleFunc("POST /api/kiosk/withdraw", h.auth.Middleware(h.PostWithdraw))
	mux.HandleFunc("POST /api/kiosk/initialize", h.auth.Middleware(h.PostInitialize))
	mux.HandleFunc("POST /api/kiosk/restock", h.auth.Middleware(h.PostRestock))
	mux.HandleFunc("POST /api/kiosk/tally", h.auth.Middleware(h.PostTally))
	mux.HandleFunc("POST /api/kiosk/archive", h.auth.Middleware(h.PostArchive))
	mux.HandleFunc("GET /api/kiosk/stock", h.auth.Middleware(h.GetStock))
	mux.HandleFunc("GET /api/kiosk/overview", h.auth.Middleware(h.GetOverview))
	mux.HandleFunc("GET /api/kiosk/dangling", h.auth.Middleware(h.GetDangling))

	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type ReceiptJSONResponse struct {
	Booking    model.Booking `json:"booking"`
	Balance    int64         `json:"balance"`
	BalanceCHF string        `json:"balance_chf"`
}

func receiptResponse(receipt model.Receipt) ReceiptJSONResponse {
	return ReceiptJSONResponse{
		Booking:    receipt.Booking,
		Balance:    receipt.Balance,
		BalanceCHF: notify.FormatMoney(receipt.Balance),
	}
}

func (h *handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(auth.UserIDKey)

	view, err := h.service.Account(userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(auth.UserIDKey)

	booking, err := h.service.Booking(userID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, booking)
}

type PostPurchaseJSONRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

func (h *handler) PostPurchase(w http.ResponseWriter, r *http.Request) {
	var req PostPurchaseJSONRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID := r.Header.Get(auth.UserIDKey)

	receipt, err := h.service.Purchase(r.Context(), userID, req.ItemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, receiptResponse(receipt))
}

// UserID пустой - сторно собственной проводки.
type PostReverseJSONRequest struct {
	UserID    string `json:"user_id"`
	BookingID string `json:"booking_id" validate:"required"`
}

func (h *handler) PostReverse(w http.ResponseWriter, r *http.Request) {
	var req PostReverseJSONRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = r.Header.Get(auth.UserIDKey)
	}

	receipt, err := h.service.Reverse(r.Context(), userID, req.BookingID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, receiptResponse(receipt))
}

type PostSendMoneyJSONRequest struct {
	Recipient string  `json:"recipient" validate:"required"`
	Amount    float64 `json:"amount" validate:"gt=0,lte=1000000"`
	Remark    string  `json:"remark" validate:"max=256"`
}

func (h *handler) PostSendMoney(w http.ResponseWriter, r *http.Request) {
	var req PostSendMoneyJSONRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.service.SendMoney(r.Context(), service.SendMoneyCommand{
		Sender:    r.Header.Get(auth.UserIDKey),
		Recipient: req.Recipient,
		Amount:    centsInput(req.Amount),
		Remark:    req.Remark,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	// зачисление получателю еще в работе
	h.writeJSON(w, http.StatusAccepted, receiptResponse(receipt))
}

type CashJSONRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Amount float64 `json:"amount" validate:"gte=0,lte=1000000"`
}

func (h *handler) PostDeposit(w http.ResponseWriter, r *http.Request) {
	h.cash(w, r, h.service.Deposit)
}

func (h *handler) PostWithdraw(w http.ResponseWriter, r *http.Request) {
	h.cash(w, r, h.service.Withdraw)
}

type cashAction func(ctx context.Context, actorID string, userID string, amount int64) (model.Receipt, error)

func (h *handler) cash(w http.ResponseWriter, r *http.Request, action cashAction) {
	var req CashJSONRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := action(r.Context(), r.Header.Get(auth.UserIDKey), req.UserID, centsInput(req.Amount))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, receiptResponse(receipt))
}

// начальный баланс может быть отрицательным
type PostInitializeJSONRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Amount float64 `json:"amount" validate:"gte=-1000000,lte=1000000"`
}

func (h *handler) PostInitialize(w http.ResponseWriter, r *http.Request) {
	var req PostInitializeJSONRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.service.Initialize(r.Context(), r.Header.Get(auth.UserIDKey), req.UserID, centsInput(req.Amount))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, receiptResponse(receipt))
}

type PostRestockJSONRequest struct {
	ItemID      string  `json:"item_id"`
	Amount      float64 `json:"amount" validate:"gte=0,lte=1000000"`
	Quantity    int64   `json:"quantity" validate:"gte=0"`
	Description string  `json:"description" validate:"required_without=ItemID,max=256"`
}

func (h *handler) PostRestock(w http.ResponseWriter, r *http.Request) {
	var req PostRestockJSONRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.service.Restock(r.Context(), service.RestockCommand{
		ActorID:     r.Header.Get(auth.UserIDKey),
		ItemID:      req.ItemID,
		Amount:      centsInput(req.Amount),
		Quantity:    req.Quantity,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, receiptResponse(receipt))
}

type TallyEntryJSON struct {
	ItemID string `json:"item_id" validate:"required"`
	Marks  int64  `json:"marks" validate:"gte=0"`
}

type PostTallyJSONRequest struct {
	UserID  string           `json:"user_id" validate:"required"`
	Entries []TallyEntryJSON `json:"entries" validate:"required,min=1,dive"`
}

type TallyOutcomeJSON struct {
	ItemID     string         `json:"item_id"`
	Marks      int64          `json:"marks"`
	Skipped    bool           `json:"skipped,omitempty"`
	Booking    *model.Booking `json:"booking,omitempty"`
	Error      string         `json:"error,omitempty"`
	StockError string         `json:"stock_error,omitempty"`
}

type PostTallyJSONResponse struct {
	Outcomes    []TallyOutcomeJSON `json:"outcomes"`
	Balance     int64              `json:"balance"`
	BalanceCHF  string             `json:"balance_chf"`
	Total       int64              `json:"total"`
	Description string             `json:"description"`
}

func (h *handler) PostTally(w http.ResponseWriter, r *http.Request) {
	var req PostTallyJSONRequest
	if !h.decode(w, r, &req) {
		return
	}

	cmd := service.TallyCommand{
		ActorID: r.Header.Get(auth.UserIDKey),
		UserID:  req.UserID,
		Entries: make([]service.TallyEntry, len(req.Entries)),
	}
	for i, entry := range req.Entries {
		cmd.Entries[i] = service.TallyEntry{ItemID: entry.ItemID, Marks: entry.Marks}
	}

	result, err := h.service.TallyCarryOver(r.Context(), cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := PostTallyJSONResponse{
		Outcomes:    make([]TallyOutcomeJSON, len(result.Outcomes)),
		Balance:     result.Balance,
		BalanceCHF:  notify.FormatMoney(result.Balance),
		Total:       result.Total,
		Description: result.Description,
	}
	for i, outcome := range result.Outcomes {
		out := TallyOutcomeJSON{ItemID: outcome.ItemID, Marks: outcome.Marks, Skipped: outcome.Skipped}
		if outcome.Err != nil {
			out.Error = outcome.Err.Error()
		} else if !outcome.Skipped {
			booking := outcome.Receipt.Booking
			out.Booking = &booking
		}
		if outcome.StockErr != nil {
			out.StockError = outcome.StockErr.Error()
		}
		resp.Outcomes[i] = out
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type ArchiveOutcomeJSON struct {
	UserID   string `json:"user_id"`
	Archived bool   `json:"archived"`
	Balance  int64  `json:"balance"`
	Error    string `json:"error,omitempty"`
}

// PostArchive - ручной запуск месячной архивации.
func (h *handler) PostArchive(w http.ResponseWriter, r *http.Request) {
	outcomes := h.service.ArchiveAll(r.Context())

	resp := make([]ArchiveOutcomeJSON, 0, len(outcomes))
	for _, outcome := range outcomes {
		out := ArchiveOutcomeJSON{UserID: outcome.UserID, Archived: outcome.Archived, Balance: outcome.Receipt.Balance}
		if outcome.Err != nil {
			out.Error = outcome.Err.Error()
		}
		resp = append(resp, out)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) GetStock(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.StockInfo())
}

func (h *handler) GetOverview(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Overview())
}

func (h *handler) GetDangling(w http.ResponseWriter, _ *http.Request) {
	transfers := h.service.DanglingTransfers()
	if len(transfers) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, transfers)
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(responseJSON)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.zaplog.Error("request failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// centsInput переводит франки из запроса в сантимы. Диапазон суммы
// ограничен тегами validate, до перевода в int64.
func centsInput(chf float64) int64 {
	return int64(math.Round(chf * 100))
}
