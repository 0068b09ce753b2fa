package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/auth/config"
	"github.com/iurnickita/kiosk/internal/directory"
)

type Auth interface {
	Login(w http.ResponseWriter, r *http.Request)
	Middleware(h http.HandlerFunc) http.HandlerFunc
}

const (
	// UserIDKey - заголовок, в который middleware кладет проверенного пользователя.
	UserIDKey         = "X-Kiosk-User"
	cookieUserToken   = "kioskUserToken"
	defaultTokenTTL   = 30 * 24 * time.Hour
	maxLoginBodyBytes = 1 << 10
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

type auth struct {
	cfg      config.Config
	users    directory.Users
	validate *validator.Validate
	zaplog   *zap.Logger
	now      func() time.Time
}

func NewAuth(cfg config.Config, users directory.Users, zaplog *zap.Logger) Auth {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &auth{
		cfg:      cfg,
		users:    users,
		validate: validator.New(),
		zaplog:   zaplog,
		now:      time.Now,
	}
}

// Login выдает токен известному пользователю справочника. Паролей нет:
// киоск доверяет тому, кто знает имя.
func (a *auth) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, err := a.findUser(req.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	now := a.now()
	token, err := BuildToken(userID, a.cfg.Secret, a.cfg.TokenTTL, now)
	if err != nil {
		a.zaplog.Error("failed to build auth token", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieUserToken,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(a.cfg.TokenTTL),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusOK)
}

func (a *auth) findUser(username string) (string, error) {
	for id, u := range a.users.Users() {
		if u.Username == username {
			return id, nil
		}
	}
	return "", ErrUnknownAccount
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// получение id пользователя
		userID, err := a.getUserID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// записываем поверх того, что мог прислать клиент
		r.Header.Set(UserIDKey, userID)

		h.ServeHTTP(w, r)
	}
}

func (a *auth) getUserID(r *http.Request) (string, error) {
	tokenCookie, err := r.Cookie(cookieUserToken)
	if err != nil {
		return "", err
	}
	userID, err := GetUserID(tokenCookie.Value, a.cfg.Secret)
	if err != nil {
		return "", err
	}
	// пользователь мог быть удален из справочника после выдачи токена
	if _, err := a.users.User(userID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return "", ErrUnknownAccount
		}
		return "", err
	}
	return userID, nil
}
