package logger

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/kiosk/internal/logger/config"
	"github.com/iurnickita/kiosk/internal/metrics"
)

func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	// преобразуем текстовый уровень логирования в zap.AtomicLevel
	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	zl, err := zapcfg.Build()
	if err != nil {
		return nil, err
	}
	return zl, nil
}

// RequestLogMdlw логирует входящие HTTP-запросы и пишет метрики.
// Тело запроса не логируется: в нем суммы и идентификаторы пользователей.
func RequestLogMdlw(h http.Handler, zaplog *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wl := NewResponseWriterLogger(w)

		handlerStart := time.Now()
		h.ServeHTTP(wl, r)
		handlerDuration := time.Since(handlerStart)

		status := strconv.Itoa(wl.statusCode)
		metrics.RecordHTTPRequest(r.Method, routePattern(r), status, handlerDuration.Seconds())

		zaplog.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", status),
			zap.Int("length", wl.length),
			zap.Duration("duration", handlerDuration),
		)
	})
}

// routePattern - шаблон маршрута вместо пути, чтобы метки метрик не росли.
func routePattern(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
}

func NewResponseWriterLogger(w http.ResponseWriter) *responseWriterLogger {
	return &responseWriterLogger{ResponseWriter: w, statusCode: http.StatusOK}
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (n int, err error) {
	n, err = wl.ResponseWriter.Write(b)
	wl.length += n
	return
}
