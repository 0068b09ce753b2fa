package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kiosk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_bookings_total",
			Help: "Total number of bookings by type and outcome",
		},
		[]string{"type", "status"},
	)

	StockMovementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_stock_movements_total",
			Help: "Total number of stock movements by type and outcome",
		},
		[]string{"type", "status"},
	)

	DanglingTransfersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosk_dangling_transfers_total",
			Help: "Transfers debited from the sender but not credited to the recipient",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_notifications_total",
			Help: "Total number of notifications sent",
		},
		[]string{"template", "status"},
	)

	ArchivedAccountsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_archived_accounts_total",
			Help: "Accounts processed by the monthly archive",
		},
		[]string{"status"},
	)
)

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(bookingType string, err error) {
	BookingsTotal.WithLabelValues(bookingType, status(err)).Inc()
}

func RecordStockMovement(movementType string, err error) {
	StockMovementsTotal.WithLabelValues(movementType, status(err)).Inc()
}

func RecordDanglingTransfer() {
	DanglingTransfersTotal.Inc()
}

func RecordNotification(template string, err error) {
	NotificationsTotal.WithLabelValues(template, status(err)).Inc()
}

func RecordArchive(err error) {
	ArchivedAccountsTotal.WithLabelValues(status(err)).Inc()
}
