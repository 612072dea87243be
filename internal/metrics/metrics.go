// Package metrics содержит prometheus-метрики платформы на собственном реестре.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/olea-platform/internal/model"
)

// Metrics хранит реестр и счётчики платформы.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	expensesSaved  *prometheus.CounterVec
	expensesSynced prometheus.Counter
	connectivityUp prometheus.Gauge
}

// New создаёт реестр и регистрирует в нём метрики.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "olea_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "olea_work_order_transitions_total",
			Help: "Work order status changes by target status",
		}, []string{"status"}),
		expensesSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "olea_expenses_saved_total",
			Help: "Recorded expenses by sync status at save time",
		}, []string{"sync_status"}),
		expensesSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "olea_expenses_synced_total",
			Help: "Offline expenses reconciled with the back office",
		}),
		connectivityUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "olea_connectivity_online",
			Help: "1 when the back office is reachable",
		}),
	}

	m.registry.MustRegister(m.httpRequests, m.transitions, m.expensesSaved, m.expensesSynced, m.connectivityUp)
	return m
}

// Handler отдаёт метрики в формате prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware считает обработанные HTTP-запросы.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, strconv.Itoa(code)).Inc()
	})
}

func (m *Metrics) WorkOrderTransition(status model.WorkOrderStatus) {
	m.transitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ExpenseSaved(status model.SyncStatus) {
	m.expensesSaved.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ExpensesSynced(n int) {
	if n > 0 {
		m.expensesSynced.Add(float64(n))
	}
}

// SetOnline отражает состояние связи с центральной системой.
func (m *Metrics) SetOnline(online bool) {
	if online {
		m.connectivityUp.Set(1)
		return
	}
	m.connectivityUp.Set(0)
}
