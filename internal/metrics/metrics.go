// Package metrics 进程内 Prometheus 指标
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "groupchat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_events_published_total",
		Help: "Total number of realtime events accepted by the hub",
	}, []string{"event"})
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_events_dropped_total",
		Help: "Events dropped because a dispatcher queue was full",
	})
	SlowClientsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_ws_slow_clients_dropped_total",
		Help: "Connections closed because their send buffer was full",
	})
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_messages_sent_total",
		Help: "Total number of chat messages persisted",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		EventsPublished,
		EventsDropped,
		SlowClientsDropped,
		MessagesSent,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
