package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_http_requests_total",
			Help: "Total number of HTTP requests processed by the realtime service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	onlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_online_users",
			Help: "Number of users with at least one live connection.",
		},
	)
	broadcastDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcast_deliveries_total",
			Help: "Outbound frames fanned out to connections.",
		},
		[]string{"event"},
	)
	droppedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_dropped_events_total",
			Help: "Outbound frames dropped because a connection queue was full.",
		},
		[]string{"event"},
	)
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_evaluations_total",
			Help: "Resume evaluations by terminal outcome.",
		},
		[]string{"outcome"},
	)
	evaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_evaluation_duration_seconds",
			Help:    "Wall time from processing start to terminal state.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
	)
	modelAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_model_attempts_total",
			Help: "Scoring model attempts by model and result class.",
		},
		[]string{"model", "result"},
	)
	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_rate_limited_total",
			Help: "Requests rejected by the sliding-window limiter.",
		},
		[]string{"action"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		onlineUsers,
		broadcastDeliveries,
		droppedEventsTotal,
		evaluationsTotal,
		evaluationDuration,
		modelAttemptsTotal,
		rateLimitedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func SetOnlineUsers(n int) {
	onlineUsers.Set(float64(n))
}

func ObserveBroadcast(event string, recipients int) {
	broadcastDeliveries.WithLabelValues(event).Add(float64(recipients))
}

func IncDroppedEvent(event string) {
	droppedEventsTotal.WithLabelValues(event).Inc()
}

func ObserveEvaluation(outcome string, elapsed time.Duration) {
	evaluationsTotal.WithLabelValues(outcome).Inc()
	evaluationDuration.Observe(elapsed.Seconds())
}

func IncModelAttempt(model, result string) {
	modelAttemptsTotal.WithLabelValues(model, result).Inc()
}

func IncRateLimited(action string) {
	rateLimitedTotal.WithLabelValues(action).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
