package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/licenseboard/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "licenseboard/http"

	AttrRequestID     = attribute.Key("licenseboard.request_id")
	AttrActorRole     = attribute.Key("licenseboard.actor_role")
	AttrDashboardMode = attribute.Key("licenseboard.dashboard_mode")
)

// GinMiddleware opens one server span per request on the global tracer provider.
func GinMiddleware() gin.HandlerFunc {
	return ginMiddleware(otel.Tracer(tracerName))
}

func ginMiddleware(tracer trace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestBaggage(ctx, requestID)
			span.SetAttributes(AttrRequestID.String(requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + c.Request.Method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		// The session gate stores the principal on the request context after this span started.
		if role, _ := obscontext.ActorFromContext(c.Request.Context()); role != "" {
			attrs = append(attrs, AttrActorRole.String(role))
		}
		if mode, ok := dashboardMode(c); ok {
			attrs = append(attrs, AttrDashboardMode.String(mode))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if c.Writer.Status() >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

// dashboardMode reports the mode a dashboard, export or report request rendered.
// Unrecognized values collapse to "other" to keep span attributes bounded.
func dashboardMode(c *gin.Context) (string, bool) {
	route := c.FullPath()
	if !strings.HasPrefix(route, "/api/dashboard") &&
		!strings.HasPrefix(route, "/api/reports") &&
		route != "/api/licenses" && route != "/api/licenses/export.csv" {
		return "", false
	}
	switch mode := strings.ToLower(strings.TrimSpace(c.Query("mode"))); mode {
	case "":
		return "all", true
	case "all", "relay", "user":
		return mode, true
	default:
		return "other", true
	}
}

func withRequestBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
