package middleware

import (
	"strings"

	"github.com/bearkuang/oristagram/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// untracedPrefixes are probe, scrape and static paths that would only add noise.
var untracedPrefixes = []string{"/health", "/metrics", "/media/", "/api/swagger", "/api/metrics"}

func traced(path string) bool {
	for _, prefix := range untracedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// domainAttributes tags a span with what the request acts on, e.g. the reel
// behind /api/reels/:id/like or the room behind /ws/chat/:chatroom_id.
func domainAttributes(c *fiber.Ctx) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	segments := strings.Split(strings.Trim(c.Path(), "/"), "/")
	if len(segments) > 1 && segments[0] == "api" {
		switch segments[1] {
		case "posts", "reels", "comments", "chatrooms", "users", "follows", "search", "auth":
			attrs = append(attrs, attribute.String("oristagram.resource", segments[1]))
		}
	}
	if len(segments) > 1 && segments[0] == "ws" {
		attrs = append(attrs, attribute.String("oristagram.resource", "ws_"+segments[1]))
	}
	for _, param := range []string{"id", "chatroom_id", "user_id"} {
		if v := c.Params(param); v != "" {
			attrs = append(attrs, attribute.String("oristagram.param."+param, v))
		}
	}
	return attrs
}

// TracingMiddleware starts a server span per API or websocket request, named
// after the matched route, and exposes its trace ID through c.Locals("traceID")
// and the X-Trace-ID response header.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !traced(c.Path()) {
			return c.Next()
		}

		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))
		ctx, span := observability.Tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.target", c.OriginalURL()),
				attribute.String("http.client_ip", c.IP()),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals("traceID", traceID)
		c.Locals("spanID", span.SpanContext().SpanID().String())
		c.Set("X-Trace-ID", traceID)
		if requestID, ok := c.Locals("requestid").(string); ok {
			span.SetAttributes(attribute.String("request.id", requestID))
		}
		c.SetUserContext(ctx)

		err := c.Next()

		// params and the route pattern are only known once routing ran
		route := c.Route().Path
		span.SetName(c.Method() + " " + route)
		span.SetAttributes(attribute.String("http.route", route))
		span.SetAttributes(domainAttributes(c)...)

		status := c.Response().StatusCode()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if userID, ok := c.Locals("userID").(uint); ok {
			span.SetAttributes(attribute.Int64("user.id", int64(userID)))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, fiber.ErrInternalServerError.Message)
		}
		return err
	}
}
