package instrument

import (
	"github.com/gofiber/fiber/v2"
)

// Middleware returns a Fiber middleware that sets up tracing for each request.
// It propagates the X-Trace-ID header (or generates one), injects inst into
// the request context and wraps the handler chain in a root "http" span.
func Middleware(inst Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = newUUID()
		}

		ctx := WithInstrumenter(WithTraceID(c.UserContext(), traceID), inst)
		ctx, span := inst.StartSpan(ctx, "http", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)
		c.Set("X-Trace-ID", traceID)

		err := c.Next()

		if err != nil {
			span.SetStatus("error")
			span.SetMetadata("error", err.Error())
		} else {
			span.SetStatus("ok")
		}
		span.SetMetadata("http_status", c.Response().StatusCode())
		span.End()
		return err
	}
}
