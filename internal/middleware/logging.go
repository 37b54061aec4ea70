package middleware

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. Records pick up request,
// user, trace and connection ids from the context they are logged with.
var Logger *slog.Logger

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
	ConnIDKey    contextKey = "conn_id"
)

var contextAttrs = []contextKey{RequestIDKey, UserIDKey, TraceIDKey, ConnIDKey}

type ctxHandler struct {
	slog.Handler
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range contextAttrs {
		if v := ctx.Value(key); v != nil {
			r.AddAttrs(slog.Any(string(key), v))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Environment is read directly: the logger exists before config is loaded.
func init() {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if env := os.Getenv("APP_ENV"); env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	Logger = slog.New(&ctxHandler{handler})
}

// WithUserID returns ctx carrying the user id picked up by Logger.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithRequestID returns ctx carrying the request id picked up by Logger.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithConnID tags ctx with a socket connection id.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConnIDKey, id)
}

// ContextMiddleware copies the request, user and trace ids from Fiber locals
// into the request context. Run it again after AuthRequired to add the user.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if rid, ok := c.Locals("requestid").(string); ok {
			ctx = WithRequestID(ctx, rid)
		}
		if uid, ok := c.Locals("userID").(uint); ok {
			ctx = WithUserID(ctx, uid)
		}
		if tid, ok := c.Locals("traceID").(string); ok {
			ctx = context.WithValue(ctx, TraceIDKey, tid)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger logs one line per request: errors and 5xx at error, 4xx
// at warn, the rest at info. Health probes are logged at debug.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}

		level := slog.LevelInfo
		switch {
		case err != nil:
			attrs = append(attrs, slog.String("error", err.Error()))
			level = slog.LevelError
		case status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		case strings.HasPrefix(c.Path(), "/health"):
			level = slog.LevelDebug
		}
		Logger.LogAttrs(c.UserContext(), level, "request", attrs...)
		return err
	}
}
