package server

import (
	"context"
	"errors"
	"time"

	"trashtalk/internal/middleware"
	"trashtalk/internal/models"
	"trashtalk/internal/notifications"
	"trashtalk/internal/observability"
	"trashtalk/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.opentelemetry.io/otel/attribute"
)

const (
	localSocketToken = "wsToken"
	closeWriteWait   = time.Second
)

// UpgradeRequired rejects plain HTTP on the socket route and captures the
// credential carried by the upgrade request, if any.
func (s *Server) UpgradeRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals(localSocketToken, middleware.SocketToken(c))
		return c.Next()
	}
}

// WebsocketHandler serves /ws. A connection is admitted in the Connecting
// state and must authenticate, by the upgrade token or by a first auth frame,
// before it receives or sends anything else.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ctx := context.Background()
		if rid, ok := conn.Locals("requestid").(string); ok {
			ctx = middleware.WithRequestID(ctx, rid)
		}

		client, err := s.registry.Connect(conn)
		if err != nil {
			s.reject(ctx, conn, rejectReason(err), websocket.CloseTryAgainLater)
			return
		}
		ctx = middleware.WithConnID(ctx, client.ID)

		userID, err := s.handshake(conn)
		if err != nil {
			s.registry.Unregister(client)
			s.reject(ctx, conn, "auth_failed", websocket.ClosePolicyViolation)
			return
		}

		if err := s.registry.Authenticate(client, userID); err != nil {
			s.registry.Unregister(client)
			s.reject(ctx, conn, rejectReason(err), websocket.CloseTryAgainLater)
			return
		}

		ctx = middleware.WithUserID(ctx, userID)
		client.IncomingHandler = func(c *notifications.Client, raw []byte) {
			s.handleMessage(ctx, c, raw)
		}

		go client.WritePump()
		client.ReadPump()
		// The conn is recycled once this handler returns.
		<-client.Done()
	})
}

// handshake resolves the connection's user from the upgrade token, or else
// from an auth frame that must arrive within the handshake timeout.
func (s *Server) handshake(conn *websocket.Conn) (uint, error) {
	if token, _ := conn.Locals(localSocketToken).(string); token != "" {
		return s.verifier.Verify(token)
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout()))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	msg, err := realtime.Decode(raw)
	if err != nil {
		return 0, err
	}
	auth, ok := msg.(realtime.Auth)
	if !ok {
		return 0, errors.New("first frame must be auth")
	}
	return s.verifier.Verify(auth.Token)
}

func (s *Server) reject(ctx context.Context, conn *websocket.Conn, reason string, code int) {
	observability.WebSocketRejections.WithLabelValues(reason).Inc()
	s.wsLog.LogRejected(ctx, reason)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeWriteWait))
	_ = conn.Close()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, notifications.ErrServerFull):
		return "server_full"
	case errors.Is(err, notifications.ErrUserLimit):
		return "user_limit"
	case errors.Is(err, notifications.ErrShutdown):
		return "shutdown"
	default:
		return "auth_failed"
	}
}

// handleMessage decodes one inbound frame and routes it to the stream manager.
// Failures go back to the sender as an error event; the socket stays open.
func (s *Server) handleMessage(ctx context.Context, c *notifications.Client, raw []byte) {
	msg, err := realtime.Decode(raw)
	if err != nil {
		observability.WebSocketEventsTotal.WithLabelValues("in", "invalid").Inc()
		s.sendError(ctx, c, "decode", models.NewInvalidArgumentError(err.Error()))
		return
	}
	msgType := realtime.TypeOf(msg)
	observability.WebSocketEventsTotal.WithLabelValues("in", msgType).Inc()

	ctx, span := observability.StartSpan(ctx, "realtime", msgType,
		attribute.Int64("user.id", int64(c.UserID)),
		attribute.String("conn.id", c.ID),
	)
	defer func() { observability.EndSpan(span, err) }()

	switch m := msg.(type) {
	case realtime.Auth:
		err = models.NewInvalidStateError("Already authenticated")
	case realtime.StartStream:
		_, err = s.streams.Start(ctx, c)
	case realtime.JoinStream:
		_, err = s.streams.Join(ctx, c, m.StreamID)
	case realtime.LeaveStream:
		err = s.streams.Leave(ctx, c.UserID, m.StreamID)
	case realtime.EndStream:
		if m.StreamID != 0 {
			err = s.streams.End(ctx, c.UserID, m.StreamID)
		} else {
			err = s.streams.EndByStreamer(ctx, c.UserID, m.StreamerID)
		}
	case realtime.Signal:
		if !c.AllowSignal() {
			err = models.NewRateLimitedError("Too many signaling messages")
			break
		}
		err = s.streams.RelaySignal(ctx, c.UserID, m)
	}

	if err != nil {
		s.sendError(ctx, c, msgType, err)
	}
}

func (s *Server) sendError(ctx context.Context, c *notifications.Client, msgType string, err error) {
	if models.CodeOf(err) == models.CodeInternal {
		s.wsLog.LogError(ctx, c.UserID, msgType, err)
	}
	s.registry.SendTo(c, realtime.NewEvent(realtime.EventError, realtime.ErrorPayload{
		Code:    models.CodeOf(err),
		Message: models.PublicMessage(err),
	}))
}
