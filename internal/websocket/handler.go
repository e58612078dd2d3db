package websocket

import (
	"strings"
	"time"

	"food-search-be/internal/pkg/logger"
	"food-search-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	DefaultPath      = "/ws/search"
	DefaultHeartbeat = 30 * time.Second

	localRequestID = "ws_request_id"
	localIdentity  = "ws_identity"
)

type Config struct {
	Path           string
	Heartbeat      time.Duration
	AllowedOrigins []string
	AuthRequired   bool
	JWTSecret      string
	SendBuffer     int
}

type Handler struct {
	hub       *Hub
	validator *OwnershipValidator
	cfg       Config
	logger    logger.ILogger
}

func NewHandler(hub *Hub, validator *OwnershipValidator, cfg Config, log logger.ILogger) *Handler {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	return &Handler{hub: hub, validator: validator, cfg: cfg, logger: log}
}

func (h *Handler) RegisterRoutes(router fiber.Router) {
	router.Get(h.cfg.Path+"/:requestId", h.Upgrade, h.Serve())
}

// Upgrade runs the handshake checks: origin allow-list, identity and request
// ownership. Only then is the connection handed to Serve.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	origin := c.Get(fiber.HeaderOrigin)
	if !originAllowed(origin, h.cfg.AllowedOrigins) {
		h.logger.Warn("WS", "Origin refused", map[string]interface{}{"origin": origin})
		return c.Status(fiber.StatusForbidden).JSON(serverutils.ErrorResponseWithReason(403, "Origin not allowed", "origin_denied"))
	}

	requestID := c.Params("requestId")
	id := Identity{SessionID: c.Query("sessionId")}

	if token := serverutils.BearerToken(c); token != "" {
		userID, err := serverutils.ParseUserID(token, h.cfg.JWTSecret)
		if err != nil {
			h.logger.Warn("WS", "Invalid token in handshake", map[string]interface{}{"request_id": requestID})
			return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Invalid token"))
		}
		id.UserID = userID
	} else if h.cfg.AuthRequired {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	v, err := h.validator.Validate(c.UserContext(), requestID, id)
	if err != nil {
		h.logger.Error("WS", "Ownership lookup failed", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return c.Status(fiber.StatusServiceUnavailable).JSON(serverutils.ErrorResponse(503, "Ownership check unavailable"))
	}

	h.logger.Info("WS", "Subscription check", map[string]interface{}{
		"request_id": requestID,
		"allowed":    v.Allowed,
		"reason":     string(v.Reason),
	})
	if !v.Allowed {
		return c.Status(fiber.StatusForbidden).JSON(serverutils.ErrorResponseWithReason(403, "Not allowed to observe this request", string(v.Reason)))
	}

	c.Locals(localRequestID, requestID)
	c.Locals(localIdentity, id)
	return c.Next()
}

// Serve attaches an upgraded connection to the hub for its request id.
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		requestID, _ := conn.Locals(localRequestID).(string)
		id, _ := conn.Locals(localIdentity).(Identity)

		client := newClient(h.hub, conn, requestID, id, h.cfg.SendBuffer)
		h.hub.Register(client)
		client.enqueue(mustEnvelope(Envelope{Type: "subscribed", RequestID: requestID}))

		// writePump in its own goroutine, readPump holds the handler
		go client.writePump(h.cfg.Heartbeat)
		client.readPump(2 * h.cfg.Heartbeat)
	})
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	origin = strings.TrimSuffix(strings.ToLower(origin), "/")
	for _, a := range allowed {
		a = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(a)), "/")
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
