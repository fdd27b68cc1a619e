package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
	"github.com/weiawesome/talkwire/internal/registry"
	"github.com/weiawesome/talkwire/internal/service"
	"github.com/weiawesome/talkwire/internal/snapshot"
	"github.com/weiawesome/talkwire/pkg/log"
	"github.com/weiawesome/talkwire/pkg/response"
)

const adminKeyHeader = "X-Admin-Key"

// HTTPHandler serves the REST surface: lobby listing, dry-run validation,
// health, and the admin endpoints.
type HTTPHandler struct {
	service  service.TalkService
	registry *registry.Registry
	store    *snapshot.Store
	cfg      *config.Config
	started  time.Time
}

// NewHTTPHandler creates the REST handler.
func NewHTTPHandler(svc service.TalkService, reg *registry.Registry, store *snapshot.Store, cfg *config.Config) *HTTPHandler {
	return &HTTPHandler{
		service:  svc,
		registry: reg,
		store:    store,
		cfg:      cfg,
		started:  time.Now(),
	}
}

// RegisterRoutes registers all routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		api.GET("/config", h.GetConfig)

		rooms := api.Group("/rooms")
		{
			rooms.GET("", h.ListRooms)
			rooms.GET("/:id", h.GetRoom)
			rooms.POST("/validate", h.ValidateCreate)
			rooms.POST("/:id/join/validate", h.ValidateJoin)
		}

		admin := api.Group("/admin", h.requireAdmin())
		{
			admin.GET("/stats", h.AdminStats)
			admin.POST("/snapshot", h.AdminSnapshot)
		}
	}

	if h.cfg.Server.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(h.cfg.Server.StaticDir))))
	}
}

// Health reports liveness plus the breaker state. An open breaker degrades
// the status without failing the probe; the process is still serving.
func (h *HTTPHandler) Health(c *gin.Context) {
	stats := h.service.Stats()
	status := "ok"
	if stats.BreakerOpen {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"stats":          stats,
	})
}

// GetConfig exposes the limits clients need before connecting.
func (h *HTTPHandler) GetConfig(c *gin.Context) {
	response.Success(c, gin.H{
		"room_capacity":       h.cfg.Room.Capacity,
		"max_room_name":       h.cfg.Room.MaxNameLength,
		"max_text_length":     h.cfg.Chat.MaxTextLength,
		"afk_timeout_seconds": int(h.cfg.Presence.AFKTimeout.Seconds()),
	})
}

// ListRooms returns the public lobby listing.
func (h *HTTPHandler) ListRooms(c *gin.Context) {
	response.Success(c, gin.H{
		"rooms": h.registry.PublicRooms(),
		"limit": h.registry.Limit(),
	})
}

// GetRoom returns one room's listing view. Private rooms are indistinguishable
// from missing ones here; membership checks need a connection.
func (h *HTTPHandler) GetRoom(c *gin.Context) {
	roomID := c.Param("id")

	room, ok := h.registry.Room(roomID)
	if !ok || room.Type == domain.RoomTypePrivate {
		response.NotFound(c, "room not found")
		return
	}

	response.Success(c, domain.RoomInfo{
		ID:          room.ID,
		Name:        room.Name,
		Type:        room.Type,
		Layout:      room.Layout,
		MemberCount: len(room.Members),
		MaxMembers:  h.cfg.Room.Capacity,
		Members:     room.Members,
	})
}

// ValidateCreate dry-runs a create request so clients can surface problems
// before opening the websocket flow. Nothing is reserved.
func (h *HTTPHandler) ValidateCreate(c *gin.Context) {
	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.registry.ValidateCreate(req); err != nil {
		h.writeDomainError(c, err)
		return
	}
	response.Success(c, gin.H{"valid": true})
}

// ValidateJoin dry-runs a join, including the access code check.
func (h *HTTPHandler) ValidateJoin(c *gin.Context) {
	var req struct {
		AccessCode string `json:"access_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.registry.ValidateJoin(c.Param("id"), req.AccessCode); err != nil {
		h.writeDomainError(c, err)
		return
	}
	response.Success(c, gin.H{"valid": true})
}

// AdminStats reports live totals for operators.
func (h *HTTPHandler) AdminStats(c *gin.Context) {
	response.Success(c, h.service.Stats())
}

// AdminSnapshot forces an immediate snapshot write.
func (h *HTTPHandler) AdminSnapshot(c *gin.Context) {
	if err := h.store.Flush(); err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("forced snapshot failed")
		response.InternalError(c, "snapshot write failed")
		return
	}
	response.Success(c, gin.H{"message": "snapshot written"})
}

// requireAdmin gates the admin group on the shared secret. An empty secret
// disables the group entirely rather than leaving it open.
func (h *HTTPHandler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := h.cfg.Admin.Secret
		if secret == "" {
			response.NotFound(c, "not found")
			c.Abort()
			return
		}

		key := c.GetHeader(adminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
			response.Unauthorized(c, "invalid admin key")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *HTTPHandler) writeDomainError(c *gin.Context, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		response.InternalError(c, "internal error")
		return
	}
	response.ErrorWithDetails(c, httpStatus(derr.Code), derr.Code, derr.Message, derr.Details)
}

// httpStatus maps domain error codes onto HTTP statuses for the REST surface.
func httpStatus(code string) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeRoomFull, domain.CodeNameExists, domain.CodeAlreadyInRoom:
		return http.StatusConflict
	case domain.CodeLimitReached, domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
