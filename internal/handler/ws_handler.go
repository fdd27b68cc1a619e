package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
	"github.com/weiawesome/talkwire/internal/guard"
	"github.com/weiawesome/talkwire/internal/hub"
	"github.com/weiawesome/talkwire/internal/service"
	"github.com/weiawesome/talkwire/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades connections and dispatches websocket events.
type WSHandler struct {
	hub     *hub.Hub
	service service.TalkService
	guard   *guard.Guard
	cfg     config.ServerConfig
}

// NewWSHandler creates a websocket handler.
func NewWSHandler(h *hub.Hub, svc service.TalkService, g *guard.Guard, cfg config.ServerConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		guard:   g,
		cfg:     cfg,
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket admits the source address, upgrades, and starts the pumps.
// Admission runs before the upgrade so rejected sources cost no connection.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ip := c.ClientIP()

	if err := h.service.Admit(ip); err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			c.AbortWithStatusJSON(httpStatus(derr.Code), domain.NewErrorMessage(derr))
			return
		}
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.L().Warn().Err(err).Str(log.FieldClientIP, ip).Msg("websocket upgrade failed")
		h.guard.Release(ip)
		return
	}

	client := hub.NewClient(uuid.New().String(), ip, h.hub, conn, h.cfg)
	h.hub.Register(client)

	log.L().Info().Str(log.FieldConnID, client.ID).Str(log.FieldClientIP, ip).Msg("client connected")

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleMessage)
		h.service.HandleDisconnect(client)
		log.L().Info().Str(log.FieldConnID, client.ID).Msg("client disconnected")
	}()
}

// handleMessage parses and dispatches one inbound event. Every handled event
// feeds the presence monitor; errors go back on the same connection and too
// many in a row drop it.
func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		h.fail(client, domain.NewError(domain.CodeValidation, "invalid message format", nil))
		return
	}

	h.service.Activity(client.ID)

	if err := h.dispatch(client, base.Type, message); err != nil {
		h.fail(client, err)
		return
	}
	client.ResetErrors()
}

// dispatch routes one event by type. Panics convert to a SERVER_ERROR so a
// single bad message never takes the read loop down.
func (h *WSHandler) dispatch(client *hub.Client, msgType string, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.L().Error().
				Str(log.FieldConnID, client.ID).
				Str(log.FieldEvent, msgType).
				Interface("panic", r).
				Msg("handler panic")
			err = domain.NewError(domain.CodeServerError, "internal error", nil)
		}
	}()

	switch msgType {
	case domain.MsgTypeCheckSignin:
		return h.service.HandleCheckSignin(client)

	case domain.MsgTypeJoinLobby:
		if err := h.guard.AllowEvent(client.ID); err != nil {
			return err
		}
		var msg domain.JoinLobbyMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return domain.NewError(domain.CodeValidation, "invalid join-lobby message", nil)
		}
		return h.service.HandleJoinLobby(client, msg.Username, msg.Location)

	case domain.MsgTypeCreateRoom:
		if err := h.guard.AllowEvent(client.ID); err != nil {
			return err
		}
		var msg domain.CreateRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return domain.NewError(domain.CodeValidation, "invalid create-room message", nil)
		}
		return h.service.HandleCreateRoom(client, domain.CreateRoomRequest{
			Name:       msg.Name,
			Type:       msg.RoomType,
			Layout:     msg.Layout,
			AccessCode: msg.AccessCode,
		})

	case domain.MsgTypeJoinRoom:
		if err := h.guard.AllowEvent(client.ID); err != nil {
			return err
		}
		var msg domain.JoinRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return domain.NewError(domain.CodeValidation, "invalid join-room message", nil)
		}
		return h.service.HandleJoinRoom(client, msg.RoomID, msg.AccessCode)

	case domain.MsgTypeVote:
		if err := h.guard.AllowEvent(client.ID); err != nil {
			return err
		}
		var msg domain.VoteMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return domain.NewError(domain.CodeValidation, "invalid vote message", nil)
		}
		return h.service.HandleVote(client, msg.TargetUserID)

	case domain.MsgTypeLeaveRoom:
		if err := h.guard.AllowEvent(client.ID); err != nil {
			return err
		}
		return h.service.HandleLeaveRoom(client)

	case domain.MsgTypeChatUpdate:
		if err := h.guard.AllowEvent(client.ID); err != nil {
			return err
		}
		var msg domain.ChatUpdateMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return domain.NewError(domain.CodeValidation, "invalid chat-update message", nil)
		}
		return h.service.HandleChatUpdate(client, msg.Diff)

	case domain.MsgTypeTyping:
		var msg domain.TypingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return domain.NewError(domain.CodeValidation, "invalid typing message", nil)
		}
		// A typing-stop always gets through so stale indicators clear.
		if msg.IsTyping {
			if err := h.guard.AllowEvent(client.ID); err != nil {
				return err
			}
		}
		return h.service.HandleTyping(client, msg.IsTyping)

	case domain.MsgTypeGetRooms:
		return h.service.HandleGetRooms(client)

	case domain.MsgTypeGetRoomState:
		var msg domain.GetRoomStateMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return domain.NewError(domain.CodeValidation, "invalid get-room-state message", nil)
		}
		return h.service.HandleGetRoomState(client, msg.RoomID)

	default:
		return domain.NewError(domain.CodeValidation, fmt.Sprintf("unknown message type %q", msgType), nil)
	}
}

// fail reports the error to the client and drops the connection after too many
// consecutive failures.
func (h *WSHandler) fail(client *hub.Client, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		log.L().Error().Err(err).Str(log.FieldConnID, client.ID).Msg("handler error")
		derr = domain.NewError(domain.CodeServerError, "internal error", nil)
	}
	client.SendMessage(domain.NewErrorMessage(derr))

	if client.CountError() >= h.cfg.MaxConnErrors {
		log.L().Warn().Str(log.FieldConnID, client.ID).Msg("too many consecutive errors, dropping connection")
		client.Conn.Close()
	}
}
