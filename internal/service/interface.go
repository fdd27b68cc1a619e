package service

import (
	"github.com/weiawesome/talkwire/internal/domain"
	"github.com/weiawesome/talkwire/internal/hub"
)

// Stats summarizes live state for the health and admin endpoints.
type Stats struct {
	Rooms       int  `json:"rooms"`
	Users       int  `json:"users"`
	RoomLimit   int  `json:"room_limit"`
	Connections int  `json:"connections"`
	BreakerOpen bool `json:"breaker_open"`
}

// TalkService orchestrates the registry, chat engine, guard, presence
// monitor, and hub on behalf of the transport handlers.
type TalkService interface {
	// Admission, called before the websocket upgrade.
	Admit(ip string) error
	// Disconnect tears down everything bound to the connection.
	HandleDisconnect(c *hub.Client)

	HandleCheckSignin(c *hub.Client) error
	HandleJoinLobby(c *hub.Client, username, location string) error
	HandleCreateRoom(c *hub.Client, req domain.CreateRoomRequest) error
	HandleJoinRoom(c *hub.Client, roomID, accessCode string) error
	HandleVote(c *hub.Client, targetUserID string) error
	HandleLeaveRoom(c *hub.Client) error
	HandleChatUpdate(c *hub.Client, diff domain.Diff) error
	HandleTyping(c *hub.Client, isTyping bool) error
	HandleGetRooms(c *hub.Client) error
	HandleGetRoomState(c *hub.Client, roomID string) error

	// Activity feeds the AFK monitor; the handler calls it for every
	// inbound event.
	Activity(connID string)

	// Stats reports live totals and breaker state.
	Stats() Stats
}
