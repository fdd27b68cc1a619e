package service

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/weiawesome/talkwire/internal/audit"
	"github.com/weiawesome/talkwire/internal/chat"
	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
	"github.com/weiawesome/talkwire/internal/filter"
	"github.com/weiawesome/talkwire/internal/guard"
	"github.com/weiawesome/talkwire/internal/hub"
	"github.com/weiawesome/talkwire/internal/presence"
	"github.com/weiawesome/talkwire/internal/registry"
)

const (
	maxUsernameLen = 15
	maxLocationLen = 20

	defaultUsername = "Anonymous"
	defaultLocation = "On The Web"
)

// Marker receives dirty notifications for the snapshot store.
type Marker interface {
	MarkDirty()
}

type talkServiceImpl struct {
	cfg     *config.Config
	logger  zerolog.Logger
	hub     *hub.Hub
	reg     *registry.Registry
	engine  *chat.Engine
	filter  *filter.Filter
	guard   *guard.Guard
	monitor *presence.Monitor
	marker  Marker
}

// New wires the core components together. The registry's change callback and
// the presence hooks both close over the service, so construction finishes
// before anything is shared.
func New(cfg *config.Config, h *hub.Hub, reg *registry.Registry, f *filter.Filter, g *guard.Guard, marker Marker, logger zerolog.Logger) TalkService {
	s := &talkServiceImpl{
		cfg:    cfg,
		logger: logger,
		hub:    h,
		reg:    reg,
		filter: f,
		guard:  g,
		marker: marker,
	}

	s.engine = chat.NewEngine(cfg.Chat, f, g,
		func(identity string) (string, bool) {
			room, ok := reg.RoomOf(identity)
			if !ok {
				return "", false
			}
			return room.ID, true
		},
		s.broadcastChatUpdate,
		logger,
	)

	s.monitor = presence.NewMonitor(cfg.Presence, presence.Hooks{
		OnWarn:       s.afkWarn,
		OnKick:       s.afkKick,
		OnTypingStop: s.typingStopped,
	}, logger)

	reg.SetOnChange(s.onRegistryChange)

	return s
}

func (s *talkServiceImpl) Stats() Stats {
	rooms, users := s.reg.Counts()
	return Stats{
		Rooms:       rooms,
		Users:       users,
		RoomLimit:   s.reg.Limit(),
		Connections: s.hub.ConnCount(),
		BreakerOpen: s.engine.Breaker().Open(),
	}
}

func (s *talkServiceImpl) Admit(ip string) error {
	return s.guard.Admit(ip)
}

func (s *talkServiceImpl) Activity(connID string) {
	s.monitor.Touch(connID)
}

func (s *talkServiceImpl) HandleCheckSignin(c *hub.Client) error {
	return c.SendMessage(domain.SigninStatusMessage{
		Type:     domain.MsgTypeSigninStatus,
		SignedIn: false,
	})
}

func (s *talkServiceImpl) HandleJoinLobby(c *hub.Client, username, location string) error {
	username = truncateRunes(strings.TrimSpace(username), maxUsernameLen)
	location = truncateRunes(strings.TrimSpace(location), maxLocationLen)
	if username == "" {
		username = defaultUsername
	}
	if location == "" {
		location = defaultLocation
	}

	// Profanity in display fields is censored, not rejected.
	username = s.filter.FilterText(username)
	location = s.filter.FilterText(location)

	session := c.Session()
	session.Username = username
	session.Location = location
	session.JoinedLobby = true
	c.PersistSession(session)

	return c.SendMessage(domain.LobbyUpdateMessage{
		Type:  domain.MsgTypeLobbyUpdate,
		Rooms: s.reg.PublicRooms(),
	})
}

func (s *talkServiceImpl) HandleCreateRoom(c *hub.Client, req domain.CreateRoomRequest) error {
	session := c.Session()
	if !session.JoinedLobby {
		return domain.NewError(domain.CodeValidation, "join the lobby first", nil)
	}

	if err := s.guard.RecordJoinAttempt(c.ID, c.IP); err != nil {
		audit.Log(audit.ActionGuardBlock, c.ID, "", "room creation blocked")
		return err
	}

	req.Name = s.filter.FilterText(req.Name)

	room, err := s.reg.Create(c.ID, session.Username == defaultUsername, req)
	if err != nil {
		return err
	}

	audit.LogWithDetail(audit.ActionCreateRoom, c.ID, room.ID, room.Name, "room created")
	return c.SendMessage(domain.RoomCreatedMessage{
		Type:   domain.MsgTypeRoomCreated,
		RoomID: room.ID,
	})
}

func (s *talkServiceImpl) HandleJoinRoom(c *hub.Client, roomID, accessCode string) error {
	session := c.Session()
	if !session.JoinedLobby {
		return domain.NewError(domain.CodeValidation, "join the lobby first", nil)
	}

	if err := s.guard.RecordJoinAttempt(c.ID, c.IP); err != nil {
		audit.Log(audit.ActionGuardBlock, c.ID, roomID, "room join blocked")
		return err
	}

	member := domain.Member{ID: c.ID, Username: session.Username, Location: session.Location}
	room, err := s.reg.Join(member, roomID, accessCode)
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			switch {
			case derr.Code == domain.CodeRoomFull:
				c.SendMessage(domain.RoomFullMessage{Type: domain.MsgTypeRoomFull, RoomID: roomID})
			case derr.Details != nil && derr.Details["access_code_required"] == true:
				c.SendMessage(domain.AccessCodeRequiredMessage{Type: domain.MsgTypeAccessCodeRequired, RoomID: roomID})
			}
		}
		return err
	}

	session = c.Session()
	session.RoomID = room.ID
	c.PersistSession(session)

	s.hub.JoinRoom(c.ID, room.ID)
	s.monitor.Watch(c.ID)

	memberIDs := make([]string, len(room.Members))
	for i, m := range room.Members {
		memberIDs[i] = m.ID
	}

	if err := c.SendMessage(domain.RoomJoinedMessage{
		Type:    domain.MsgTypeRoomJoined,
		RoomID:  room.ID,
		Name:    room.Name,
		Layout:  room.Layout,
		Members: room.Members,
		Votes:   room.Votes,
		Buffers: s.engine.Buffers(memberIDs),
	}); err != nil {
		return err
	}

	s.hub.BroadcastToRoom(room.ID, domain.UserJoinedMessage{
		Type:   domain.MsgTypeUserJoined,
		RoomID: room.ID,
		Member: member,
	}, c.ID)
	s.broadcastRoomUpdate(room)

	audit.Log(audit.ActionJoinRoom, c.ID, room.ID, "joined room")
	return nil
}

func (s *talkServiceImpl) HandleVote(c *hub.Client, targetUserID string) error {
	room, kicked, err := s.reg.Vote(c.ID, targetUserID)
	if err != nil {
		return err
	}

	s.hub.BroadcastToRoom(room.ID, domain.UpdateVotesMessage{
		Type:   domain.MsgTypeUpdateVotes,
		RoomID: room.ID,
		Votes:  room.Votes,
	}, "")

	if kicked {
		s.evict(targetUserID, room.ID, "vote")
		s.broadcastRoomUpdate(room)
		audit.LogWithDetail(audit.ActionVoteKick, c.ID, room.ID, targetUserID, "member vote-kicked")
	}
	return nil
}

func (s *talkServiceImpl) HandleLeaveRoom(c *hub.Client) error {
	return s.leave(c.ID)
}

func (s *talkServiceImpl) HandleChatUpdate(c *hub.Client, diff domain.Diff) error {
	if _, ok := s.reg.RoomOf(c.ID); !ok {
		return domain.NewError(domain.CodeValidation, "not in a room", nil)
	}
	return s.engine.Enqueue(c.ID, diff)
}

func (s *talkServiceImpl) HandleTyping(c *hub.Client, isTyping bool) error {
	room, ok := s.reg.RoomOf(c.ID)
	if !ok {
		return domain.NewError(domain.CodeValidation, "not in a room", nil)
	}

	s.monitor.Typing(c.ID, isTyping)
	s.hub.BroadcastToRoom(room.ID, domain.UserTypingMessage{
		Type:     domain.MsgTypeUserTyping,
		UserID:   c.ID,
		IsTyping: isTyping,
	}, c.ID)
	return nil
}

func (s *talkServiceImpl) HandleGetRooms(c *hub.Client) error {
	return c.SendMessage(domain.LobbyUpdateMessage{
		Type:  domain.MsgTypeLobbyUpdate,
		Rooms: s.reg.PublicRooms(),
	})
}

func (s *talkServiceImpl) HandleGetRoomState(c *hub.Client, roomID string) error {
	room, ok := s.reg.Room(roomID)
	if !ok {
		return domain.NewError(domain.CodeNotFound, "room not found", nil)
	}
	if room.Type == domain.RoomTypePrivate && !room.HasMember(c.ID) {
		return domain.NewError(domain.CodeNotFound, "room not found", nil)
	}

	memberIDs := make([]string, len(room.Members))
	for i, m := range room.Members {
		memberIDs[i] = m.ID
	}

	return c.SendMessage(domain.RoomUpdateMessage{
		Type:    domain.MsgTypeRoomUpdate,
		RoomID:  room.ID,
		Members: room.Members,
		Votes:   room.Votes,
		Buffers: s.engine.Buffers(memberIDs),
	})
}

func (s *talkServiceImpl) HandleDisconnect(c *hub.Client) {
	if _, ok := s.reg.RoomOf(c.ID); ok {
		s.leave(c.ID)
	}
	s.engine.Clear(c.ID)
	s.monitor.Unwatch(c.ID)
	s.guard.Forget(c.ID)
	s.guard.Release(c.IP)
}

// leave removes the identity from its room and tears down its live state.
func (s *talkServiceImpl) leave(identity string) error {
	room, member, err := s.reg.Leave(identity)
	if err != nil {
		return err
	}

	s.clearSessionRoom(identity)
	s.hub.LeaveRoom(identity, room.ID)
	s.engine.Clear(identity)
	s.monitor.Unwatch(identity)

	s.hub.BroadcastToRoom(room.ID, domain.UserLeftMessage{
		Type:   domain.MsgTypeUserLeft,
		RoomID: room.ID,
		UserID: member.ID,
	}, "")
	s.broadcastRoomUpdate(room)

	audit.Log(audit.ActionLeaveRoom, identity, room.ID, "left room")
	return nil
}

// clearSessionRoom drops the room binding from the connection's session so the
// client re-enters the lobby audience.
func (s *talkServiceImpl) clearSessionRoom(identity string) {
	if client, ok := s.hub.Client(identity); ok {
		session := client.Session()
		session.RoomID = ""
		client.PersistSession(session)
	}
}

// evict handles a forced removal already applied in the registry: the target
// learns why, the hub group and live state drop them.
func (s *talkServiceImpl) evict(identity, roomID, reason string) {
	s.hub.SendToConn(identity, domain.KickedMessage{
		Type:   domain.MsgTypeKicked,
		RoomID: roomID,
		Reason: reason,
	})
	s.clearSessionRoom(identity)
	s.hub.LeaveRoom(identity, roomID)
	s.engine.Clear(identity)
	s.monitor.Unwatch(identity)

	s.hub.BroadcastToRoom(roomID, domain.UserLeftMessage{
		Type:   domain.MsgTypeUserLeft,
		RoomID: roomID,
		UserID: identity,
	}, "")
}

func (s *talkServiceImpl) broadcastChatUpdate(roomID, identity string, diff domain.Diff) {
	s.reg.Touch(roomID)
	s.hub.BroadcastToRoom(roomID, domain.ChatUpdateOutMessage{
		Type:   domain.MsgTypeChatUpdateOut,
		UserID: identity,
		Diff:   diff,
	}, "")
}

func (s *talkServiceImpl) broadcastRoomUpdate(room *domain.Room) {
	s.hub.BroadcastToRoom(room.ID, domain.RoomUpdateMessage{
		Type:    domain.MsgTypeRoomUpdate,
		RoomID:  room.ID,
		Members: room.Members,
		Votes:   room.Votes,
	}, "")
}

// onRegistryChange runs after every registry mutation: the lobby sees the new
// public list and the snapshot store schedules a write.
func (s *talkServiceImpl) onRegistryChange() {
	s.hub.BroadcastToLobby(domain.LobbyUpdateMessage{
		Type:  domain.MsgTypeLobbyUpdate,
		Rooms: s.reg.PublicRooms(),
	})
	if s.marker != nil {
		s.marker.MarkDirty()
	}
}

func (s *talkServiceImpl) afkWarn(identity string) {
	s.hub.SendToConn(identity, domain.AFKWarningMessage{
		Type:             domain.MsgTypeAFKWarning,
		SecondsRemaining: int(s.cfg.Presence.AFKWarning.Seconds()),
	})
}

func (s *talkServiceImpl) afkKick(identity string) {
	room, ok := s.reg.RoomOf(identity)
	if !ok {
		return
	}
	if _, _, err := s.reg.Leave(identity); err != nil {
		return
	}
	s.evict(identity, room.ID, "afk")

	if updated, ok := s.reg.Room(room.ID); ok {
		s.broadcastRoomUpdate(updated)
	}
	audit.Log(audit.ActionAFKKick, identity, room.ID, "removed for inactivity")
}

func (s *talkServiceImpl) typingStopped(identity string) {
	room, ok := s.reg.RoomOf(identity)
	if !ok {
		return
	}
	s.hub.BroadcastToRoom(room.ID, domain.UserTypingMessage{
		Type:     domain.MsgTypeUserTyping,
		UserID:   identity,
		IsTyping: false,
	}, identity)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}
