package domain

import (
	"time"
)

// RoomType represents room visibility.
type RoomType string

const (
	RoomTypePublic      RoomType = "public"
	RoomTypeSemiPrivate RoomType = "semi-private"
	RoomTypePrivate     RoomType = "private"
)

// Valid reports whether the room type is a known variant.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypePublic, RoomTypeSemiPrivate, RoomTypePrivate:
		return true
	}
	return false
}

// RoomLayout represents the client rendering layout.
type RoomLayout string

const (
	LayoutHorizontal RoomLayout = "horizontal"
	LayoutVertical   RoomLayout = "vertical"
)

// Valid reports whether the layout is a known variant.
func (l RoomLayout) Valid() bool {
	return l == LayoutHorizontal || l == LayoutVertical
}

// Member is a room occupant. Its lifetime is bound to room membership.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Location string `json:"location"`
}

// Room is a live chat room. Owned exclusively by the registry; everything
// outside the registry sees copies.
type Room struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       RoomType          `json:"type"`
	Layout     RoomLayout        `json:"layout"`
	AccessCode string            `json:"-"`
	Members    []Member          `json:"members"`
	Votes      map[string]string `json:"votes"`
	Banned     map[string]bool   `json:"-"`
	LastActive time.Time         `json:"last_active"`
}

// HasMember reports whether the identity currently occupies the room.
func (r *Room) HasMember(id string) bool {
	for _, m := range r.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// RoomInfo is the public listing view of a room. Access codes and ban lists
// never leave the registry.
type RoomInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        RoomType   `json:"type"`
	Layout      RoomLayout `json:"layout"`
	MemberCount int        `json:"member_count"`
	MaxMembers  int        `json:"max_members"`
	Members     []Member   `json:"members"`
}

// CreateRoomRequest represents a create room request.
type CreateRoomRequest struct {
	Name       string     `json:"name"`
	Type       RoomType   `json:"type"`
	Layout     RoomLayout `json:"layout"`
	AccessCode string     `json:"access_code,omitempty"`
}

// Session binds a connection to an identity. Sessions are plain values:
// updates go through the service layer which stores the new value explicitly,
// never through accessor side effects.
type Session struct {
	ConnID      string
	IP          string
	Username    string
	Location    string
	JoinedLobby bool
	RoomID      string
	CreatedAt   time.Time
}

// NewSession returns the default anonymous session for a connection.
func NewSession(connID, ip string) Session {
	return Session{
		ConnID:    connID,
		IP:        ip,
		Username:  "Anonymous",
		Location:  "On The Web",
		CreatedAt: time.Now(),
	}
}
