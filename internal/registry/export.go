package registry

import (
	"strings"
	"time"

	"github.com/weiawesome/talkwire/internal/domain"
)

// Export is the serializable registry state: rooms with their bans and code
// grants, excluding live buffers and timers.
type Export struct {
	SavedAt time.Time      `json:"saved_at"`
	Rooms   []ExportedRoom `json:"rooms"`
}

// ExportedRoom is one room in snapshot form.
type ExportedRoom struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       domain.RoomType   `json:"type"`
	Layout     domain.RoomLayout `json:"layout"`
	AccessCode string            `json:"access_code,omitempty"`
	Banned     []string          `json:"banned,omitempty"`
	Grants     []string          `json:"grants,omitempty"`
	LastActive time.Time         `json:"last_active"`
}

// Snapshot captures the current registry state. Members are deliberately
// excluded: live connections do not survive a restart.
func (reg *Registry) Snapshot() Export {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	exp := Export{SavedAt: time.Now(), Rooms: make([]ExportedRoom, 0, len(reg.rooms))}
	for _, room := range reg.rooms {
		er := ExportedRoom{
			ID:         room.ID,
			Name:       room.Name,
			Type:       room.Type,
			Layout:     room.Layout,
			AccessCode: room.AccessCode,
			LastActive: room.LastActive,
		}
		for id := range room.Banned {
			er.Banned = append(er.Banned, id)
		}
		for id := range reg.grants[room.ID] {
			er.Grants = append(er.Grants, id)
		}
		exp.Rooms = append(exp.Rooms, er)
	}
	return exp
}

// Restore loads a snapshot into an empty registry. Every restored room starts
// empty, so each gets a deletion timer; the sweep reclaims stragglers.
func (reg *Registry) Restore(exp Export) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, er := range exp.Rooms {
		if _, exists := reg.rooms[er.ID]; exists {
			continue
		}
		room := &domain.Room{
			ID:         er.ID,
			Name:       er.Name,
			Type:       er.Type,
			Layout:     er.Layout,
			AccessCode: er.AccessCode,
			Members:    []domain.Member{},
			Votes:      make(map[string]string),
			Banned:     make(map[string]bool, len(er.Banned)),
			LastActive: time.Now(),
		}
		for _, id := range er.Banned {
			room.Banned[id] = true
		}
		if len(er.Grants) > 0 {
			g := make(map[string]bool, len(er.Grants))
			for _, id := range er.Grants {
				g[id] = true
			}
			reg.grants[er.ID] = g
		}
		reg.rooms[er.ID] = room
		reg.nameIndex[strings.ToLower(er.Name)] = er.ID
		reg.armDeletionTimerLocked(er.ID)
	}
}
