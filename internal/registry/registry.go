// Package registry owns the authoritative room map: lifecycle, membership,
// dynamic capacity, votes, bans, and reclamation. All other components read
// room state or request mutations through it; nothing else mutates rooms.
package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
)

// Registry is the room-id -> room-state map plus its policies.
type Registry struct {
	cfg    config.RoomConfig
	logger zerolog.Logger

	mu             sync.RWMutex
	rooms          map[string]*domain.Room
	nameIndex      map[string]string // lowercased name -> roomID
	identityRoom   map[string]string // identity -> roomID
	grants         map[string]map[string]bool
	lastCreate     map[string]time.Time
	deletionTimers map[string]*time.Timer

	// onChange fires after any mutation that alters the public room list,
	// including asynchronous ones (deletion timers, sweep). The service
	// layer uses it for lobby broadcasts and snapshot dirtying. Always
	// invoked outside the registry mutex.
	onChange func()
}

// New creates an empty registry.
func New(cfg config.RoomConfig, logger zerolog.Logger) *Registry {
	return &Registry{
		cfg:            cfg,
		logger:         logger,
		rooms:          make(map[string]*domain.Room),
		nameIndex:      make(map[string]string),
		identityRoom:   make(map[string]string),
		grants:         make(map[string]map[string]bool),
		lastCreate:     make(map[string]time.Time),
		deletionTimers: make(map[string]*time.Timer),
		onChange:       func() {},
	}
}

// SetOnChange installs the mutation callback. Must be called before the
// registry is shared.
func (reg *Registry) SetOnChange(fn func()) {
	if fn != nil {
		reg.onChange = fn
	}
}

// Limit returns the current dynamic room-count ceiling:
//
//	max(BASE, BASE + floor(totalUsers/(BASE*ROOM_CAPACITY)) * INCREMENT)
//
// It never shrinks below BASE and grows in discrete steps as aggregate
// occupancy crosses full-room-equivalents.
func (reg *Registry) Limit() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.limitLocked()
}

func (reg *Registry) limitLocked() int {
	total := 0
	for _, r := range reg.rooms {
		total += len(r.Members)
	}
	limit := reg.cfg.BaseLimit + total/(reg.cfg.BaseLimit*reg.cfg.Capacity)*reg.cfg.LimitIncrement
	if limit < reg.cfg.BaseLimit {
		limit = reg.cfg.BaseLimit
	}
	return limit
}

// Create registers a new room. Anonymous identities are exempt from the
// one-room-per-identity rule (preserved as specified; see DESIGN.md).
func (reg *Registry) Create(identity string, anonymous bool, req domain.CreateRoomRequest) (*domain.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len([]rune(name)) > reg.cfg.MaxNameLength {
		return nil, domain.NewError(domain.CodeValidation, "room name must be 1-25 characters", nil)
	}
	if !req.Type.Valid() {
		return nil, domain.NewError(domain.CodeValidation, "unknown room type", nil)
	}
	if !req.Layout.Valid() {
		return nil, domain.NewError(domain.CodeValidation, "unknown room layout", nil)
	}
	if req.Type == domain.RoomTypeSemiPrivate && !validAccessCode(req.AccessCode) {
		return nil, domain.NewError(domain.CodeValidation, "semi-private rooms require a 6-digit access code", nil)
	}

	reg.mu.Lock()
	room, err := reg.createLocked(identity, anonymous, name, req)
	reg.mu.Unlock()
	if err != nil {
		return nil, err
	}

	reg.logger.Info().
		Str("room_id", room.ID).
		Str("room_name", room.Name).
		Str("room_type", string(room.Type)).
		Msg("room created")

	reg.onChange()
	return room, nil
}

func (reg *Registry) createLocked(identity string, anonymous bool, name string, req domain.CreateRoomRequest) (*domain.Room, error) {
	if !anonymous && reg.cfg.MaxPerIdentity > 0 {
		if roomID, ok := reg.identityRoom[identity]; ok {
			return nil, domain.NewError(domain.CodeForbidden, "already occupying a room", map[string]any{
				"room_id": roomID,
			})
		}
	}

	if last, ok := reg.lastCreate[identity]; ok && time.Since(last) < reg.cfg.CreationCooldown {
		remaining := reg.cfg.CreationCooldown - time.Since(last)
		return nil, domain.NewError(domain.CodeRateLimited, "room creation cooldown not expired", map[string]any{
			"retry_after_seconds": int(remaining.Seconds()) + 1,
		})
	}

	if _, exists := reg.nameIndex[strings.ToLower(name)]; exists {
		return nil, domain.NewError(domain.CodeNameExists, "a room with this name already exists", nil)
	}

	if len(reg.rooms) >= reg.limitLocked() {
		return nil, domain.NewError(domain.CodeLimitReached, "room limit reached, try again later", nil)
	}

	room := &domain.Room{
		ID:         reg.generateIDLocked(),
		Name:       name,
		Type:       req.Type,
		Layout:     req.Layout,
		AccessCode: req.AccessCode,
		Members:    []domain.Member{},
		Votes:      make(map[string]string),
		Banned:     make(map[string]bool),
		LastActive: time.Now(),
	}

	reg.rooms[room.ID] = room
	reg.nameIndex[strings.ToLower(name)] = room.ID
	reg.lastCreate[identity] = time.Now()

	// A freshly created room is empty; reclaim it if nobody joins.
	reg.armDeletionTimerLocked(room.ID)

	return cloneRoom(room), nil
}

// ValidateCreate dry-runs room creation: static validation, name collision,
// and the dynamic limit. Nothing is reserved; a concurrent creator can still
// win the name.
func (reg *Registry) ValidateCreate(req domain.CreateRoomRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" || len([]rune(name)) > reg.cfg.MaxNameLength {
		return domain.NewError(domain.CodeValidation, "room name must be 1-25 characters", nil)
	}
	if !req.Type.Valid() {
		return domain.NewError(domain.CodeValidation, "unknown room type", nil)
	}
	if !req.Layout.Valid() {
		return domain.NewError(domain.CodeValidation, "unknown room layout", nil)
	}
	if req.Type == domain.RoomTypeSemiPrivate && !validAccessCode(req.AccessCode) {
		return domain.NewError(domain.CodeValidation, "semi-private rooms require a 6-digit access code", nil)
	}

	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if _, exists := reg.nameIndex[strings.ToLower(name)]; exists {
		return domain.NewError(domain.CodeNameExists, "a room with this name already exists", nil)
	}
	if len(reg.rooms) >= reg.limitLocked() {
		return domain.NewError(domain.CodeLimitReached, "room limit reached, try again later", nil)
	}
	return nil
}

// ValidateJoin dry-runs a join: existence, capacity, and the access code.
func (reg *Registry) ValidateJoin(roomID, accessCode string) error {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return domain.NewError(domain.CodeNotFound, "room not found", nil)
	}
	if room.Type == domain.RoomTypeSemiPrivate {
		if accessCode == "" {
			return domain.NewError(domain.CodeForbidden, "access code required", map[string]any{
				"access_code_required": true,
			})
		}
		if accessCode != room.AccessCode {
			return domain.NewError(domain.CodeForbidden, "incorrect access code", nil)
		}
	}
	if len(room.Members) >= reg.cfg.Capacity {
		return domain.NewError(domain.CodeRoomFull, "room is full", nil)
	}
	return nil
}

// Join adds the member to the room. Semi-private rooms require the access
// code unless this identity already validated it for this room this session.
func (reg *Registry) Join(member domain.Member, roomID, accessCode string) (*domain.Room, error) {
	reg.mu.Lock()
	room, err := reg.joinLocked(member, roomID, accessCode)
	reg.mu.Unlock()
	if err != nil {
		return nil, err
	}
	reg.onChange()
	return room, nil
}

func (reg *Registry) joinLocked(member domain.Member, roomID, accessCode string) (*domain.Room, error) {
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "room not found", nil)
	}

	if current, ok := reg.identityRoom[member.ID]; ok {
		if current == roomID {
			return nil, domain.NewError(domain.CodeAlreadyInRoom, "already in this room", nil)
		}
		return nil, domain.NewError(domain.CodeAlreadyInRoom, "already in another room", map[string]any{
			"room_id": current,
		})
	}

	if room.Banned[member.ID] {
		return nil, domain.NewError(domain.CodeForbidden, "banned from this room", nil)
	}

	if room.Type == domain.RoomTypeSemiPrivate && !reg.grants[roomID][member.ID] {
		if accessCode == "" {
			return nil, domain.NewError(domain.CodeForbidden, "access code required", map[string]any{
				"access_code_required": true,
			})
		}
		if accessCode != room.AccessCode {
			return nil, domain.NewError(domain.CodeForbidden, "incorrect access code", nil)
		}
	}

	if len(room.Members) >= reg.cfg.Capacity {
		return nil, domain.NewError(domain.CodeRoomFull, "room is full", nil)
	}

	room.Members = append(room.Members, member)
	room.LastActive = time.Now()
	reg.identityRoom[member.ID] = roomID

	if room.Type == domain.RoomTypeSemiPrivate {
		if reg.grants[roomID] == nil {
			reg.grants[roomID] = make(map[string]bool)
		}
		reg.grants[roomID][member.ID] = true
	}

	reg.cancelDeletionTimerLocked(roomID)

	return cloneRoom(room), nil
}

// Leave removes the identity from its room, clearing its ballots (cast and
// received). The last leaver arms the deletion timer.
func (reg *Registry) Leave(identity string) (*domain.Room, domain.Member, error) {
	reg.mu.Lock()
	room, member, err := reg.removeLocked(identity)
	reg.mu.Unlock()
	if err != nil {
		return nil, domain.Member{}, err
	}
	reg.onChange()
	return room, member, nil
}

// Vote toggles the voter's ballot against target. With three or more members
// and against-votes exceeding half the member count, the target is removed
// and banned from rejoining.
func (reg *Registry) Vote(voter, target string) (room *domain.Room, kicked bool, err error) {
	reg.mu.Lock()
	room, kicked, err = reg.voteLocked(voter, target)
	reg.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	reg.onChange()
	return room, kicked, nil
}

func (reg *Registry) voteLocked(voter, target string) (*domain.Room, bool, error) {
	roomID, ok := reg.identityRoom[voter]
	if !ok {
		return nil, false, domain.NewError(domain.CodeValidation, "not in a room", nil)
	}
	room := reg.rooms[roomID]

	if voter == target {
		return nil, false, domain.NewError(domain.CodeValidation, "cannot vote against yourself", nil)
	}
	if !room.HasMember(target) {
		return nil, false, domain.NewError(domain.CodeNotFound, "target is not in the room", nil)
	}

	if room.Votes[voter] == target {
		delete(room.Votes, voter)
	} else {
		room.Votes[voter] = target
	}
	room.LastActive = time.Now()

	against := 0
	for _, t := range room.Votes {
		if t == target {
			against++
		}
	}

	kicked := false
	if len(room.Members) >= 3 && against > len(room.Members)/2 {
		room.Banned[target] = true
		if _, _, err := reg.removeLocked(target); err == nil {
			kicked = true
			reg.logger.Info().
				Str("room_id", roomID).
				Str("target", target).
				Int("votes", against).
				Msg("member vote-kicked and banned")
		}
	}

	return cloneRoom(room), kicked, nil
}

// RoomOf returns the room the identity currently occupies.
func (reg *Registry) RoomOf(identity string) (*domain.Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	roomID, ok := reg.identityRoom[identity]
	if !ok {
		return nil, false
	}
	return cloneRoom(reg.rooms[roomID]), true
}

// Room returns a copy of the room.
func (reg *Registry) Room(roomID string) (*domain.Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, false
	}
	return cloneRoom(room), true
}

// PublicRooms returns the lobby listing. Private rooms are excluded and
// access codes never serialize.
func (reg *Registry) PublicRooms() []domain.RoomInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	infos := make([]domain.RoomInfo, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		if room.Type == domain.RoomTypePrivate {
			continue
		}
		infos = append(infos, domain.RoomInfo{
			ID:          room.ID,
			Name:        room.Name,
			Type:        room.Type,
			Layout:      room.Layout,
			MemberCount: len(room.Members),
			MaxMembers:  reg.cfg.Capacity,
			Members:     append([]domain.Member(nil), room.Members...),
		})
	}
	return infos
}

// Counts reports room and occupant totals.
func (reg *Registry) Counts() (rooms, users int) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, r := range reg.rooms {
		users += len(r.Members)
	}
	return len(reg.rooms), users
}

// Touch refreshes the room's activity clock.
func (reg *Registry) Touch(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok := reg.rooms[roomID]; ok {
		room.LastActive = time.Now()
	}
}

// Run sweeps rooms that sat empty past the deletion timeout, independently of
// their timers, until ctx is done.
func (reg *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(reg.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			reg.sweep(now)
		}
	}
}

func (reg *Registry) sweep(now time.Time) {
	reg.mu.Lock()
	var reclaimed []string
	for id, room := range reg.rooms {
		if len(room.Members) == 0 && now.Sub(room.LastActive) > reg.cfg.DeletionTimeout {
			reclaimed = append(reclaimed, id)
		}
	}
	for _, id := range reclaimed {
		reg.deleteRoomLocked(id)
	}
	reg.mu.Unlock()

	if len(reclaimed) > 0 {
		reg.logger.Info().Int("count", len(reclaimed)).Msg("swept idle rooms")
		reg.onChange()
	}
}

func (reg *Registry) removeLocked(identity string) (*domain.Room, domain.Member, error) {
	roomID, ok := reg.identityRoom[identity]
	if !ok {
		return nil, domain.Member{}, domain.NewError(domain.CodeValidation, "not in a room", nil)
	}
	room := reg.rooms[roomID]

	var removed domain.Member
	for i, m := range room.Members {
		if m.ID == identity {
			removed = m
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			break
		}
	}
	delete(reg.identityRoom, identity)

	delete(room.Votes, identity)
	for voter, target := range room.Votes {
		if target == identity {
			delete(room.Votes, voter)
		}
	}
	room.LastActive = time.Now()

	if len(room.Members) == 0 {
		reg.armDeletionTimerLocked(roomID)
	}

	return cloneRoom(room), removed, nil
}

func (reg *Registry) armDeletionTimerLocked(roomID string) {
	reg.cancelDeletionTimerLocked(roomID)
	reg.deletionTimers[roomID] = time.AfterFunc(reg.cfg.DeletionTimeout, func() {
		reg.mu.Lock()
		room, ok := reg.rooms[roomID]
		deleted := ok && len(room.Members) == 0
		if deleted {
			reg.deleteRoomLocked(roomID)
		}
		reg.mu.Unlock()

		if deleted {
			reg.logger.Info().Str("room_id", roomID).Msg("empty room reclaimed")
			reg.onChange()
		}
	})
}

func (reg *Registry) cancelDeletionTimerLocked(roomID string) {
	if t, ok := reg.deletionTimers[roomID]; ok {
		t.Stop()
		delete(reg.deletionTimers, roomID)
	}
}

func (reg *Registry) deleteRoomLocked(roomID string) {
	room, ok := reg.rooms[roomID]
	if !ok {
		return
	}
	reg.cancelDeletionTimerLocked(roomID)
	delete(reg.nameIndex, strings.ToLower(room.Name))
	delete(reg.grants, roomID)
	delete(reg.rooms, roomID)
}

func cloneRoom(room *domain.Room) *domain.Room {
	if room == nil {
		return nil
	}
	cp := *room
	cp.Members = append([]domain.Member(nil), room.Members...)
	cp.Votes = make(map[string]string, len(room.Votes))
	for k, v := range room.Votes {
		cp.Votes[k] = v
	}
	cp.Banned = make(map[string]bool, len(room.Banned))
	for k := range room.Banned {
		cp.Banned[k] = true
	}
	return &cp
}
