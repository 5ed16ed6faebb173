package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/omerhodo/hollypolly2/models"
)

// Memory is an in-process Store used by tests and local development. It
// mirrors the Mongo implementation's semantics, including not-found
// behavior and coalescing change notifications.
type Memory struct {
	mu      sync.Mutex
	rooms   map[string]*models.Room
	users   map[string]map[string]*models.User
	options map[string]map[string]*models.Option
	subs    map[string]map[chan Event]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		rooms:   make(map[string]*models.Room),
		users:   make(map[string]map[string]*models.User),
		options: make(map[string]map[string]*models.Option),
		subs:    make(map[string]map[chan Event]struct{}),
	}
}

// --- Rooms -------------------------------------------------

func (m *Memory) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *room
	return &copied, nil
}

func (m *Memory) CreateRoom(_ context.Context, room *models.Room) error {
	m.mu.Lock()
	copied := *room
	m.rooms[room.ID] = &copied
	m.mu.Unlock()
	m.notify(room.ID, EventRoom)
	return nil
}

func (m *Memory) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	delete(m.rooms, roomID)
	m.mu.Unlock()
	m.notify(roomID, EventRoom)
	return nil
}

func (m *Memory) SetRoomTitle(_ context.Context, roomID, title string, at time.Time) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		room = &models.Room{ID: roomID, CreatedAt: at}
		m.rooms[roomID] = room
	}
	room.Title = title
	room.LastActivity = at
	m.mu.Unlock()
	m.notify(roomID, EventRoom)
	return nil
}

func (m *Memory) TouchRoom(_ context.Context, roomID string, at time.Time) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		room = &models.Room{ID: roomID, CreatedAt: at}
		m.rooms[roomID] = room
	}
	room.LastActivity = at
	m.mu.Unlock()
	m.notify(roomID, EventRoom)
	return nil
}

func (m *Memory) SetRoomResult(_ context.Context, roomID string, result *models.ResultData, at time.Time) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	room.Result = result
	room.LastActivity = at
	m.mu.Unlock()
	m.notify(roomID, EventRoom)
	return nil
}

func (m *Memory) SetRoomTeams(_ context.Context, roomID string, teams []models.TeamData, createdCount int, at time.Time) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	room.Teams = teams
	room.TeamsCreatedCount = createdCount
	room.LastActivity = at
	m.mu.Unlock()
	m.notify(roomID, EventRoom)
	return nil
}

func (m *Memory) ClearRoomTransient(_ context.Context, roomID string, at time.Time) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	room.Result = nil
	room.Teams = nil
	room.TeamsCreatedCount = 0
	room.LastActivity = at
	m.mu.Unlock()
	m.notify(roomID, EventRoom)
	return nil
}

// --- Users -------------------------------------------------

func (m *Memory) GetUser(_ context.Context, roomID, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[roomID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *Memory) PutUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	if m.users[user.RoomID] == nil {
		m.users[user.RoomID] = make(map[string]*models.User)
	}
	copied := *user
	m.users[user.RoomID][user.ID] = &copied
	m.mu.Unlock()
	m.notify(user.RoomID, EventUsers)
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	delete(m.users[roomID], userID)
	m.mu.Unlock()
	m.notify(roomID, EventUsers)
	return nil
}

func (m *Memory) ListUsers(_ context.Context, roomID string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]models.User, 0, len(m.users[roomID]))
	for _, u := range m.users[roomID] {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].JoinedAt.Before(users[j].JoinedAt)
	})
	return users, nil
}

func (m *Memory) SetUserName(_ context.Context, roomID, userID, name string) error {
	return m.updateUser(roomID, userID, func(u *models.User) { u.Name = name })
}

func (m *Memory) SetUserLastSeen(_ context.Context, roomID, userID string, at time.Time) error {
	return m.updateUser(roomID, userID, func(u *models.User) { u.LastSeen = at })
}

func (m *Memory) SetUserAdmin(_ context.Context, roomID, userID string, admin bool) error {
	return m.updateUser(roomID, userID, func(u *models.User) { u.IsAdmin = admin })
}

func (m *Memory) updateUser(roomID, userID string, apply func(*models.User)) error {
	m.mu.Lock()
	user, ok := m.users[roomID][userID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	apply(user)
	m.mu.Unlock()
	m.notify(roomID, EventUsers)
	return nil
}

func (m *Memory) PromoteSoleAdmin(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	target, ok := m.users[roomID][userID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	for _, u := range m.users[roomID] {
		u.IsAdmin = false
	}
	target.IsAdmin = true
	m.mu.Unlock()
	m.notify(roomID, EventUsers)
	return nil
}

// --- Options -----------------------------------------------

func (m *Memory) PutOption(_ context.Context, opt *models.Option) error {
	m.mu.Lock()
	if m.options[opt.RoomID] == nil {
		m.options[opt.RoomID] = make(map[string]*models.Option)
	}
	copied := *opt
	m.options[opt.RoomID][opt.ID] = &copied
	m.mu.Unlock()
	m.notify(opt.RoomID, EventOptions)
	return nil
}

func (m *Memory) DeleteOption(_ context.Context, roomID, optionID string) error {
	m.mu.Lock()
	delete(m.options[roomID], optionID)
	m.mu.Unlock()
	m.notify(roomID, EventOptions)
	return nil
}

func (m *Memory) DeleteAllOptions(_ context.Context, roomID string) error {
	m.mu.Lock()
	delete(m.options, roomID)
	m.mu.Unlock()
	m.notify(roomID, EventOptions)
	return nil
}

func (m *Memory) ListOptions(_ context.Context, roomID string) ([]models.Option, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	opts := make([]models.Option, 0, len(m.options[roomID]))
	for _, o := range m.options[roomID] {
		opts = append(opts, *o)
	}
	sort.Slice(opts, func(i, j int) bool {
		if opts[i].CreatedAt.Equal(opts[j].CreatedAt) {
			return opts[i].ID < opts[j].ID
		}
		return opts[i].CreatedAt.Before(opts[j].CreatedAt)
	})
	return opts, nil
}

// --- Subscriptions -----------------------------------------

func (m *Memory) Subscribe(roomID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	m.mu.Lock()
	if m.subs[roomID] == nil {
		m.subs[roomID] = make(map[chan Event]struct{})
	}
	m.subs[roomID][ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			if set := m.subs[roomID]; set != nil {
				delete(set, ch)
				if len(set) == 0 {
					delete(m.subs, roomID)
				}
			}
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Memory) notify(roomID, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[roomID] {
		select {
		case ch <- Event{RoomID: roomID, Kind: kind}:
		default:
		}
	}
}
