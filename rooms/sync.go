package rooms

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/omerhodo/hollypolly2/models"
	"github.com/omerhodo/hollypolly2/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// Users without a heartbeat for this long get evicted by the sweep.
	inactiveAfter = 2 * time.Minute
	// Cadence of the inactive-user sweep.
	sweepInterval = time.Minute
	// Grace window before an empty room is deleted. A user rejoining
	// within the window cancels deletion.
	emptyRoomGrace = 5 * time.Second
)

// Snapshot is the state pushed to every connected client.
type Snapshot struct {
	Room    *models.Room    `json:"room"`
	Users   []models.User   `json:"users"`
	Options []models.Option `json:"options"`
	Loading bool            `json:"loading"`
}

// Synchronizer mirrors one room's documents from the store and applies
// mutations against it. All writes are independent best-effort writes;
// the store's per-document atomicity is the only consistency primitive,
// except admin promotion which runs in a transaction so at most one
// admin exists at a time.
type Synchronizer struct {
	store  store.Store
	clock  clockwork.Clock
	roomID string

	mu        sync.RWMutex
	room      *models.Room
	users     []models.User
	options   []models.Option
	loading   bool
	listeners map[int]func(Snapshot)
	nextID    int

	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
	done     chan struct{}

	// onClosed runs after the room document disappears, so the owner
	// can drop this synchronizer.
	onClosed func(roomID string)
}

func NewSynchronizer(st store.Store, clock clockwork.Clock, roomID string, onClosed func(string)) *Synchronizer {
	return &Synchronizer{
		store:     st,
		clock:     clock,
		roomID:    roomID,
		loading:   true,
		listeners: make(map[int]func(Snapshot)),
		done:      make(chan struct{}),
		onClosed:  onClosed,
	}
}

func (s *Synchronizer) RoomID() string { return s.roomID }

// Start loads or creates the room document, mirrors the current users
// and options, and establishes the live subscription. It is idempotent:
// a second call returns once the first initialization finished.
func (s *Synchronizer) Start(ctx context.Context, title string) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return nil
	}

	room, err := s.store.GetRoom(ctx, s.roomID)
	if err == store.ErrNotFound {
		now := s.clock.Now()
		room = &models.Room{
			ID:           s.roomID,
			CreatedAt:    now,
			LastActivity: now,
			Title:        title,
		}
		if cerr := s.store.CreateRoom(ctx, room); cerr != nil {
			// Lost the create race to another client; adopt the winner.
			existing, gerr := s.store.GetRoom(ctx, s.roomID)
			if gerr != nil {
				return cerr
			}
			room = existing
		}
	} else if err != nil {
		return err
	}

	users, err := s.store.ListUsers(ctx, s.roomID)
	if err != nil {
		return err
	}
	options, err := s.store.ListOptions(ctx, s.roomID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.room = room
	s.users = users
	s.options = options
	s.loading = false
	s.mu.Unlock()

	events, cancel := s.store.Subscribe(s.roomID)
	go s.run(events, cancel)

	s.started = true
	s.maybeElectAdmin(ctx)
	s.publish()
	return nil
}

// Stop tears down the subscription and all timers. Safe to call more
// than once and from any goroutine.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// run is the single event loop: store change events, the janitor
// ticker, and the empty-room debounce all land here.
func (s *Synchronizer) run(events <-chan store.Event, cancel func()) {
	defer cancel()

	sweep := s.clock.NewTicker(sweepInterval)
	defer sweep.Stop()

	var emptyTimer clockwork.Timer
	var emptyCh <-chan time.Time
	armDebounce := func() {
		if emptyTimer == nil {
			emptyTimer = s.clock.NewTimer(emptyRoomGrace)
			emptyCh = emptyTimer.Chan()
		}
	}
	stopDebounce := func() {
		if emptyTimer != nil {
			emptyTimer.Stop()
			emptyTimer, emptyCh = nil, nil
		}
	}
	defer stopDebounce()

	// A room can be empty from the moment it opens, with no users event
	// ever arriving to say so.
	if s.userCount() == 0 {
		armDebounce()
	}

	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			ctx := context.Background()
			switch ev.Kind {
			case store.EventRoom:
				if s.reloadRoom(ctx) {
					// Room document is gone; final empty snapshot, then
					// hand ourselves back to the owner.
					s.publish()
					if s.onClosed != nil {
						s.onClosed(s.roomID)
					}
					s.Stop()
					return
				}
			case store.EventUsers:
				s.reloadUsers(ctx)
				s.maybeElectAdmin(ctx)
				if s.userCount() == 0 {
					armDebounce()
				} else {
					stopDebounce()
				}
			case store.EventOptions:
				s.reloadOptions(ctx)
			}
			s.publish()

		case <-sweep.Chan():
			s.CleanupInactiveUsers(context.Background())

		case <-emptyCh:
			stopDebounce()
			s.CleanupEmptyRoom(context.Background())
		}
	}
}

func (s *Synchronizer) reloadRoom(ctx context.Context) (deleted bool) {
	room, err := s.store.GetRoom(ctx, s.roomID)
	if err == store.ErrNotFound {
		s.mu.Lock()
		s.room = nil
		s.mu.Unlock()
		return true
	}
	if err != nil {
		log.Printf("room %s reload failed: %v", s.roomID, err)
		return false
	}
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
	return false
}

func (s *Synchronizer) reloadUsers(ctx context.Context) {
	users, err := s.store.ListUsers(ctx, s.roomID)
	if err != nil {
		log.Printf("room %s users reload failed: %v", s.roomID, err)
		return
	}
	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
}

func (s *Synchronizer) reloadOptions(ctx context.Context) {
	options, err := s.store.ListOptions(ctx, s.roomID)
	if err != nil {
		log.Printf("room %s options reload failed: %v", s.roomID, err)
		return
	}
	s.mu.Lock()
	s.options = options
	s.mu.Unlock()
}

func (s *Synchronizer) userCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Snapshot returns a copy of the current mirrored state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Users:   append([]models.User(nil), s.users...),
		Options: append([]models.Option(nil), s.options...),
		Loading: s.loading,
	}
	if s.room != nil {
		room := *s.room
		snap.Room = &room
	}
	return snap
}

// Notify registers a snapshot listener and returns its cancel func.
func (s *Synchronizer) Notify(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Synchronizer) publish() {
	snap := s.Snapshot()
	s.mu.RLock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// --- Mutations ---------------------------------------------

// AddOption creates a new option and bumps room activity. Admin gating
// is the caller's concern; there is no server-side authority beyond
// the store itself.
func (s *Synchronizer) AddOption(ctx context.Context, text string) (*models.Option, error) {
	opt := &models.Option{
		ID:        uuid.NewString(),
		RoomID:    s.roomID,
		Text:      text,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.PutOption(ctx, opt); err != nil {
		return nil, err
	}
	if err := s.store.TouchRoom(ctx, s.roomID, s.clock.Now()); err != nil {
		log.Printf("room %s activity bump failed: %v", s.roomID, err)
	}
	return opt, nil
}

func (s *Synchronizer) DeleteOption(ctx context.Context, optionID string) error {
	if err := s.store.DeleteOption(ctx, s.roomID, optionID); err != nil {
		return err
	}
	return s.store.TouchRoom(ctx, s.roomID, s.clock.Now())
}

func (s *Synchronizer) ClearAllOptions(ctx context.Context) error {
	if err := s.store.DeleteAllOptions(ctx, s.roomID); err != nil {
		return err
	}
	return s.store.TouchRoom(ctx, s.roomID, s.clock.Now())
}

// MakeAdmin promotes a user under the exclusive policy: the transaction
// demotes everyone else, so concurrent promotions cannot leave the room
// with two admins.
func (s *Synchronizer) MakeAdmin(ctx context.Context, userID string) error {
	if err := s.store.PromoteSoleAdmin(ctx, s.roomID, userID); err != nil {
		return err
	}
	return s.store.TouchRoom(ctx, s.roomID, s.clock.Now())
}

// RemoveAdmin clears the flag. The auto-election rule will promote a
// random member on the next users update if nobody is left as admin.
func (s *Synchronizer) RemoveAdmin(ctx context.Context, userID string) error {
	if err := s.store.SetUserAdmin(ctx, s.roomID, userID, false); err != nil {
		return err
	}
	return s.store.TouchRoom(ctx, s.roomID, s.clock.Now())
}

// SelectResult draws one option uniformly at random and stores it as
// the room result. With zero options it is a no-op.
func (s *Synchronizer) SelectResult(ctx context.Context, resultType string) error {
	if resultType != models.ResultWinner && resultType != models.ResultLoser {
		return errors.New("rooms: unknown result type " + resultType)
	}
	s.mu.RLock()
	options := append([]models.Option(nil), s.options...)
	s.mu.RUnlock()
	if len(options) == 0 {
		return nil
	}
	picked := options[rand.Intn(len(options))]
	result := &models.ResultData{Type: resultType, OptionID: picked.ID}
	return s.store.SetRoomResult(ctx, s.roomID, result, s.clock.Now())
}

// RestartRoom clears result and teams so the room can run another draw.
func (s *Synchronizer) RestartRoom(ctx context.Context) error {
	return s.store.ClearRoomTransient(ctx, s.roomID, s.clock.Now())
}

// UpdateRoomTitle upserts the title; the room document does not need to
// exist yet.
func (s *Synchronizer) UpdateRoomTitle(ctx context.Context, title string) error {
	return s.store.SetRoomTitle(ctx, s.roomID, title, s.clock.Now())
}

// CreateRandomTeams shuffles the option texts and deals them
// round-robin into teamCount teams. Fewer than two options is a no-op.
func (s *Synchronizer) CreateRandomTeams(ctx context.Context, teamCount int, options []models.Option) error {
	if len(options) < 2 {
		return nil
	}
	if teamCount < 2 || teamCount > len(options) {
		return errors.New("rooms: team count must be between 2 and the option count")
	}

	texts := make([]string, len(options))
	for i, opt := range options {
		texts[i] = opt.Text
	}
	rand.Shuffle(len(texts), func(i, j int) {
		texts[i], texts[j] = texts[j], texts[i]
	})

	teams := make([]models.TeamData, teamCount)
	for i := range teams {
		teams[i] = models.TeamData{TeamNumber: i + 1, Members: []string{}}
	}
	for i, text := range texts {
		idx := i % teamCount
		teams[idx].Members = append(teams[idx].Members, text)
	}

	s.mu.RLock()
	created := 0
	if s.room != nil {
		created = s.room.TeamsCreatedCount
	}
	s.mu.RUnlock()

	return s.store.SetRoomTeams(ctx, s.roomID, teams, created+1, s.clock.Now())
}

// --- Janitors ----------------------------------------------

// CleanupInactiveUsers evicts users whose heartbeat went silent. Errors
// are logged; the sweep keeps running.
func (s *Synchronizer) CleanupInactiveUsers(ctx context.Context) {
	users, err := s.store.ListUsers(ctx, s.roomID)
	if err != nil {
		log.Printf("room %s inactive sweep failed: %v", s.roomID, err)
		return
	}
	cutoff := s.clock.Now().Add(-inactiveAfter)
	for _, u := range users {
		if u.LastSeen.Before(cutoff) {
			if err := s.store.DeleteUser(ctx, s.roomID, u.ID); err != nil {
				log.Printf("room %s could not evict %s: %v", s.roomID, u.ID, err)
				continue
			}
			log.Printf("room %s evicted inactive user %s", s.roomID, u.ID)
		}
	}
}

// CleanupEmptyRoom deletes the options and then the room itself once
// nobody is left. The store is re-checked so a rejoin inside the grace
// window wins.
func (s *Synchronizer) CleanupEmptyRoom(ctx context.Context) {
	users, err := s.store.ListUsers(ctx, s.roomID)
	if err != nil {
		log.Printf("room %s empty check failed: %v", s.roomID, err)
		return
	}
	if len(users) > 0 {
		return
	}
	if err := s.store.DeleteAllOptions(ctx, s.roomID); err != nil {
		log.Printf("room %s option cleanup failed: %v", s.roomID, err)
		return
	}
	if err := s.store.DeleteRoom(ctx, s.roomID); err != nil {
		log.Printf("room %s delete failed: %v", s.roomID, err)
		return
	}
	log.Printf("cleaned up empty room %s", s.roomID)
}

// maybeElectAdmin promotes a random member whenever the room has users
// but no admin, through the same exclusive path as manual promotion.
func (s *Synchronizer) maybeElectAdmin(ctx context.Context) {
	s.mu.RLock()
	users := append([]models.User(nil), s.users...)
	s.mu.RUnlock()
	if len(users) == 0 {
		return
	}
	for _, u := range users {
		if u.IsAdmin {
			return
		}
	}
	chosen := users[rand.Intn(len(users))]
	if err := s.store.PromoteSoleAdmin(ctx, s.roomID, chosen.ID); err != nil && err != store.ErrNotFound {
		log.Printf("room %s auto admin election failed: %v", s.roomID, err)
		return
	}
	log.Printf("room %s has no admin, promoted %s", s.roomID, chosen.Name)
}
