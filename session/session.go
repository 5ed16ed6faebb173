package session

import (
	"context"
	"fmt"
	"log"

	"github.com/omerhodo/hollypolly2/models"
	"github.com/omerhodo/hollypolly2/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Manager owns user lifecycle inside a room: join, rename, heartbeat,
// leave. Identity continuity across reloads comes from the signed local
// record the browser presents on join; the record is scoped to a single
// room and is never reused for another one.
type Manager struct {
	store store.Store
	clock clockwork.Clock
}

func NewManager(st store.Store, clock clockwork.Clock) *Manager {
	return &Manager{store: st, clock: clock}
}

// avatarFor builds a deterministic avatar from the join order, so
// avatars are visually distinct per join order rather than per user.
func avatarFor(userOrder int) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%d", userOrder)
}

// InitializeUser adopts the user document referenced by a presented
// local record when it belongs to this room and still exists; otherwise
// it creates a fresh user. Store errors propagate so the caller can
// surface them and let the user retry.
func (m *Manager) InitializeUser(ctx context.Context, roomID string, local *models.LocalUser, name string, isFirstUser bool, userOrder int) (*models.User, error) {
	if local != nil && local.RoomID == roomID {
		user, err := m.store.GetUser(ctx, roomID, local.ID)
		if err == nil {
			return user, nil
		}
		if err != store.ErrNotFound {
			return nil, err
		}
		// The document was cleaned up while the browser was away; fall
		// through and create a new one.
	}

	userID := uuid.NewString()
	userName := name
	if userName == "" {
		userName = "User " + userID[:4]
	}
	now := m.clock.Now()
	user := &models.User{
		ID:       userID,
		Name:     userName,
		Avatar:   avatarFor(userOrder),
		IsAdmin:  isFirstUser,
		RoomID:   roomID,
		JoinedAt: now,
		LastSeen: now,
	}
	if err := m.store.PutUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUserName renames a user and returns the updated document so the
// caller can re-issue the identity record when it renamed itself.
func (m *Manager) UpdateUserName(ctx context.Context, roomID, userID, newName string) (*models.User, error) {
	if err := m.store.SetUserName(ctx, roomID, userID, newName); err != nil {
		return nil, err
	}
	return m.store.GetUser(ctx, roomID, userID)
}

// UpdateHeartbeat bumps last_seen. Heartbeats are best effort: failures
// are logged and swallowed so they never disturb the session.
func (m *Manager) UpdateHeartbeat(ctx context.Context, roomID, userID string) {
	if err := m.store.SetUserLastSeen(ctx, roomID, userID, m.clock.Now()); err != nil && err != store.ErrNotFound {
		log.Printf("heartbeat update failed for %s/%s: %v", roomID, userID, err)
	}
}

// RemoveUser deletes the user document. Deleting an already removed
// user is a no-op.
func (m *Manager) RemoveUser(ctx context.Context, roomID, userID string) error {
	return m.store.DeleteUser(ctx, roomID, userID)
}
