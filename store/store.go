package store

import (
	"context"
	"errors"
	"time"

	"github.com/omerhodo/hollypolly2/models"
)

// ErrNotFound is returned when a document does not exist. Deletes never
// return it so that cleanup races stay idempotent.
var ErrNotFound = errors.New("store: document not found")

// Change kinds delivered on a room subscription.
const (
	EventRoom    = "room"
	EventUsers   = "users"
	EventOptions = "options"
)

// Event tells a subscriber that something under the room changed. It
// carries no payload; listeners re-read the affected collection, which
// also means bursts of writes may be observed as a single coalesced
// notification.
type Event struct {
	RoomID string
	Kind   string
}

// Store is the document store used for room state. Documents live under
// rooms/{roomId}, rooms/{roomId}/users/{userId} and
// rooms/{roomId}/options/{optionId}. A single-document write is atomic;
// PromoteSoleAdmin is the only multi-document atomic operation.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	CreateRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, roomID string) error
	// SetRoomTitle and TouchRoom use merge semantics: they succeed even
	// when the room document is missing.
	SetRoomTitle(ctx context.Context, roomID, title string, at time.Time) error
	TouchRoom(ctx context.Context, roomID string, at time.Time) error
	SetRoomResult(ctx context.Context, roomID string, result *models.ResultData, at time.Time) error
	SetRoomTeams(ctx context.Context, roomID string, teams []models.TeamData, createdCount int, at time.Time) error
	// ClearRoomTransient removes result, teams and the teams counter.
	ClearRoomTransient(ctx context.Context, roomID string, at time.Time) error

	GetUser(ctx context.Context, roomID, userID string) (*models.User, error)
	PutUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, roomID, userID string) error
	ListUsers(ctx context.Context, roomID string) ([]models.User, error)
	SetUserName(ctx context.Context, roomID, userID, name string) error
	SetUserLastSeen(ctx context.Context, roomID, userID string, at time.Time) error
	SetUserAdmin(ctx context.Context, roomID, userID string, admin bool) error
	// PromoteSoleAdmin flips the target to admin and every other user in
	// the room to non-admin in one transaction, so at most one admin
	// exists at a time.
	PromoteSoleAdmin(ctx context.Context, roomID, userID string) error

	PutOption(ctx context.Context, opt *models.Option) error
	DeleteOption(ctx context.Context, roomID, optionID string) error
	DeleteAllOptions(ctx context.Context, roomID string) error
	ListOptions(ctx context.Context, roomID string) ([]models.Option, error)

	// Subscribe delivers change events for one room until cancel is
	// called. Cancel is safe to call more than once.
	Subscribe(roomID string) (<-chan Event, func())
}
