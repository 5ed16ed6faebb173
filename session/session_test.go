package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/omerhodo/hollypolly2/models"
	"github.com/omerhodo/hollypolly2/store"

	"github.com/jonboulle/clockwork"
)

func newTestManager() (*Manager, *store.Memory, *clockwork.FakeClock) {
	st := store.NewMemory()
	clock := clockwork.NewFakeClock()
	return NewManager(st, clock), st, clock
}

func TestInitializeUser(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a fresh user with defaults", func(t *testing.T) {
		m, st, clock := newTestManager()
		user, err := m.InitializeUser(ctx, "room1", nil, "", true, 1)
		if err != nil {
			t.Fatalf("initialize: %v", err)
		}
		if user.ID == "" {
			t.Fatal("expected a generated user id")
		}
		if want := "User " + user.ID[:4]; user.Name != want {
			t.Errorf("got default name %q, want %q", user.Name, want)
		}
		if !strings.Contains(user.Avatar, "seed=1") {
			t.Errorf("avatar not derived from join order: %q", user.Avatar)
		}
		if !user.IsAdmin {
			t.Error("first user should join as admin")
		}
		if user.RoomID != "room1" {
			t.Errorf("got room %q", user.RoomID)
		}
		if !user.JoinedAt.Equal(clock.Now()) || !user.LastSeen.Equal(clock.Now()) {
			t.Error("timestamps not taken from the clock")
		}

		stored, err := st.GetUser(ctx, "room1", user.ID)
		if err != nil {
			t.Fatalf("user not persisted: %v", err)
		}
		if stored.Name != user.Name {
			t.Errorf("stored name %q differs from returned %q", stored.Name, user.Name)
		}
	})

	t.Run("keeps a provided name", func(t *testing.T) {
		m, _, _ := newTestManager()
		user, err := m.InitializeUser(ctx, "room1", nil, "Alice", false, 2)
		if err != nil {
			t.Fatalf("initialize: %v", err)
		}
		if user.Name != "Alice" {
			t.Errorf("got name %q", user.Name)
		}
		if user.IsAdmin {
			t.Error("later joiners must not be admin")
		}
	})

	t.Run("adopts an existing user for the same room", func(t *testing.T) {
		m, _, _ := newTestManager()
		first, err := m.InitializeUser(ctx, "room1", nil, "Alice", true, 1)
		if err != nil {
			t.Fatalf("first join: %v", err)
		}

		local := &models.LocalUser{ID: first.ID, Name: first.Name, RoomID: "room1"}
		again, err := m.InitializeUser(ctx, "room1", local, "", false, 5)
		if err != nil {
			t.Fatalf("rejoin: %v", err)
		}
		if again.ID != first.ID {
			t.Errorf("rejoin created a new user: %s vs %s", again.ID, first.ID)
		}
		if again.Name != "Alice" {
			t.Errorf("rejoin lost the name: %q", again.Name)
		}
	})

	t.Run("identity for another room creates a new user", func(t *testing.T) {
		m, _, _ := newTestManager()
		first, err := m.InitializeUser(ctx, "roomA", nil, "Alice", true, 1)
		if err != nil {
			t.Fatalf("join roomA: %v", err)
		}

		local := &models.LocalUser{ID: first.ID, Name: first.Name, RoomID: "roomA"}
		other, err := m.InitializeUser(ctx, "roomB", local, "", true, 1)
		if err != nil {
			t.Fatalf("join roomB: %v", err)
		}
		if other.ID == first.ID {
			t.Error("identity leaked across rooms")
		}
		if other.RoomID != "roomB" {
			t.Errorf("got room %q", other.RoomID)
		}
	})

	t.Run("stale identity falls back to a fresh user", func(t *testing.T) {
		m, st, _ := newTestManager()
		first, err := m.InitializeUser(ctx, "room1", nil, "Alice", true, 1)
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := st.DeleteUser(ctx, "room1", first.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}

		local := &models.LocalUser{ID: first.ID, Name: first.Name, RoomID: "room1"}
		fresh, err := m.InitializeUser(ctx, "room1", local, "", false, 2)
		if err != nil {
			t.Fatalf("rejoin after cleanup: %v", err)
		}
		if fresh.ID == first.ID {
			t.Error("expected a new user after the old document was cleaned up")
		}
	})
}

func TestUpdateUserName(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()
	user, err := m.InitializeUser(ctx, "room1", nil, "Alice", true, 1)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	updated, err := m.UpdateUserName(ctx, "room1", user.ID, "Bob")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if updated.Name != "Bob" {
		t.Errorf("got name %q", updated.Name)
	}

	if _, err := m.UpdateUserName(ctx, "room1", "missing", "Eve"); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound renaming a missing user, got %v", err)
	}
}

func TestUpdateHeartbeat(t *testing.T) {
	ctx := context.Background()
	m, st, clock := newTestManager()
	user, err := m.InitializeUser(ctx, "room1", nil, "", true, 1)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	clock.Advance(45 * time.Second)
	m.UpdateHeartbeat(ctx, "room1", user.ID)

	stored, err := st.GetUser(ctx, "room1", user.ID)
	if err != nil {
		t.Fatalf("read user: %v", err)
	}
	if !stored.LastSeen.Equal(clock.Now()) {
		t.Errorf("last_seen not bumped: %v vs %v", stored.LastSeen, clock.Now())
	}
	if stored.JoinedAt.Equal(clock.Now()) {
		t.Error("joined_at must not move on heartbeat")
	}

	// A heartbeat for a user who was already evicted must not blow up.
	m.UpdateHeartbeat(ctx, "room1", "long-gone")
}

func TestRemoveUser(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager()
	user, err := m.InitializeUser(ctx, "room1", nil, "", true, 1)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := m.RemoveUser(ctx, "room1", user.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := st.GetUser(ctx, "room1", user.ID); err != store.ErrNotFound {
		t.Fatalf("user still present: %v", err)
	}
	if err := m.RemoveUser(ctx, "room1", user.ID); err != nil {
		t.Errorf("second remove should be a no-op, got %v", err)
	}
}
