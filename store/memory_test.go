package store

import (
	"context"
	"testing"
	"time"

	"github.com/omerhodo/hollypolly2/models"
)

func seedRoom(t *testing.T, m *Memory, id string) {
	t.Helper()
	err := m.CreateRoom(context.Background(), &models.Room{
		ID:           id,
		CreatedAt:    time.Unix(1000, 0),
		LastActivity: time.Unix(1000, 0),
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
}

func TestRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.GetRoom(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	seedRoom(t, m, "r1")
	room, err := m.GetRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Mutating the returned copy must not leak into the store.
	room.Title = "mutated"
	again, _ := m.GetRoom(ctx, "r1")
	if again.Title != "" {
		t.Error("GetRoom returned a shared reference")
	}

	if err := m.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteRoom(ctx, "r1"); err != nil {
		t.Errorf("delete must be idempotent, got %v", err)
	}
}

func TestSetRoomTitleUpserts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	at := time.Unix(2000, 0)
	if err := m.SetRoomTitle(ctx, "fresh", "pizza", at); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	room, err := m.GetRoom(ctx, "fresh")
	if err != nil {
		t.Fatalf("room not created by title upsert: %v", err)
	}
	if room.Title != "pizza" || !room.LastActivity.Equal(at) {
		t.Errorf("got %+v", room)
	}
}

func TestClearRoomTransient(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedRoom(t, m, "r1")

	at := time.Unix(3000, 0)
	if err := m.SetRoomResult(ctx, "r1", &models.ResultData{Type: models.ResultWinner, OptionID: "o1"}, at); err != nil {
		t.Fatalf("set result: %v", err)
	}
	teams := []models.TeamData{{TeamNumber: 1, Members: []string{"a"}}, {TeamNumber: 2, Members: []string{"b"}}}
	if err := m.SetRoomTeams(ctx, "r1", teams, 1, at); err != nil {
		t.Fatalf("set teams: %v", err)
	}

	if err := m.ClearRoomTransient(ctx, "r1", at.Add(time.Minute)); err != nil {
		t.Fatalf("clear: %v", err)
	}
	room, _ := m.GetRoom(ctx, "r1")
	if room.Result != nil || room.Teams != nil || room.TeamsCreatedCount != 0 {
		t.Errorf("transient state survived: %+v", room)
	}

	if err := m.SetRoomResult(ctx, "missing", nil, at); err != ErrNotFound {
		t.Errorf("expected ErrNotFound on missing room, got %v", err)
	}
}

func TestPromoteSoleAdmin(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedRoom(t, m, "r1")
	for i, id := range []string{"u1", "u2", "u3"} {
		err := m.PutUser(ctx, &models.User{
			ID:       id,
			RoomID:   "r1",
			IsAdmin:  i == 0,
			JoinedAt: time.Unix(int64(1000+i), 0),
			LastSeen: time.Unix(int64(1000+i), 0),
		})
		if err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	if err := m.PromoteSoleAdmin(ctx, "r1", "u3"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	users, _ := m.ListUsers(ctx, "r1")
	for _, u := range users {
		if u.IsAdmin != (u.ID == "u3") {
			t.Errorf("user %s admin=%v after promotion", u.ID, u.IsAdmin)
		}
	}

	if err := m.PromoteSoleAdmin(ctx, "r1", "ghost"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for missing user, got %v", err)
	}
	// The failed promotion must not have demoted the current admin.
	u3, _ := m.GetUser(ctx, "r1", "u3")
	if !u3.IsAdmin {
		t.Error("failed promotion demoted the existing admin")
	}
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedRoom(t, m, "r1")

	base := time.Unix(5000, 0)
	for i, id := range []string{"c", "a", "b"} {
		err := m.PutUser(ctx, &models.User{
			ID:       id,
			RoomID:   "r1",
			JoinedAt: base.Add(time.Duration(len("cab")-i) * time.Second),
			LastSeen: base,
		})
		if err != nil {
			t.Fatalf("put user: %v", err)
		}
		err = m.PutOption(ctx, &models.Option{
			ID:        id,
			RoomID:    "r1",
			Text:      id,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("put option: %v", err)
		}
	}

	users, _ := m.ListUsers(ctx, "r1")
	if users[0].ID != "b" || users[1].ID != "a" || users[2].ID != "c" {
		t.Errorf("users not ordered by join time: %v", []string{users[0].ID, users[1].ID, users[2].ID})
	}

	opts, _ := m.ListOptions(ctx, "r1")
	if opts[0].ID != "c" || opts[1].ID != "a" || opts[2].ID != "b" {
		t.Errorf("options not ordered by creation time: %v", []string{opts[0].ID, opts[1].ID, opts[2].ID})
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedRoom(t, m, "r1")
	seedRoom(t, m, "r2")

	events, cancel := m.Subscribe("r1")
	defer cancel()

	if err := m.PutUser(ctx, &models.User{ID: "u1", RoomID: "r1"}); err != nil {
		t.Fatalf("put user: %v", err)
	}
	select {
	case ev := <-events:
		if ev.RoomID != "r1" || ev.Kind != EventUsers {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event for user change")
	}

	// Changes in other rooms must not reach this subscription.
	if err := m.PutOption(ctx, &models.Option{ID: "o1", RoomID: "r2"}); err != nil {
		t.Fatalf("put option: %v", err)
	}
	select {
	case ev := <-events:
		t.Fatalf("received foreign event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	cancel() // safe to call twice
	// Events after cancel are dropped, not delivered or blocked on.
	if err := m.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
