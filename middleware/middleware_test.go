package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/omerhodo/hollypolly2/models"

	"github.com/julienschmidt/httprouter"
)

func testUser() *models.User {
	return &models.User{
		ID:     "u-123",
		Name:   "Alice",
		Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=1",
		RoomID: "room-1",
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	token, err := IssueIdentity(testUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	local, err := ParseIdentity(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if local.ID != "u-123" || local.Name != "Alice" || local.RoomID != "room-1" {
		t.Errorf("claims did not survive the round trip: %+v", local)
	}
}

func TestParseIdentityRejectsBadTokens(t *testing.T) {
	if _, err := ParseIdentity(""); err == nil {
		t.Error("empty token accepted")
	}
	if _, err := ParseIdentity("not.a.jwt"); err == nil {
		t.Error("garbage token accepted")
	}

	token, err := IssueIdentity(testUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := ParseIdentity(tampered); err == nil {
		t.Error("tampered token accepted")
	}
}

func TestIdentityFromRequest(t *testing.T) {
	token, err := IssueIdentity(testUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/rooms/room-1", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		local := IdentityFromRequest(r)
		if local == nil || local.ID != "u-123" {
			t.Fatalf("got %+v", local)
		}
	})

	t.Run("token query parameter", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws/rooms/room-1?token="+token, nil)
		local := IdentityFromRequest(r)
		if local == nil || local.ID != "u-123" {
			t.Fatalf("got %+v", local)
		}
	})

	t.Run("malformed token treated as absent", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/rooms/room-1", nil)
		r.Header.Set("Authorization", "Bearer broken")
		if local := IdentityFromRequest(r); local != nil {
			t.Fatalf("got %+v", local)
		}
	})
}

func TestIdentifyAttachesToContext(t *testing.T) {
	token, err := IssueIdentity(testUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var seen *models.LocalUser
	handler := Identify(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		seen = LocalUserFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodPost, "/api/rooms/room-1/join", strings.NewReader("{}"))
	r.Header.Set("Authorization", "Bearer "+token)
	handler(httptest.NewRecorder(), r, nil)

	if seen == nil || seen.RoomID != "room-1" {
		t.Fatalf("identity not attached: %+v", seen)
	}

	seen = nil
	r = httptest.NewRequest(http.MethodPost, "/api/rooms/room-1/join", strings.NewReader("{}"))
	handler(httptest.NewRecorder(), r, nil)
	if seen != nil {
		t.Fatalf("identity attached without a token: %+v", seen)
	}
}
