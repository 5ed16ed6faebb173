package session

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/omerhodo/hollypolly2/middleware"
	"github.com/omerhodo/hollypolly2/rdx"
	"github.com/omerhodo/hollypolly2/rooms"
	"github.com/omerhodo/hollypolly2/store"
	"github.com/omerhodo/hollypolly2/utils"

	"github.com/julienschmidt/httprouter"
)

// JoinRoom runs the entry flow: open the room, resolve or create the
// user, self-register the entered name as an option, and hand back the
// signed identity record. A first joiner also sets the room title when
// one was entered.
func JoinRoom(registry *rooms.Registry, manager *Manager, joins *rdx.JoinCounter) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")

		var body struct {
			Name  string `json:"name"`
			Title string `json:"title"`
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}

		sync, err := registry.Open(r.Context(), roomID, "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		snap := sync.Snapshot()
		isFirstUser := len(snap.Users) == 0

		userOrder := len(snap.Users) + 1
		if n, err := joins.Next(r.Context(), roomID); err == nil {
			userOrder = int(n)
		} else {
			// The counter only seeds the avatar; fall back to list order.
			log.Println("join counter unavailable:", err)
		}

		local := middleware.LocalUserFromContext(r.Context())
		user, err := manager.InitializeUser(r.Context(), roomID, local, body.Name, isFirstUser, userOrder)
		if err != nil {
			// Surfaced so the entry form can reopen and retry.
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to join room")
			return
		}

		adopted := local != nil && local.ID == user.ID
		if !adopted && body.Name != "" {
			if _, err := sync.AddOption(r.Context(), body.Name); err != nil {
				log.Println("self option registration failed:", err)
			}
		}
		if isFirstUser && body.Title != "" {
			if err := sync.UpdateRoomTitle(r.Context(), body.Title); err != nil {
				log.Println("room title update failed:", err)
			}
		}

		token, err := middleware.IssueIdentity(user)
		if err != nil {
			log.Println("identity token issue failed:", err)
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"user": user, "token": token})
	}
}

// LeaveRoom removes the caller's own user document.
func LeaveRoom(manager *Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		local := middleware.LocalUserFromContext(r.Context())
		if local == nil || local.RoomID != roomID {
			utils.RespondWithError(w, http.StatusUnauthorized, "No identity for this room")
			return
		}
		if err := manager.RemoveUser(r.Context(), roomID, local.ID); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to leave room")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

// KickUser removes any user document by id. Admin gating is a UI
// concern; the data layer trusts its caller.
func KickUser(manager *Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := manager.RemoveUser(r.Context(), ps.ByName("roomid"), ps.ByName("userid")); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to remove user")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

// Heartbeat bumps the caller's last_seen and always answers 200.
func Heartbeat(manager *Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if local := middleware.LocalUserFromContext(r.Context()); local != nil && local.RoomID == roomID {
			manager.UpdateHeartbeat(r.Context(), roomID, local.ID)
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

// UpdateUserName renames a user. When the caller renamed itself the
// response carries a re-issued identity token mirroring the change.
func UpdateUserName(manager *Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		userID := ps.ByName("userid")

		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "Name required")
			return
		}

		user, err := manager.UpdateUserName(r.Context(), roomID, userID, body.Name)
		if err == store.ErrNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to rename user")
			return
		}

		resp := utils.M{"user": user}
		if local := middleware.LocalUserFromContext(r.Context()); local != nil && local.ID == userID {
			if token, err := middleware.IssueIdentity(user); err == nil {
				resp["token"] = token
			} else {
				log.Println("identity token issue failed:", err)
			}
		}
		utils.RespondWithJSON(w, http.StatusOK, resp)
	}
}
