package rooms

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/omerhodo/hollypolly2/models"
	"github.com/omerhodo/hollypolly2/store"
	"github.com/omerhodo/hollypolly2/utils"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// CreateRoom makes a fresh room with a generated id. The home page
// calls this before redirecting into the room.
func CreateRoom(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			Title string `json:"title"`
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}

		roomID := uuid.NewString()
		sync, err := registry.Open(r.Context(), roomID, body.Title)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create room")
			return
		}
		utils.RespondWithJSON(w, http.StatusCreated, sync.Snapshot())
	}
}

// GetRoom opens the room on first access (create-if-absent) and returns
// the current snapshot.
func GetRoom(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, sync.Snapshot())
	}
}

func UpdateTitle(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid title")
			return
		}
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		if err := sync.UpdateRoomTitle(r.Context(), body.Title); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update title")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

func AddOption(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "Option text required")
			return
		}
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		opt, err := sync.AddOption(r.Context(), body.Text)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to add option")
			return
		}
		utils.RespondWithJSON(w, http.StatusCreated, opt)
	}
}

func DeleteOption(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		if err := sync.DeleteOption(r.Context(), ps.ByName("optionid")); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete option")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

func ClearOptions(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		if err := sync.ClearAllOptions(r.Context()); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to clear options")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

func MakeAdmin(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		err = sync.MakeAdmin(r.Context(), ps.ByName("userid"))
		if err == store.ErrNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to promote user")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

func RemoveAdmin(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		err = sync.RemoveAdmin(r.Context(), ps.ByName("userid"))
		if err == store.ErrNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to demote user")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

// Draw picks a random option as winner or loser.
func Draw(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body struct {
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
			return
		}
		if body.Type != models.ResultWinner && body.Type != models.ResultLoser {
			utils.RespondWithError(w, http.StatusBadRequest, "Result type must be winner or loser")
			return
		}
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		if err := sync.SelectResult(r.Context(), body.Type); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to draw")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

func CreateTeams(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body struct {
			TeamCount int `json:"teamCount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
			return
		}
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		snap := sync.Snapshot()
		if err := sync.CreateRandomTeams(r.Context(), body.TeamCount, snap.Options); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

// Restart clears the result and teams for another round. Restarting a
// room that was already cleaned up is treated as done.
func Restart(registry *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sync, err := registry.Open(r.Context(), ps.ByName("roomid"), "")
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open room")
			return
		}
		if err := sync.RestartRoom(r.Context()); err != nil && err != store.ErrNotFound {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to restart room")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	}
}

// ShareQR renders the room link as a PNG QR code for the share dialog.
func ShareQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		base := os.Getenv("APP_BASE_URL")
		if base == "" {
			base = "http://localhost:3000"
		}
		link := base + "/room/" + ps.ByName("roomid")

		qrPNG, err := qrcode.Encode(link, qrcode.Medium, 256)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to render QR code")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(qrPNG)
	}
}
