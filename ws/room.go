package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/omerhodo/hollypolly2/middleware"
	"github.com/omerhodo/hollypolly2/rooms"
	"github.com/omerhodo/hollypolly2/session"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	// Mirrors the 30s browser heartbeat; a pong doubles as a heartbeat.
	pingInterval = 30 * time.Second
	pongWait     = 75 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// inboundPayload represents what clients send us:
type inboundPayload struct {
	Action string `json:"action"` // "heartbeat"
}

// ServeRoom attaches a browser to the room's live snapshot feed. The
// connection doubles as presence: pongs bump the user's heartbeat and a
// closed socket triggers a best-effort removal of the user document,
// the server-side stand-in for unload cleanup. The inactivity sweep
// stays the authoritative eviction mechanism.
func ServeRoom(hub *Hub, registry *rooms.Registry, sessions *session.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")

		sync, err := registry.Open(r.Context(), roomID, "")
		if err != nil {
			http.Error(w, "room unavailable", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade:", err)
			return
		}

		client := &Client{
			Send: make(chan []byte, 256),
			Room: roomID,
		}
		if local := middleware.IdentityFromRequest(r); local != nil && local.RoomID == roomID {
			client.UserID = local.ID
		}

		// Current snapshot first, then every published change.
		if data, err := json.Marshal(sync.Snapshot()); err == nil {
			client.Send <- data
		}

		hub.Register(client)
		go writePump(conn, client)
		go readPump(conn, client, hub, sessions)
	}
}

func writePump(conn *websocket.Conn, c *Client) {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn, c *Client, hub *Hub, sessions *session.Manager) {
	defer func() {
		hub.Unregister(c)
		conn.Close()
		if c.UserID != "" {
			// Socket gone means the tab is likely gone. Best effort; the
			// inactivity sweep catches whatever this misses.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sessions.RemoveUser(ctx, c.Room, c.UserID); err != nil {
				log.Println("disconnect cleanup failed:", err)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.UserID != "" {
			sessions.UpdateHeartbeat(context.Background(), c.Room, c.UserID)
		}
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var in inboundPayload
		if err := json.Unmarshal(raw, &in); err != nil {
			log.Println("invalid payload:", err)
			continue
		}
		switch in.Action {
		case "heartbeat":
			if c.UserID != "" {
				sessions.UpdateHeartbeat(context.Background(), c.Room, c.UserID)
			}
		default:
			log.Println("unknown action:", in.Action)
		}
	}
}
