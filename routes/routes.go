package routes

import (
	"github.com/omerhodo/hollypolly2/middleware"
	"github.com/omerhodo/hollypolly2/ratelim"
	"github.com/omerhodo/hollypolly2/rdx"
	"github.com/omerhodo/hollypolly2/rooms"
	"github.com/omerhodo/hollypolly2/session"
	"github.com/omerhodo/hollypolly2/ws"

	"github.com/julienschmidt/httprouter"
)

// AddRoomRoutes wires the room lifecycle and mutation endpoints. Every
// handler opens the room on first access; admin-only enablement is a UI
// concern and not enforced here.
func AddRoomRoutes(router *httprouter.Router, registry *rooms.Registry, rl *ratelim.RateLimiter) {
	router.POST("/api/rooms", rl.Limit(rooms.CreateRoom(registry)))
	router.GET("/api/rooms/:roomid", middleware.Identify(rooms.GetRoom(registry)))
	router.PUT("/api/rooms/:roomid/title", middleware.Identify(rooms.UpdateTitle(registry)))

	router.POST("/api/rooms/:roomid/options", middleware.Identify(rooms.AddOption(registry)))
	router.DELETE("/api/rooms/:roomid/options", middleware.Identify(rooms.ClearOptions(registry)))
	router.DELETE("/api/rooms/:roomid/options/:optionid", middleware.Identify(rooms.DeleteOption(registry)))

	router.POST("/api/rooms/:roomid/draw", middleware.Identify(rooms.Draw(registry)))
	router.POST("/api/rooms/:roomid/teams", middleware.Identify(rooms.CreateTeams(registry)))
	router.POST("/api/rooms/:roomid/restart", middleware.Identify(rooms.Restart(registry)))

	router.GET("/api/rooms/:roomid/share", rooms.ShareQR())
}

// AddSessionRoutes wires user lifecycle endpoints.
func AddSessionRoutes(router *httprouter.Router, registry *rooms.Registry, manager *session.Manager, joins *rdx.JoinCounter, rl *ratelim.RateLimiter) {
	router.POST("/api/rooms/:roomid/join", rl.Limit(middleware.Identify(session.JoinRoom(registry, manager, joins))))
	router.POST("/api/rooms/:roomid/leave", middleware.Identify(session.LeaveRoom(manager)))
	router.POST("/api/rooms/:roomid/heartbeat", middleware.Identify(session.Heartbeat(manager)))
	router.PUT("/api/rooms/:roomid/users/:userid/name", middleware.Identify(session.UpdateUserName(manager)))
	router.POST("/api/rooms/:roomid/users/:userid/admin", middleware.Identify(rooms.MakeAdmin(registry)))
	router.DELETE("/api/rooms/:roomid/users/:userid/admin", middleware.Identify(rooms.RemoveAdmin(registry)))
	router.DELETE("/api/rooms/:roomid/users/:userid", middleware.Identify(session.KickUser(manager)))
}

// AddLiveRoutes wires the websocket snapshot feed.
func AddLiveRoutes(router *httprouter.Router, hub *ws.Hub, registry *rooms.Registry, manager *session.Manager) {
	router.GET("/ws/rooms/:roomid", ws.ServeRoom(hub, registry, manager))
}
