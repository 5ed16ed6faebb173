package models

import "time"

// Result types for a draw.
const (
	ResultWinner = "winner"
	ResultLoser  = "loser"
)

type Room struct {
	ID                string      `json:"id" bson:"_id"`
	CreatedAt         time.Time   `json:"created_at" bson:"created_at"`
	LastActivity      time.Time   `json:"last_activity" bson:"last_activity"`
	Result            *ResultData `json:"result" bson:"result"`
	Title             string      `json:"title,omitempty" bson:"title,omitempty"`
	Teams             []TeamData  `json:"teams,omitempty" bson:"teams,omitempty"`
	TeamsCreatedCount int         `json:"teamsCreatedCount,omitempty" bson:"teams_created_count,omitempty"`
}

type User struct {
	ID       string    `json:"id" bson:"userid"`
	Name     string    `json:"name" bson:"name"`
	Avatar   string    `json:"avatar" bson:"avatar"`
	IsAdmin  bool      `json:"is_admin" bson:"is_admin"`
	RoomID   string    `json:"room_id" bson:"room_id"`
	JoinedAt time.Time `json:"joined_at" bson:"joined_at"`
	LastSeen time.Time `json:"last_seen" bson:"last_seen"`
}

type Option struct {
	ID        string    `json:"id" bson:"optionid"`
	RoomID    string    `json:"room_id" bson:"room_id"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type ResultData struct {
	Type     string `json:"type" bson:"type"`
	OptionID string `json:"option_id" bson:"option_id"`
}

type TeamData struct {
	TeamNumber int      `json:"teamNumber" bson:"team_number"`
	Members    []string `json:"members" bson:"members"`
}

// LocalUser is the identity record handed back to the browser so a
// reload can re-attach to the same user document. It is scoped to one
// room; a record for a different room never gets reused.
type LocalUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	RoomID string `json:"room_id"`
}
