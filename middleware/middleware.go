package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/omerhodo/hollypolly2/globals"
	"github.com/omerhodo/hollypolly2/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// IdentityClaims is the signed local identity record handed to the
// browser after joining a room. It is a continuity mechanism across
// reloads, not an authorization grant.
type IdentityClaims struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	RoomID string `json:"room_id"`
	jwt.RegisteredClaims
}

// IssueIdentity signs an identity token for the given user.
func IssueIdentity(user *models.User) (string, error) {
	claims := &IdentityClaims{
		Name:   user.Name,
		Avatar: user.Avatar,
		RoomID: user.RoomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * 24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(globals.JwtSecret)
}

// ParseIdentity validates a raw token and returns the identity record.
func ParseIdentity(tokenString string) (*models.LocalUser, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return globals.JwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return &models.LocalUser{
		ID:     claims.Subject,
		Name:   claims.Name,
		Avatar: claims.Avatar,
		RoomID: claims.RoomID,
	}, nil
}

// IdentityFromRequest extracts the identity record from the
// Authorization header or, for websocket upgrades, the token query
// parameter. A malformed token is treated as absent, which restarts the
// join flow.
func IdentityFromRequest(r *http.Request) *models.LocalUser {
	tokenString := r.Header.Get("Authorization")
	if strings.HasPrefix(tokenString, "Bearer ") {
		tokenString = tokenString[7:]
	}
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	local, err := ParseIdentity(tokenString)
	if err != nil {
		return nil
	}
	return local
}

// Identify attaches the caller's identity record to the request context
// when a valid token is present. It never rejects: a room can always be
// visited fresh.
func Identify(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if websocket.IsWebSocketUpgrade(r) {
			next(w, r, ps)
			return
		}
		if local := IdentityFromRequest(r); local != nil {
			r = r.WithContext(context.WithValue(r.Context(), globals.IdentityKey, local))
		}
		next(w, r, ps)
	}
}

// LocalUserFromContext returns the identity attached by Identify, or nil.
func LocalUserFromContext(ctx context.Context) *models.LocalUser {
	local, _ := ctx.Value(globals.IdentityKey).(*models.LocalUser)
	return local
}
