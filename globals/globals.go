package globals

import (
	"os"
)

var JwtSecret = []byte(jwtSecretFromEnv())

func jwtSecretFromEnv() string {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return s
	}
	return "hollypolly_dev_secret" // override via JWT_SECRET in production
}

// Context keys
type ContextKey string

const IdentityKey ContextKey = "identity"
