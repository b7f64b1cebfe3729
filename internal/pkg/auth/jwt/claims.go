package jwt

import "github.com/golang-jwt/jwt"

// Token kinds carried in Payload.Kind.
const (
	KindUser  = "user"
	KindGuest = "guest"
)

// Payload is the JWT claim set issued by the auth endpoints.
// A user token carries UserID; a guest token carries only DisplayName.
type Payload struct {
	jwt.StandardClaims

	// Kind is KindUser or KindGuest.
	Kind string `json:"kind"`

	// UserID is the registered user's id. Empty for guests.
	UserID string `json:"uid,omitempty"`

	// DisplayName is the name a guest chose when the token was issued.
	DisplayName string `json:"name,omitempty"`
}
