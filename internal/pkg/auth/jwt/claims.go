package jwt

import "github.com/golang-jwt/jwt"

// Roles known to the network. Only RoleMentor is checked by this service.
const (
	RoleWorker    = "worker"
	RoleMentor    = "mentor"
	RoleManager   = "manager"
	RoleRecruiter = "recruiter"
	RoleAdmin     = "admin"
)

// Payload is the JWT claim set issued by the network's auth service.
type Payload struct {
	jwt.StandardClaims

	// ID is the user's numeric id in the network.
	ID int64 `json:"id"`

	// Role is the user's role, e.g. "worker" or "mentor".
	Role string `json:"role"`
}
