package auth

const (
	ScopeOpenID     = "openid"
	ScopeProfile    = "profile"
	ScopeEmail      = "email"
	ScopeIdeasRead  = "ideas:read"
	ScopeIdeasWrite = "ideas:write"
)

// AllScopes is the scope set requested by the Swagger UI PKCE login.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeIdeasRead,
	ScopeIdeasWrite,
}

// Headers carrying the actor when the server sits behind a trusted gateway.
const (
	HeaderActorID     = "X-Actor-ID"
	HeaderActorRole   = "X-Actor-Role"
	HeaderCollegeID   = "X-College-ID"
	HeaderIncubatorID = "X-Incubator-ID"
)
