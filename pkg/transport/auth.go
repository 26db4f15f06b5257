package transport

import (
	"encoding/base64"
	"net/http"
)

// Auth types understood by the registry clients. Which ones a given source
// accepts is up to the source.
const (
	AuthNone   = ""
	AuthBasic  = "basic"
	AuthBearer = "bearer"
	AuthToken  = "token"
)

// Auth holds credentials for one source.
type Auth struct {
	Type     string `toml:"type,omitempty" mapstructure:"type" json:"type,omitempty"`
	Token    string `toml:"token,omitempty" mapstructure:"token" json:"-"`
	Username string `toml:"username,omitempty" mapstructure:"username" json:"username,omitempty"`
	Password string `toml:"password,omitempty" mapstructure:"password" json:"-"`
}

// BasicHeader returns the Authorization value for username/password.
func BasicHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// BearerHeader returns the Authorization value for a bearer token.
func BearerHeader(token string) string {
	return "Bearer " + token
}

// TokenHeader returns the Authorization value for GitHub-style tokens.
func TokenHeader(token string) string {
	return "token " + token
}

// Headers is a small builder over http.Header so request headers read as
// a literal at call sites.
func Headers(kv ...string) http.Header {
	h := make(http.Header, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}
