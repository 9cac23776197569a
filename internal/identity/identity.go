package identity

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthenticated = errors.New("unauthenticated")

const DefaultHeader = "X-User-ID"

// Provider yields the opaque identity of the player behind a request.
type Provider interface {
	Identify(r *http.Request) (string, error)
}

type ProviderFunc func(r *http.Request) (string, error)

func (f ProviderFunc) Identify(r *http.Request) (string, error) { return f(r) }

// Header trusts an identity header set by an upstream gateway.
type Header struct {
	// Name defaults to X-User-ID.
	Name string
	// ServiceToken, when set, must arrive as "Authorization: Bearer <token>" so only the gateway
	// can assert identities.
	ServiceToken string
	// AllowQuery accepts ?identity= when the header is absent. Development only.
	AllowQuery bool
}

func (h Header) Identify(r *http.Request) (string, error) {
	if h.ServiceToken != "" {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if auth == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.ServiceToken)) != 1 {
			return "", ErrUnauthenticated
		}
	}

	name := h.Name
	if name == "" {
		name = DefaultHeader
	}
	id := strings.TrimSpace(r.Header.Get(name))
	if id == "" && h.AllowQuery {
		id = strings.TrimSpace(r.URL.Query().Get("identity"))
	}
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}
