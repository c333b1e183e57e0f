package assess

import "strings"

// TokenSource supplies the bearer token attached to every request. An empty
// token means the Authorization header is omitted entirely; the server is
// expected to reject unauthenticated calls on its own.
type TokenSource interface {
	Token() string
}

// StaticTokenSource returns the same token for every request, mirroring a
// token store populated once at login.
type StaticTokenSource struct {
	token string
}

func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: strings.TrimSpace(token)}
}

func (s *StaticTokenSource) Token() string { return s.token }

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func() string

func (f TokenSourceFunc) Token() string { return f() }
