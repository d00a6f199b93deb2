package token

import (
	"encoding/json"
	"net/url"
	"os"

	"github.com/rs/zerolog"
)

// Recognized query string parameter names, tried in order.
var urlParamNames = []string{"auth_token", "access_token"}

// Source yields a token from one candidate location.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Token returns the token and true when the source has one.
	Token() (string, bool)
}

// Resolver tries sources in order until one yields a non-empty token.
type Resolver struct {
	sources []Source
	log     zerolog.Logger
}

// NewResolver creates a resolver over the given sources. Source order
// is resolution order.
func NewResolver(log zerolog.Logger, sources ...Source) *Resolver {
	return &Resolver{sources: sources, log: log}
}

// Resolve returns the first available token. It has no side effects
// beyond logging and never returns an error.
func (r *Resolver) Resolve() (string, bool) {
	for _, src := range r.sources {
		tok, ok := src.Token()
		if ok && tok != "" {
			r.log.Debug().Str("source", src.Name()).Msg("auth token resolved")
			return tok, true
		}
		r.log.Debug().Str("source", src.Name()).Msg("no token from source")
	}
	r.log.Warn().Msg("no auth token available from any source")
	return "", false
}

// StaticSource is a token handed to the client at construction time,
// the equivalent of a server-rendered embedded token.
type StaticSource string

// Name identifies the source.
func (StaticSource) Name() string { return "embedded" }

// Token returns the static token.
func (s StaticSource) Token() (string, bool) {
	return string(s), s != ""
}

// URLSource extracts a token from a launch URL's query string under
// one of the recognized parameter names.
type URLSource struct {
	// RawURL is the full launch URL including the query string.
	RawURL string
}

// Name identifies the source.
func (URLSource) Name() string { return "url" }

// Token parses the query string. An unparseable URL yields nothing.
func (s URLSource) Token() (string, bool) {
	if s.RawURL == "" {
		return "", false
	}
	u, err := url.Parse(s.RawURL)
	if err != nil {
		return "", false
	}
	q := u.Query()
	for _, name := range urlParamNames {
		if tok := q.Get(name); tok != "" {
			return tok, true
		}
	}
	return "", false
}

// SessionSource asks an embedding host's already-authenticated session
// for a token. Only reachable when the host exposes one; a nil or
// failing fetch yields nothing.
type SessionSource struct {
	// Fetch returns the host session's token.
	Fetch func() (string, error)
}

// Name identifies the source.
func (SessionSource) Name() string { return "parent-session" }

// Token calls the fetch hook, swallowing its error.
func (s SessionSource) Token() (string, bool) {
	if s.Fetch == nil {
		return "", false
	}
	tok, err := s.Fetch()
	if err != nil || tok == "" {
		return "", false
	}
	return tok, true
}

// FileSource reads a persisted session document, a JSON object with an
// access_token field, from local storage.
type FileSource struct {
	// Path is the session document location.
	Path string
}

// Name identifies the source.
func (FileSource) Name() string { return "storage" }

// Token reads and parses the document. Missing or malformed documents
// yield nothing.
func (s FileSource) Token() (string, bool) {
	if s.Path == "" {
		return "", false
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", false
	}
	var doc struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false
	}
	return doc.AccessToken, doc.AccessToken != ""
}
