package identity

import (
	"errors"
	"net/http"
	"strings"
	"sync"
)

var (
	// ErrUnauthenticated indicates the request carried no usable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Role distinguishes the two participant kinds this engine cares about.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

// User is the resolved caller identity. Authentication itself lives in an
// external collaborator; this service only needs the id and the role.
type User struct {
	ID   string
	Role Role
}

// Resolver extracts the calling user from an incoming request.
type Resolver interface {
	Resolve(r *http.Request) (User, error)
}

// GatewayResolver trusts identity headers injected by the authenticating
// proxy in front of this service.
type GatewayResolver struct {
	UserHeader string
	RoleHeader string
}

// NewGatewayResolver builds a resolver with the conventional header names.
func NewGatewayResolver() *GatewayResolver {
	return &GatewayResolver{UserHeader: "X-User-Id", RoleHeader: "X-User-Role"}
}

// Resolve reads the trusted identity headers.
func (g *GatewayResolver) Resolve(r *http.Request) (User, error) {
	id := strings.TrimSpace(r.Header.Get(g.UserHeader))
	role := Role(strings.TrimSpace(strings.ToLower(r.Header.Get(g.RoleHeader))))
	if id == "" || (role != RoleStudent && role != RoleTutor) {
		return User{}, ErrUnauthenticated
	}
	return User{ID: id, Role: role}, nil
}

// StaticResolver maps fixed bearer tokens to users. Used in development and
// in tests, where no gateway fronts the service.
type StaticResolver struct {
	mu     sync.RWMutex
	tokens map[string]User
}

// NewStaticResolver builds a resolver over a fixed token table.
func NewStaticResolver(tokens map[string]User) *StaticResolver {
	if tokens == nil {
		tokens = make(map[string]User)
	}
	return &StaticResolver{tokens: tokens}
}

// Add registers a token at runtime. Useful for tests.
func (s *StaticResolver) Add(token string, user User) {
	s.mu.Lock()
	s.tokens[token] = user
	s.mu.Unlock()
}

// Resolve matches the bearer token against the table.
func (s *StaticResolver) Resolve(r *http.Request) (User, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return User{}, ErrUnauthenticated
	}

	s.mu.RLock()
	user, found := s.tokens[strings.TrimSpace(token)]
	s.mu.RUnlock()
	if !found {
		return User{}, ErrUnauthenticated
	}
	return user, nil
}

var _ Resolver = (*GatewayResolver)(nil)
var _ Resolver = (*StaticResolver)(nil)
