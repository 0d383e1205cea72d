package meeting

import "strings"

// DefaultBaseURL is the conferencing namespace used when no override is
// configured. The room itself is hosted externally; this service only
// derives and hands out the address.
const DefaultBaseURL = "https://meet.mathmentor.app/instant"

// Resolver derives meeting room URLs from request identifiers. The
// derivation is a pure function of the id, so every party that knows the id
// computes the same address without coordination. The persisted copy on the
// request record is an optimization, never a precondition.
type Resolver struct {
	base string
}

// NewResolver constructs a resolver rooted at the provided base URL.
func NewResolver(base string) *Resolver {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Resolver{base: base}
}

// DeriveMeetingURL maps a request id to its meeting room URL. Distinct ids
// yield distinct URLs because the id is embedded verbatim as the room path.
func (r *Resolver) DeriveMeetingURL(requestID string) string {
	return r.base + "/" + requestID
}
