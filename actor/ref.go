// Package actor implements the per-process actor kernel: actor identity,
// lifecycle, mailboxes, and the create_actor/destroy_actor/send/tell/has_actor
// operations that sit on top of the router and envelope packages.
package actor

import "strings"

// Ref is the opaque handle identifying a live actor: a uid unique within
// its owning pool, the pool's endpoint string, and a proxy_version used to
// invalidate routing caches after a restart. Equality is structural over
// (uid, endpoint); ProxyVersion is advisory and excluded from Equals.
type Ref struct {
	UID          string
	Endpoint     string
	ProxyVersion uint64
}

// NewRef builds a Ref for uid on endpoint with proxy version 0.
func NewRef(uid, endpoint string) Ref {
	return Ref{UID: uid, Endpoint: endpoint}
}

// String renders the canonical "endpoint/uid" textual form.
func (r Ref) String() string {
	var b strings.Builder
	b.Grow(len(r.Endpoint) + 1 + len(r.UID))
	b.WriteString(r.Endpoint)
	b.WriteByte('/')
	b.WriteString(r.UID)
	return b.String()
}

// IsZero reports whether r is the zero Ref (no uid, no endpoint).
func (r Ref) IsZero() bool {
	return r.UID == "" && r.Endpoint == ""
}

// Equals compares uid and endpoint only, per the structural-equality rule.
func (r Ref) Equals(other Ref) bool {
	return r.UID == other.UID && r.Endpoint == other.Endpoint
}

// WithProxyVersion returns a copy of r with ProxyVersion set to v, used by
// the kernel to bump routing-cache generation after a restart under the
// same uid.
func (r Ref) WithProxyVersion(v uint64) Ref {
	r.ProxyVersion = v
	return r
}
