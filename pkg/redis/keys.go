package redis

import "strings"

// Keyspace builds colon separated keys under one namespace.
type Keyspace struct {
	Namespace string
}

// DefaultKeyspace prefixes every FarmLink key with "fl".
var DefaultKeyspace = Keyspace{Namespace: "fl"}

// IdempotencyKey names a stored checkout response or delivery claim.
func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.join("idempotency", scope, id)
}

// RateLimitKey names a fixed-window counter.
func (k Keyspace) RateLimitKey(scope string) string {
	return k.join("rate_limit", scope)
}

// LockKey names a mutual-exclusion lock.
func (k Keyspace) LockKey(name string) string {
	return k.join("lock", name)
}

func (k Keyspace) join(parts ...string) string {
	ns := k.Namespace
	if ns == "" {
		ns = DefaultKeyspace.Namespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
