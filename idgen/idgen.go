// Package idgen generates identifiers for resolved contexts and correction
// runs. The strategy is injected at construction so tests can use Sequence.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of time-sortable RFC 9562 v7 UUIDs.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID from gen ("ctx_", "run_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator: prefix1, prefix2, ...
func Sequence(prefix string) Generator {
	var n atomic.Uint64
	return func() string {
		return prefix + strconv.FormatUint(n.Add(1), 10)
	}
}

// Context is the default generator for resolved-context IDs.
var Context Generator = Prefixed("ctx_", UUIDv7())

// ParseUUID validates the UUID part of a possibly prefixed ID.
func ParseUUID(id, prefix string) (uuid.UUID, error) {
	if len(id) < len(prefix) || id[:len(prefix)] != prefix {
		return uuid.Nil, fmt.Errorf("idgen: %q lacks prefix %q", id, prefix)
	}
	u, err := uuid.Parse(id[len(prefix):])
	if err != nil {
		return uuid.Nil, fmt.Errorf("idgen: parse %q: %w", id, err)
	}
	return u, nil
}
