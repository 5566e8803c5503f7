package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Key identifies a logical upstream query: provider, operation and the
// operation's parameters. Two keys with the same parameters are identical
// regardless of map insertion order.
type Key struct {
	Provider  string
	Operation string
	Params    map[string]string
}

// NewKey builds a key. The params map is not copied; callers must not
// mutate it afterwards.
func NewKey(provider, operation string, params map[string]string) Key {
	return Key{Provider: provider, Operation: operation, Params: params}
}

// ID returns the canonical cache/flight identity of the key:
// provider:operation with sorted parameters and a short hash suffix.
func (k Key) ID() string {
	canonical := k.String()
	h := sha256.Sum256([]byte(canonical))
	return canonical + "#" + hex.EncodeToString(h[:])[:12]
}

// String returns the readable canonical form, parameters sorted by name.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Provider)
	b.WriteString(":")
	b.WriteString(k.Operation)

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(":")
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(k.Params[name])
		}
	}
	return b.String()
}
