// Package blob provides object storage for uploaded and generated artifacts.
package blob

import (
	"fmt"
	"strings"
)

// namespacePrefix is the scheme marker for owner-namespaced keys. Every key
// written by this system is namespaced; anything else in the bucket predates
// multi-tenancy and is a legacy key.
const namespacePrefix = "u/"

// Key is an object key tagged with its scheme. The tag is decided once, when
// the key is constructed or parsed at a trust boundary, and carried through
// instead of being re-inferred from string prefixes at each use.
type Key struct {
	owner  string
	path   string
	legacy bool
}

// Namespaced builds a key under the given owner's namespace.
func Namespaced(owner, path string) Key {
	return Key{owner: owner, path: strings.TrimPrefix(path, "/")}
}

// Legacy wraps a pre-namespacing key. Legacy keys are reachable only through
// signed capabilities, never through authenticated namespace matching.
func Legacy(path string) Key {
	return Key{path: strings.TrimPrefix(path, "/"), legacy: true}
}

// ParseKey classifies a raw key string from the wire or from storage. Keys of
// the form "u/<owner>/<path>" are namespaced; everything else is legacy.
func ParseKey(raw string) Key {
	raw = strings.TrimPrefix(raw, "/")
	if rest, ok := strings.CutPrefix(raw, namespacePrefix); ok {
		owner, path, found := strings.Cut(rest, "/")
		if found && owner != "" && path != "" {
			return Key{owner: owner, path: path}
		}
	}
	return Key{path: raw, legacy: true}
}

// IsLegacy reports whether the key predates owner namespacing.
func (k Key) IsLegacy() bool { return k.legacy }

// Owner returns the owning identity for namespaced keys, "" for legacy keys.
func (k Key) Owner() string { return k.owner }

// OwnedBy reports whether the key is namespaced under the given identity.
// Always false for legacy keys.
func (k Key) OwnedBy(owner string) bool {
	return !k.legacy && owner != "" && k.owner == owner
}

// IsZero reports whether the key is empty.
func (k Key) IsZero() bool { return k.owner == "" && k.path == "" }

// String returns the storage form of the key.
func (k Key) String() string {
	if k.legacy {
		return k.path
	}
	return fmt.Sprintf("%s%s/%s", namespacePrefix, k.owner, k.path)
}
