package record

import (
	"path"
	"strings"
)

// ResourceType is the kind of resource a claim covers.
type ResourceType string

const (
	ResourceFile      ResourceType = "file"
	ResourceDirectory ResourceType = "directory"
)

// ClaimedResource identifies one resource under coordination. Identity is
// (type, normalized path). A directory resource overlaps any file or nested
// directory resource whose path lies beneath it.
type ClaimedResource struct {
	Type ResourceType `json:"type"`
	Path string       `json:"path"`
}

// Normalize returns the resource with its path in canonical form: forward
// slashes, no trailing slash, no "./" segments. Paths are treated as opaque
// workspace-relative names; no content sanitization is performed.
func (r ClaimedResource) Normalize() ClaimedResource {
	r.Path = NormalizePath(r.Path)
	return r
}

// NormalizePath cleans a resource path for identity comparison.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimSuffix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// Overlaps reports whether two resources contend for the same underlying
// state under directory/file containment. Disjoint paths never overlap.
func Overlaps(a, b ClaimedResource) bool {
	pa := NormalizePath(a.Path)
	pb := NormalizePath(b.Path)
	if pa == pb {
		return true
	}
	if a.Type == ResourceDirectory && pathUnder(pb, pa) {
		return true
	}
	if b.Type == ResourceDirectory && pathUnder(pa, pb) {
		return true
	}
	return false
}

// AnyOverlap reports whether any resource in a overlaps any resource in b,
// returning the first overlapping pair found.
func AnyOverlap(a, b []ClaimedResource) (ClaimedResource, bool) {
	for _, ra := range a {
		for _, rb := range b {
			if Overlaps(ra, rb) {
				return rb, true
			}
		}
	}
	return ClaimedResource{}, false
}

// ModesConflict reports whether two access modes exclude each other.
// Concurrent readers are compatible; any writer excludes everyone else.
func ModesConflict(a, b Mode) bool {
	return a == ModeWrite || b == ModeWrite
}

// pathUnder reports whether child lies strictly beneath parent.
func pathUnder(child, parent string) bool {
	if parent == "" {
		return child != ""
	}
	return strings.HasPrefix(child, parent+"/")
}

// NormalizeResources returns a copy of rs with every path normalized.
func NormalizeResources(rs []ClaimedResource) []ClaimedResource {
	out := make([]ClaimedResource, len(rs))
	for i, r := range rs {
		out[i] = r.Normalize()
	}
	return out
}
