package authz

import (
	"path"
	"strings"
)

// ResourceClass names a catalog entity type.
type ResourceClass string

const (
	ClassAuthor       ResourceClass = "author"
	ClassBook         ResourceClass = "book"
	ClassBookInstance ResourceClass = "bookinstance"
	ClassGenre        ResourceClass = "genre"
)

// CatalogPrefix is the route prefix owned by the catalog.
const CatalogPrefix = "/catalog"

// Classes lists every catalog resource class.
func Classes() []ResourceClass {
	return []ResourceClass{ClassAuthor, ClassBook, ClassBookInstance, ClassGenre}
}

func lookupClass(segment string) (ResourceClass, bool) {
	for _, c := range Classes() {
		if strings.EqualFold(segment, string(c)) {
			return c, true
		}
	}
	return "", false
}

// Target is the catalog operation a request path addresses.
type Target struct {
	Class      ResourceClass
	InstanceID string
	Operation  Operation
}

// Classify maps a request path to the catalog operation it performs. The
// second result is false when the path is not a catalog instance path; such
// requests are left to the router.
//
// Rules, first match wins, all anchored at /catalog/<class>/:
//
//	<id>/delete, <id>/update -> that verb on <id>
//	create                   -> create, no instance
//	<id>                     -> read on <id>
//
// Matching is by path prefix, so trailing segments never weaken the
// classification of what precedes them. p must be the path the router
// matches; encoded separators stay inside their segment.
func Classify(p string) (Target, bool) {
	if p == "" {
		return Target{}, false
	}
	p = path.Clean("/" + p)
	rest, ok := strings.CutPrefix(p, CatalogPrefix+"/")
	if !ok {
		return Target{}, false
	}
	segs := strings.Split(rest, "/")
	if len(segs) < 2 || segs[1] == "" {
		return Target{}, false
	}
	class, ok := lookupClass(segs[0])
	if !ok {
		return Target{}, false
	}
	id := segs[1]

	if len(segs) >= 3 {
		if op, ok := parseVerb(segs[2]); ok && (op == OpUpdate || op == OpDelete) {
			return Target{Class: class, InstanceID: id, Operation: op}, true
		}
	}
	if op, ok := parseVerb(id); ok && op == OpCreate {
		return Target{Class: class, Operation: OpCreate}, true
	}
	return Target{Class: class, InstanceID: id, Operation: OpRead}, true
}
