package model

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Kind is one of the canonical single-part geometry kinds an output feature may carry.
type Kind string

const (
	KindPoint      Kind = "Point"
	KindLineString Kind = "LineString"
	KindPolygon    Kind = "Polygon"
)

// Kinds lists the canonical kinds in a stable order.
var Kinds = []Kind{KindPoint, KindLineString, KindPolygon}

// ParseKind converts a GeoJSON type name into a canonical Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPoint, KindLineString, KindPolygon:
		return Kind(s), nil
	default:
		return "", eris.Errorf("unknown geometry kind: %q (valid: Point, LineString, Polygon)", s)
	}
}

// KindOf returns the canonical kind of g. Multi-part and collection geometries
// report false.
func KindOf(g geom.T) (Kind, bool) {
	switch g.(type) {
	case *geom.Point:
		return KindPoint, true
	case *geom.LineString:
		return KindLineString, true
	case *geom.Polygon:
		return KindPolygon, true
	default:
		return "", false
	}
}

// KindSet is the allowlist of geometry kinds retained in the output.
// The zero value allows nothing.
type KindSet map[Kind]bool

// NewKindSet builds a KindSet from the three independent allow flags.
func NewKindSet(point, lineString, polygon bool) KindSet {
	s := make(KindSet, 3)
	if point {
		s[KindPoint] = true
	}
	if lineString {
		s[KindLineString] = true
	}
	if polygon {
		s[KindPolygon] = true
	}
	return s
}

// AllKinds returns a KindSet allowing every canonical kind.
func AllKinds() KindSet {
	return NewKindSet(true, true, true)
}

// Has reports whether k is allowed.
func (s KindSet) Has(k Kind) bool {
	return s[k]
}

// Empty reports whether the set allows no kind at all.
func (s KindSet) Empty() bool {
	for _, ok := range s {
		if ok {
			return false
		}
	}
	return true
}

// Names returns the allowed kinds as sorted strings, for logging.
func (s KindSet) Names() []string {
	out := make([]string, 0, len(s))
	for k, ok := range s {
		if ok {
			out = append(out, string(k))
		}
	}
	sort.Strings(out)
	return out
}
