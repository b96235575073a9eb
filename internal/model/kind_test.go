package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestNewKindSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		point, ls, pg bool
		want          []string
	}{
		{"all", true, true, true, []string{"LineString", "Point", "Polygon"}},
		{"point only", true, false, false, []string{"Point"}},
		{"lines and polygons", false, true, true, []string{"LineString", "Polygon"}},
		{"none", false, false, false, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewKindSet(tt.point, tt.ls, tt.pg)
			assert.Equal(t, tt.want, s.Names())
			assert.Equal(t, len(tt.want) == 0, s.Empty())
			assert.Equal(t, tt.point, s.Has(KindPoint))
			assert.Equal(t, tt.ls, s.Has(KindLineString))
			assert.Equal(t, tt.pg, s.Has(KindPolygon))
		})
	}
}

func TestKindSet_ZeroValueAllowsNothing(t *testing.T) {
	var s KindSet
	assert.True(t, s.Empty())
	assert.False(t, s.Has(KindPoint))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	k, ok := KindOf(geom.NewPointFlat(geom.XY, []float64{1, 2}))
	assert.True(t, ok)
	assert.Equal(t, KindPoint, k)

	k, ok = KindOf(geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1}))
	assert.True(t, ok)
	assert.Equal(t, KindLineString, k)

	k, ok = KindOf(geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8}))
	assert.True(t, ok)
	assert.Equal(t, KindPolygon, k)

	_, ok = KindOf(geom.NewMultiPointFlat(geom.XY, []float64{0, 0, 1, 1}))
	assert.False(t, ok)

	_, ok = KindOf(nil)
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("LineString")
	require.NoError(t, err)
	assert.Equal(t, KindLineString, k)

	_, err = ParseKind("MultiPoint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown geometry kind")
}
