package normalize

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/incident-etl/internal/model"
	"github.com/sells-group/incident-etl/pkg/cotrip"
)

func mapped(t *testing.T, id, geometry string) model.Feature {
	t.Helper()
	n := newTestNormalizer(t, model.ProfileFull)
	inc := incident(id, geometry)
	marker := 7.5
	inc.Properties.StartMarker = &marker
	f, err := n.Map(&inc)
	require.NoError(t, err)
	return f
}

func TestSplit_SingularPassesThrough(t *testing.T) {
	for _, g := range []string{
		`{"type":"Point","coordinates":[1,2]}`,
		`{"type":"LineString","coordinates":[[0,0],[1,1]]}`,
		`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`,
	} {
		f := mapped(t, "S1", g)
		out, err := Split(f)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "S1", out[0].ID)
		assert.Same(t, f.Geometry, out[0].Geometry)
	}
}

func TestSplit_MultiKinds(t *testing.T) {
	tests := []struct {
		name     string
		geometry string
		parts    int
		want     model.Kind
	}{
		{"multipoint", `{"type":"MultiPoint","coordinates":[[0,0],[1,1],[2,2]]}`, 3, model.KindPoint},
		{"multilinestring", `{"type":"MultiLineString","coordinates":[[[0,0],[1,1]],[[2,2],[3,3],[4,4]]]}`, 2, model.KindLineString},
		{"multipolygon", `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[5,5],[6,5],[6,6],[5,5]]],[[[9,9],[8,9],[8,8],[9,9]]]]}`, 3, model.KindPolygon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mapped(t, "M", tt.geometry)
			out, err := Split(f)
			require.NoError(t, err)
			require.Len(t, out, tt.parts)

			for i, part := range out {
				assert.Equal(t, fmt.Sprintf("M-%d", i), part.ID)
				k, ok := part.Kind()
				require.True(t, ok)
				assert.Equal(t, tt.want, k)
				assert.Equal(t, f.Label, part.Label)
				assert.Equal(t, f.Remarks, part.Remarks)
				assert.Equal(t, f.Metadata, part.Metadata)
			}
		})
	}
}

func collection(t *testing.T, gs ...geom.T) *geom.GeometryCollection {
	t.Helper()
	gc := geom.NewGeometryCollection()
	require.NoError(t, gc.Push(gs...))
	return gc
}

func TestSplit_CollectionPartsMixedLayouts(t *testing.T) {
	f := mapped(t, "C", `{"type":"Point","coordinates":[0,0]}`)
	f.Geometry = collection(t,
		geom.NewPointFlat(geom.XY, []float64{1, 2}),
		geom.NewPointFlat(geom.XYZ, []float64{3, 4, 5}),
	)

	out, err := Split(f)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "C-0", out[0].ID)
	assert.Equal(t, geom.Coord{1, 2}, out[0].Geometry.(*geom.Point).Coords())
	assert.Equal(t, geom.Coord{3, 4, 5}, out[1].Geometry.(*geom.Point).Coords())
}

func TestSplit_PartsInSourceOrder(t *testing.T) {
	f := mapped(t, "L", `{"type":"MultiLineString","coordinates":[[[0,0],[1,1]],[[2,2],[3,3],[4,4]]]}`)
	out, err := Split(f)
	require.NoError(t, err)

	first := out[0].Geometry.(*geom.LineString)
	second := out[1].Geometry.(*geom.LineString)
	assert.Equal(t, []geom.Coord{{0, 0}, {1, 1}}, first.Coords())
	assert.Equal(t, []geom.Coord{{2, 2}, {3, 3}, {4, 4}}, second.Coords())
}

func TestSplit_PartsShareNoState(t *testing.T) {
	f := mapped(t, "P", `{"type":"MultiPoint","coordinates":[[0,0],[1,1]]}`)
	out, err := Split(f)
	require.NoError(t, err)

	out[0].Geometry.(*geom.Point).FlatCoords()[0] = 99
	*out[0].Metadata.Details.StartMarker = 42
	out[0].Metadata.Details.RouteName = "US-6"

	assert.Equal(t, geom.Coord{1, 1}, out[1].Geometry.(*geom.Point).Coords())
	assert.Equal(t, []float64{0, 0, 1, 1}, f.Geometry.(*geom.MultiPoint).FlatCoords())
	assert.InDelta(t, 7.5, *out[1].Metadata.Details.StartMarker, 0.0001)
	assert.InDelta(t, 7.5, *f.Metadata.Details.StartMarker, 0.0001)
	assert.Equal(t, "I-70", out[1].Metadata.Details.RouteName)
}

func TestSplit_Rejects(t *testing.T) {
	tests := []struct {
		name string
		geom geom.T
	}{
		{"empty multipoint", geom.NewMultiPoint(geom.XY)},
		{"empty multilinestring", geom.NewMultiLineString(geom.XY)},
		{"empty multipolygon", geom.NewMultiPolygon(geom.XY)},
		{"empty geometry collection", geom.NewGeometryCollection()},
		{"collection with a multi part", collection(t, geom.NewMultiPointFlat(geom.XY, []float64{0, 0}))},
		{"collection mixing kinds", collection(t,
			geom.NewPointFlat(geom.XY, []float64{0, 0}),
			geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1}),
		)},
		{"nil geometry", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(model.Feature{ID: "R", Geometry: tt.geom})
			require.Error(t, err)
			assert.True(t, model.IsProtocol(err))
		})
	}
}

func TestNormalize_EmptyMultiGeometryIsProtocolError(t *testing.T) {
	n := newTestNormalizer(t, model.ProfileFull)
	in := []cotrip.Incident{incident("E", `{"type":"MultiLineString","coordinates":[]}`)}

	_, err := n.Normalize(context.Background(), in, model.AllKinds())
	require.Error(t, err)
	assert.True(t, model.IsProtocol(err))
}

func TestNormalize_MixedDimensionPartsSplit(t *testing.T) {
	n := newTestNormalizer(t, model.ProfileFull)
	in := []cotrip.Incident{incident("X2", `{"type":"MultiLineString","coordinates":[[[0,0],[1,1]],[[0,0,5],[1,1,5]]]}`)}

	out, err := n.Normalize(context.Background(), in, model.AllKinds())
	require.NoError(t, err)
	require.Len(t, out.Features, 2)

	first := out.Features[0].Geometry.(*geom.LineString)
	second := out.Features[1].Geometry.(*geom.LineString)
	assert.Equal(t, "X2-0", out.Features[0].ID)
	assert.Equal(t, "X2-1", out.Features[1].ID)
	assert.Equal(t, geom.XY, first.Layout())
	assert.Equal(t, geom.XYZ, second.Layout())
	assert.Equal(t, []float64{0, 0, 5, 1, 1, 5}, second.FlatCoords())
}

func TestNormalize_SourceGeometryCollectionIsProtocolError(t *testing.T) {
	n := newTestNormalizer(t, model.ProfileFull)
	in := []cotrip.Incident{incident("G", `{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[0,0]}]}`)}

	_, err := n.Normalize(context.Background(), in, model.AllKinds())
	require.Error(t, err)
	assert.True(t, model.IsProtocol(err))
}
