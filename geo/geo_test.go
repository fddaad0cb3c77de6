package geo

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

const canalsJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "LineString", "coordinates": [[-65.30, -27.50], [-65.31, -27.51]]},
      "properties": {"nombre": "Canal Norte", "sistema": "Santos Lugares", "longi": 1250}
    },
    {
      "type": "Feature",
      "geometry": {"type": "LineString", "coordinates": [[-65.32, -27.52], [-65.33, -27.53]]},
      "properties": {"sistema": "Sistema Nuevo"}
    }
  ]
}`

const parcelsJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Polygon", "coordinates": [[[-65.3, -27.5], [-65.4, -27.5], [-65.4, -27.6], [-65.3, -27.5]]]},
      "properties": {"finca": "La <Esperanza>", "catastro": "12-345", "shape_area": 123456}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Polygon", "coordinates": [[[-65.3, -27.5], [-65.4, -27.5], [-65.4, -27.6], [-65.3, -27.5]]]},
      "properties": {"finca": null}
    }
  ]
}`

func TestSystemColor(t *testing.T) {
	tests := map[string]string{
		"San Ramón - Las Pircas": "#FF5733",
		"Santos Lugares":         "#2ECC71",
		"Las Ceibas":             "#3498DB",
		"El Mollar":              "#F333FF",
		"El Pedregal":            "#000000",
		"santos lugares":         "#808080",
		"":                       "#808080",
		"Sistema Nuevo":          "#808080",
	}
	for system, want := range tests {
		assert.Equal(t, want, SystemColor(system), system)
	}
}

func TestLoadCanals(t *testing.T) {
	fsys := fstest.MapFS{"canales.geojson": {Data: []byte(canalsJSON)}}

	layer, err := LoadCanals(fsys, "canales.geojson")
	require.NoError(t, err)
	require.NotNil(t, layer)

	assert.Equal(t, CanalsName, layer.Name)
	assert.True(t, layer.Show)
	assert.NotEmpty(t, layer.ETag)
	require.Len(t, layer.Features, 2)

	first := layer.Features[0]
	assert.Equal(t, "Santos Lugares", first.Category)
	assert.IsType(t, &geom.LineString{}, first.Geometry)
	assert.Contains(t, first.Popup, "Canal Norte")
	assert.Contains(t, first.Popup, "background:#1E3A8A")
	assert.Contains(t, first.Popup, "<b>Sistema:</b></td><td style=\"text-align:right;\">Santos Lugares</td>")
	assert.Contains(t, first.Popup, "1250 m")

	second := layer.Features[1]
	assert.Equal(t, "Sistema Nuevo", second.Category)
	assert.Contains(t, second.Popup, ">Canal</div>")
	assert.Contains(t, second.Popup, "- m")
}

func TestLoadParcels(t *testing.T) {
	fsys := fstest.MapFS{"catastro.geojson": {Data: []byte(parcelsJSON)}}

	layer, err := LoadParcels(fsys, "catastro.geojson")
	require.NoError(t, err)
	require.NotNil(t, layer)

	assert.Equal(t, ParcelsName, layer.Name)
	assert.False(t, layer.Show, "parcels start hidden")
	require.Len(t, layer.Features, 2)

	first := layer.Features[0].Popup
	assert.Contains(t, first, "background:#E67E22")
	assert.Contains(t, first, "Finca: La &lt;Esperanza&gt;")
	assert.Contains(t, first, "12-345")
	assert.Contains(t, first, "12.35 Ha")

	second := layer.Features[1].Popup
	assert.Contains(t, second, "Finca: S/N")
	assert.Contains(t, second, "0.0 Ha")
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	layer, err := LoadParcels(fstest.MapFS{}, "catastro.geojson")
	assert.NoError(t, err)
	assert.Nil(t, layer)
	assert.Equal(t, 0, layer.Len())
}

func TestLoad_MalformedFile(t *testing.T) {
	tests := map[string]string{
		"not json":       "{not json",
		"wrong type":     `{"type": "Feature", "geometry": null, "properties": {}}`,
		"bad coordinate": `{"type": "FeatureCollection", "features": [{"type": "Feature", "geometry": {"type": "Point", "coordinates": "x"}, "properties": {}}]}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{"canales.geojson": {Data: []byte(data)}}
			layer, err := LoadCanals(fsys, "canales.geojson")
			assert.Error(t, err)
			assert.Nil(t, layer)
		})
	}
}

func TestHectares(t *testing.T) {
	tests := map[float64]string{
		0:         "0.0",
		120000:    "12.0",
		123456:    "12.35",
		5000:      "0.5",
		987654321: "98765.43",
	}
	for in, want := range tests {
		assert.Equal(t, want, Hectares(in), "%v", in)
	}
}

func TestProperty(t *testing.T) {
	props := map[string]interface{}{
		"text":  "Canal Sur",
		"whole": float64(1250),
		"frac":  12.5,
		"bool":  true,
		"null":  nil,
	}
	assert.Equal(t, "Canal Sur", property(props, "text", "-"))
	assert.Equal(t, "1250", property(props, "whole", "-"))
	assert.Equal(t, "12.5", property(props, "frac", "-"))
	assert.Equal(t, "true", property(props, "bool", "-"))
	assert.Equal(t, "-", property(props, "null", "-"))
	assert.Equal(t, "-", property(props, "missing", "-"))
	assert.Equal(t, "-", property(nil, "missing", "-"))
}

func TestSource_Reload(t *testing.T) {
	fsys := fstest.MapFS{"canales.geojson": {Data: []byte(canalsJSON)}}
	src := NewSource(fsys, "canales.geojson", "catastro.geojson")

	set := src.Reload()
	require.NotNil(t, set.Canals)
	assert.Nil(t, set.Parcels)
	assert.Equal(t, []string{CanalsName}, set.Names())
	assert.Equal(t, set, src.Current())

	etag := set.ETag()
	assert.Contains(t, etag, ".-")

	fsys["catastro.geojson"] = &fstest.MapFile{Data: []byte(parcelsJSON)}
	updated := src.Reload()
	require.NotNil(t, updated.Parcels)
	assert.NotEqual(t, etag, updated.ETag())
}

func TestSource_MalformedLayerOmitted(t *testing.T) {
	fsys := fstest.MapFS{
		"canales.geojson":  {Data: []byte("{broken")},
		"catastro.geojson": {Data: []byte(parcelsJSON)},
	}
	set := NewSource(fsys, "canales.geojson", "catastro.geojson").Reload()
	assert.Nil(t, set.Canals)
	assert.NotNil(t, set.Parcels)
}

func TestSource_ReloadFollowsDisk(t *testing.T) {
	fsys := fstest.MapFS{"catastro.geojson": {Data: []byte(parcelsJSON)}}
	src := NewSource(fsys, "canales.geojson", "catastro.geojson")

	first := src.Reload()
	require.NotNil(t, first.Parcels)
	assert.Nil(t, first.Canals)

	// unchanged content is not decoded again
	again := src.Reload()
	assert.Same(t, first.Parcels, again.Parcels)

	delete(fsys, "catastro.geojson")
	fsys["canales.geojson"] = &fstest.MapFile{Data: []byte(canalsJSON)}

	set := src.Reload()
	assert.Nil(t, set.Parcels)
	require.NotNil(t, set.Canals)
	assert.Equal(t, []string{CanalsName}, src.Current().Names())
}

func TestSource_MalformedLayerRecovers(t *testing.T) {
	fsys := fstest.MapFS{"canales.geojson": {Data: []byte("{broken")}}
	src := NewSource(fsys, "canales.geojson", "catastro.geojson")

	assert.Nil(t, src.Reload().Canals)
	assert.Nil(t, src.Reload().Canals)

	fsys["canales.geojson"] = &fstest.MapFile{Data: []byte(canalsJSON)}
	set := src.Reload()
	require.NotNil(t, set.Canals)
	assert.Positive(t, set.Canals.Len())
}

func TestLoadCanals_QGISExportShapes(t *testing.T) {
	fsys := fstest.MapFS{"canales.geojson": {Data: []byte(`{
  "type": "FeatureCollection",
  "name": "canales",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:OGC:1.3:CRS84"}},
  "features": [
    {"type": "Feature", "id": 1, "properties": {"nombre": "Canal Norte", "sistema": "Las Ceibas"},
     "geometry": {"type": "LineString", "coordinates": [[-65.30, -27.50], [-65.31, -27.51]]}},
    {"type": "Feature", "id": 2, "properties": {"nombre": "Sin trazado"}, "geometry": null}
  ]}`)}}

	layer, err := LoadCanals(fsys, "canales.geojson")
	require.NoError(t, err)
	require.NotNil(t, layer)
	assert.Equal(t, 2, layer.Len())
	assert.Equal(t, "Las Ceibas", layer.Features[0].Category)
	assert.Equal(t, "#3498DB", SystemColor(layer.Features[0].Category))
	assert.Nil(t, layer.Features[1].Geometry)
}
