// Package geo loads the canal network and cadastral parcel layers and turns
// each GeoJSON feature into a renderable feature with its popup pre-rendered.
package geo

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/consorcio-sanramon/aforo-live/metrics"
)

const (
	CanalsName  = "Red de Canales"
	ParcelsName = "Catastro Parcelario"

	// NeutralColor is used for canals whose system is not in the palette.
	NeutralColor = "#808080"
)

var systemColors = map[string]string{
	"San Ramón - Las Pircas": "#FF5733",
	"Santos Lugares":         "#2ECC71",
	"Las Ceibas":             "#3498DB",
	"El Mollar":              "#F333FF",
	"El Pedregal":            "#000000",
}

// SystemColor returns the stroke color for a canal system. Matching is exact.
func SystemColor(system string) string {
	if c, ok := systemColors[system]; ok {
		return c
	}
	return NeutralColor
}

// Feature is a geometry plus what the map needs to draw it.
type Feature struct {
	Geometry geom.T
	Category string
	Popup    string
}

// Layer is one optional overlay.
type Layer struct {
	Name     string
	Show     bool
	Features []Feature
	ETag     string
}

// Len is nil-safe.
func (l *Layer) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Features)
}

// LoadCanals reads the canal network. A missing file returns (nil, nil).
func LoadCanals(fsys fs.FS, path string) (*Layer, error) {
	return load(fsys, path, canalsKind)
}

// LoadParcels reads the cadastral parcels. A missing file returns (nil, nil).
// The layer starts hidden.
func LoadParcels(fsys fs.FS, path string) (*Layer, error) {
	return load(fsys, path, parcelsKind)
}

// layerKind is how one overlay is named, shown and converted.
type layerKind struct {
	name    string
	show    bool
	convert func(*geojson.Feature) (Feature, error)
}

var (
	canalsKind  = layerKind{name: CanalsName, show: true, convert: canalFeature}
	parcelsKind = layerKind{name: ParcelsName, show: false, convert: parcelFeature}
)

func load(fsys fs.FS, path string, kind layerKind) (*Layer, error) {
	data, err := readLayerFile(fsys, path, kind.name)
	if data == nil || err != nil {
		return nil, err
	}
	return decode(data, path, kind)
}

// readLayerFile returns nil data and no error when the file does not exist.
func readLayerFile(fsys fs.FS, path, name string) ([]byte, error) {
	data, err := fs.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		metrics.GeometryLoadErrorsTotal.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func decode(data []byte, path string, kind layerKind) (*Layer, error) {
	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil {
		metrics.GeometryLoadErrorsTotal.WithLabelValues(kind.name).Inc()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	layer := &Layer{
		Name:     kind.name,
		Show:     kind.show,
		Features: make([]Feature, 0, len(fc.Features)),
		ETag:     contentETag(data),
	}
	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		feature, err := kind.convert(f)
		if err != nil {
			metrics.GeometryLoadErrorsTotal.WithLabelValues(kind.name).Inc()
			return nil, fmt.Errorf("%s feature %d: %w", path, i, err)
		}
		layer.Features = append(layer.Features, feature)
	}

	metrics.GeometryFeaturesTotal.WithLabelValues(kind.name).Set(float64(len(layer.Features)))
	return layer, nil
}

func canalFeature(f *geojson.Feature) (Feature, error) {
	system := property(f.Properties, "sistema", "")
	popup, err := renderPopup(featurePopup, popupData{
		Header: property(f.Properties, "nombre", "Canal"),
		Color:  canalHeaderColor,
		Rows: []popupRow{
			{"Sistema", property(f.Properties, "sistema", "-")},
			{"Longitud", property(f.Properties, "longi", "-") + " m"},
		},
	})
	if err != nil {
		return Feature{}, err
	}
	return Feature{Geometry: f.Geometry, Category: system, Popup: popup}, nil
}

func parcelFeature(f *geojson.Feature) (Feature, error) {
	area, _ := number(f.Properties["shape_area"])
	popup, err := renderPopup(featurePopup, popupData{
		Header: "Finca: " + property(f.Properties, "finca", "S/N"),
		Color:  parcelHeaderColor,
		Rows: []popupRow{
			{"Catastro", property(f.Properties, "catastro", "-")},
			{"Superficie", Hectares(area) + " Ha"},
		},
	})
	if err != nil {
		return Feature{}, err
	}
	return Feature{Geometry: f.Geometry, Popup: popup}, nil
}

// Hectares converts square meters to hectares rounded to two decimals.
// Whole values keep one decimal place, so 120000 renders as "12.0".
func Hectares(squareMeters float64) string {
	ha := math.Round(squareMeters/10000*100) / 100
	if math.IsNaN(ha) || math.IsInf(ha, 0) {
		ha = 0
	}
	return formatDecimal(ha)
}

// property returns a property as display text. Missing and null values fall
// back to def.
func property(props map[string]interface{}, key, def string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatFloat(t, 'f', 0, 64)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatDecimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s
		}
	}
	return s + ".0"
}
