// Package mapview builds the view model for the dashboard map: where it is
// centered, which tiles and overlays it has, and one marker per station.
package mapview

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/consorcio-sanramon/aforo-live/geo"
	"github.com/consorcio-sanramon/aforo-live/store"
)

// ErrNoStations means there is nothing to center the map on.
var ErrNoStations = errors.New("no stations to map")

const (
	DefaultZoom   = 13
	DefaultHeight = 700

	MarkerActive   = "blue"
	MarkerInactive = "gray"

	popupMaxWidth = 250
)

// LatLng is a WGS84 position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TileLayer is a base map. Exactly one is active.
type TileLayer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"maxZoom"`
	Active      bool   `json:"active"`
}

// PathStyle mirrors Leaflet path options. An empty Color means each feature
// carries its own in the "color" property.
type PathStyle struct {
	Color       string  `json:"color,omitempty"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
}

// Overlay is a toggleable GeoJSON layer. Data is a FeatureCollection whose
// features carry "popup" and "color" properties.
type Overlay struct {
	Name  string          `json:"name"`
	Show  bool            `json:"show"`
	Style PathStyle       `json:"style"`
	Data  json.RawMessage `json:"data"`
}

// Icon is an awesome-markers icon.
type Icon struct {
	Color  string `json:"color"`
	Name   string `json:"icon"`
	Prefix string `json:"prefix"`
}

// Marker is one station pin.
type Marker struct {
	Code          string          `json:"code"`
	Position      LatLng          `json:"position"`
	Tooltip       string          `json:"tooltip"`
	Popup         string          `json:"popup"`
	PopupMaxWidth int             `json:"popupMaxWidth"`
	Icon          Icon            `json:"icon"`
	Recent        []store.Reading `json:"recent"`
}

// LayerControl places the base/overlay toggle.
type LayerControl struct {
	Position  string `json:"position"`
	Collapsed bool   `json:"collapsed"`
}

// Map is everything the page needs to draw the map.
type Map struct {
	Center       LatLng       `json:"center"`
	Zoom         int          `json:"zoom"`
	Height       int          `json:"height"`
	BaseLayers   []TileLayer  `json:"baseLayers"`
	Overlays     []Overlay    `json:"overlays"`
	Markers      []Marker     `json:"markers"`
	LayerControl LayerControl `json:"layerControl"`
}

// BaseLayers are the two mutually exclusive tile sources, satellite first.
func BaseLayers() []TileLayer {
	return []TileLayer{
		{
			Name:        "Satélite",
			URL:         "https://mt1.google.com/vt/lyrs=s&x={x}&y={y}&z={z}",
			Attribution: "Google Satélite",
			MaxZoom:     20,
			Active:      true,
		},
		{
			Name:        "Mapa Calles (OSM)",
			URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
			MaxZoom:     19,
		},
	}
}

var (
	canalStyle  = PathStyle{Weight: 4, Opacity: 0.8}
	parcelStyle = PathStyle{Color: "#E67E22", Weight: 1, FillColor: "#F39C12", FillOpacity: 0.1}
)

// Build assembles the map. It fails with ErrNoStations before touching any
// coordinates when the snapshot has no stations. Either layer may be nil.
func Build(snap store.Snapshot, canals, parcels *geo.Layer) (*Map, error) {
	if len(snap.Stations) == 0 {
		return nil, ErrNoStations
	}

	m := &Map{
		Center:       centroid(snap.Stations),
		Zoom:         DefaultZoom,
		Height:       DefaultHeight,
		BaseLayers:   BaseLayers(),
		Overlays:     []Overlay{},
		LayerControl: LayerControl{Position: "topright", Collapsed: false},
	}

	if canals != nil {
		overlay, err := newOverlay(canals, canalStyle, func(f geo.Feature) string {
			return geo.SystemColor(f.Category)
		})
		if err != nil {
			return nil, err
		}
		m.Overlays = append(m.Overlays, overlay)
	}
	if parcels != nil {
		overlay, err := newOverlay(parcels, parcelStyle, func(geo.Feature) string {
			return parcelStyle.Color
		})
		if err != nil {
			return nil, err
		}
		m.Overlays = append(m.Overlays, overlay)
	}

	markers, err := buildMarkers(snap)
	if err != nil {
		return nil, err
	}
	m.Markers = markers
	return m, nil
}

func centroid(stations []store.Station) LatLng {
	var lat, lng float64
	for _, s := range stations {
		lat += s.Lat
		lng += s.Lon
	}
	n := float64(len(stations))
	return LatLng{Lat: lat / n, Lng: lng / n}
}

func newOverlay(layer *geo.Layer, style PathStyle, color func(geo.Feature) string) (Overlay, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(layer.Features))}
	for _, f := range layer.Features {
		if f.Geometry == nil {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: f.Geometry,
			Properties: map[string]interface{}{
				"popup": f.Popup,
				"color": color(f),
			},
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return Overlay{}, fmt.Errorf("encode %s: %w", layer.Name, err)
	}
	return Overlay{Name: layer.Name, Show: layer.Show, Style: style, Data: data}, nil
}

func buildMarkers(snap store.Snapshot) ([]Marker, error) {
	groups := store.GroupByCode(snap.Readings)

	markers := make([]Marker, 0, len(snap.Stations))
	for _, s := range snap.Stations {
		recent := store.Head(groups[s.Code], store.RecentLimit)

		popup, err := renderStationPopup(s.Name, recent)
		if err != nil {
			return nil, fmt.Errorf("popup for %s: %w", s.Code, err)
		}

		color := MarkerInactive
		if len(recent) > 0 {
			color = MarkerActive
		}

		markers = append(markers, Marker{
			Code:          s.Code,
			Position:      LatLng{Lat: s.Lat, Lng: s.Lon},
			Tooltip:       s.Name,
			Popup:         popup,
			PopupMaxWidth: popupMaxWidth,
			Icon:          Icon{Color: color, Name: "water", Prefix: "fa"},
			Recent:        recent,
		})
	}
	return markers, nil
}
