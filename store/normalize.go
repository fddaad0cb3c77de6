package store

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/consorcio-sanramon/aforo-live/kobo"
)

// Form field names of the two Kobo assets.
const (
	FieldStationCode     = "Codigo_del_aforador_texto"
	FieldStationName     = "Aforador"
	FieldStationLocation = "Ubicaci_n"

	FieldReadingCode = "af_actual"
	FieldReadingDate = "Fecha"
	FieldReadingTime = "Hora"
	FieldReadingFlow = "q_final"
)

const (
	dateFormat  = "02/01"
	clockFormat = "15:04"
)

// timestampLayouts are tried in order against "<Fecha> <Hora>". Fractional
// seconds are accepted by every layout.
var timestampLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
}

// Report counts what normalization dropped or degraded.
type Report struct {
	Stations     int
	Readings     int
	BadLocation  int // station rows dropped
	BadTimestamp int // readings with a nil Time
	BadFlow      int // readings whose flow was coerced to 0
}

// Degraded reports whether any record lost data.
func (r Report) Degraded() bool {
	return r.BadLocation+r.BadTimestamp+r.BadFlow > 0
}

// Normalize turns the raw submissions into the station and reading tables.
// Without stations both tables are empty.
func Normalize(readingRecords, stationRecords []kobo.Record, fetchedAt time.Time) (Snapshot, Report) {
	var report Report

	stations, dropped := NormalizeStations(stationRecords)
	report.BadLocation = dropped
	if len(stations) == 0 {
		return emptySnapshot(fetchedAt), report
	}

	readings, badTS, badFlow := NormalizeReadings(readingRecords)
	report.BadTimestamp = badTS
	report.BadFlow = badFlow
	report.Stations = len(stations)
	report.Readings = len(readings)

	snap := Snapshot{
		Stations:  stations,
		Readings:  readings,
		FetchedAt: fetchedAt,
	}
	_ = snap.setETag()
	return snap, report
}

// NormalizeStations builds the station table. Rows whose location does not
// hold two parseable coordinates are excluded and counted.
func NormalizeStations(records []kobo.Record) ([]Station, int) {
	stations := make([]Station, 0, len(records))
	dropped := 0

	for _, rec := range records {
		loc, _ := rec.String(FieldStationLocation)
		lat, lon, ok := ParseLocation(loc)
		if !ok {
			dropped++
			continue
		}
		code, _ := rec.String(FieldStationCode)
		name, _ := rec.String(FieldStationName)
		stations = append(stations, Station{
			Code: strings.TrimSpace(code),
			Name: name,
			Lat:  lat,
			Lon:  lon,
		})
	}
	return stations, dropped
}

// ParseLocation reads a Kobo geopoint "lat lon [alt accuracy]".
func ParseLocation(v string) (lat, lon float64, ok bool) {
	parts := strings.Fields(v)
	if len(parts) < 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || !finite(lat) {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(parts[1], 64)
	if err != nil || !finite(lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

// NormalizeReadings builds the reading table. Nothing is dropped: bad
// timestamps become nil and bad flows become 0.
func NormalizeReadings(records []kobo.Record) (readings []Reading, badTimestamp, badFlow int) {
	readings = make([]Reading, 0, len(records))

	for _, rec := range records {
		code, _ := rec.String(FieldReadingCode)
		date, hasDate := rec.String(FieldReadingDate)
		clock, hasClock := rec.String(FieldReadingTime)

		r := Reading{Code: strings.TrimSpace(code)}

		if hasDate && hasClock {
			r.Time = ParseTimestamp(date, clock)
		}
		if r.Time != nil {
			r.Date = r.Time.Format(dateFormat)
			r.Clock = r.Time.Format(clockFormat)
		} else {
			badTimestamp++
		}

		raw, _ := rec.Value(FieldReadingFlow)
		flow, ok := ParseFlow(raw)
		if !ok {
			badFlow++
		}
		r.Flow = flow

		readings = append(readings, r)
	}
	return readings, badTimestamp, badFlow
}

// ParseTimestamp joins the date and time answers with a single space and
// parses the result. It returns nil when no layout matches.
func ParseTimestamp(date, clock string) *time.Time {
	value := strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// ParseFlow converts a flow answer to whole liters per second, truncating
// decimals. Missing, non-numeric, non-finite and negative values yield 0 and
// ok=false.
func ParseFlow(v any) (flow int, ok bool) {
	var f float64
	var err error

	switch t := v.(type) {
	case json.Number:
		f, err = strconv.ParseFloat(t.String(), 64)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	case float64:
		f = t
	case int:
		f = float64(t)
	default:
		return 0, false
	}

	if err != nil || !finite(f) || f < 0 || f >= 1e15 {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
