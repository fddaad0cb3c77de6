package store

import (
	"strconv"
	"time"

	"github.com/mitchellh/hashstructure"
)

// Station is a flow-measurement station ("aforador") from the stations form.
type Station struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Reading is a single flow survey ("aforo"). Time is nil when the submitted
// date and time could not be parsed; Date and Clock are then empty.
type Reading struct {
	Code  string     `json:"code"`
	Time  *time.Time `json:"time,omitempty"`
	Flow  int        `json:"flow"` // l/s
	Date  string     `json:"date"`
	Clock string     `json:"clock"`
}

// Snapshot is the normalized pair of tables produced by one fetch cycle.
// It is never mutated after construction.
type Snapshot struct {
	Stations  []Station `json:"stations"`
	Readings  []Reading `json:"readings"`
	FetchedAt time.Time `json:"fetchedAt"`
	ETag      string    `json:"etag"`
}

// Empty reports whether the snapshot has no station metadata to render.
func (s Snapshot) Empty() bool {
	return len(s.Stations) == 0
}

// emptySnapshot is the failure representation: two empty tables.
func emptySnapshot(fetchedAt time.Time) Snapshot {
	snap := Snapshot{
		Stations:  []Station{},
		Readings:  []Reading{},
		FetchedAt: fetchedAt,
	}
	_ = snap.setETag()
	return snap
}

type etagReading struct {
	Code string
	Unix int64
	Flow int
}

func (s *Snapshot) setETag() error {
	readings := make([]etagReading, len(s.Readings))
	for i, r := range s.Readings {
		readings[i] = etagReading{Code: r.Code, Flow: r.Flow}
		if r.Time != nil {
			readings[i].Unix = r.Time.UnixNano()
		}
	}

	hash, err := hashstructure.Hash(struct {
		Stations []Station
		Readings []etagReading
	}{s.Stations, readings}, nil)
	if err != nil {
		return err
	}
	s.ETag = "\"" + strconv.FormatUint(hash, 10) + "\""
	return nil
}
