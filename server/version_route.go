package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/consorcio-sanramon/aforo-live/geo"
	"github.com/consorcio-sanramon/aforo-live/store"
)

// VersionRoute reports the build and the data behind it. It never triggers
// a fetch.
func VersionRoute(s *store.Store, geometry *geo.Source) echo.HandlerFunc {
	return func(c echo.Context) error {
		info := GetVersionInfo()
		if result, ok := s.LastResult(); ok {
			info.Data = &DataInfo{
				FetchedAt: result.Snapshot.FetchedAt,
				Stations:  len(result.Snapshot.Stations),
				Readings:  len(result.Snapshot.Readings),
				ETag:      result.Snapshot.ETag,
				Layers:    geometry.Current().Names(),
			}
			if result.Err != nil {
				info.Data.FetchError = FetchFailureReason(result.Err)
			}
		}
		return c.JSON(http.StatusOK, info)
	}
}
