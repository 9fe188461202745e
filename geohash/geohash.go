// Package geohash adds a geohash column to the artist dimension.
package geohash

import (
	"github.com/mmcloughlin/geohash"
	"github.com/pkg/errors"
	"github.com/sparkify/datalake"
)

// MaxPrecision is the longest geohash Enrich produces.
const MaxPrecision = 12

// Enrich returns a copy of artists with Geohash set to the precision character
// geohash of each artist's coordinates. Artists without both coordinates, or
// with coordinates out of range, get a null geohash.
func Enrich(artists []datalake.ArtistRow, precision int) ([]datalake.ArtistRow, error) {
	if precision < 1 || precision > MaxPrecision {
		return nil, errors.Errorf("geohash precision must be between 1 and %d, got %d", MaxPrecision, precision)
	}
	out := make([]datalake.ArtistRow, len(artists))
	for i, a := range artists {
		a.Geohash = datalake.NullString{}
		if hsh, ok := geoHash(a.ArtistLatitude, a.ArtistLongitude, precision); ok {
			a.Geohash = datalake.Str(hsh)
		}
		out[i] = a
	}
	return out, nil
}

func geoHash(lat, lon datalake.NullFloat64, precision int) (string, bool) {
	if !lat.Valid || !lon.Valid {
		return "", false
	}
	if lat.Float64 < -90 || lat.Float64 > 90 || lon.Float64 < -180 || lon.Float64 > 180 {
		return "", false
	}
	return geohash.EncodeWithPrecision(lat.Float64, lon.Float64, uint(precision)), true
}
