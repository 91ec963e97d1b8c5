package volcano

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
)

// row is a loosely typed list entry; field names and value types vary across
// the USGS endpoints.
type row map[string]any

func (r row) str(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// num returns the first key holding a finite number or numeric string.
func (r row) num(keys ...string) *float64 {
	for _, k := range keys {
		var f float64
		switch v := r[k].(type) {
		case float64:
			f = v
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				continue
			}
			f = parsed
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		return &f
	}
	return nil
}

func (r row) location(now time.Time) (domain.Location, bool) {
	loc := domain.Location{
		VNum:            r.str("vnum"),
		Name:            r.str("vName", "name", "volcanoName"),
		Lat:             r.num("lat", "latitude"),
		Lon:             r.num("lon", "longitude", "long"),
		VolcanoCode:     r.str("volcanoCd", "volcano_cd"),
		Observatory:     r.str("obs", "obsAbbr"),
		Region:          r.str("region", "subregion"),
		URL:             r.str("vUrl", "webpage"),
		ImageURL:        r.str("vImage"),
		Source:          seedSource,
		UpdatedAtSource: now,
	}
	if loc.VNum == "" || loc.Name == "" || loc.Lat == nil || loc.Lon == nil {
		return domain.Location{}, false
	}
	return loc, true
}
