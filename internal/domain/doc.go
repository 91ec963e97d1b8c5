// Package domain models volcano seismicity as served by the USGS earthquake
// catalog and the USGS Volcano Hazards Program, and derives a bounded risk
// indicator from it.
//
// # Data Sources
//
// Earthquakes come from the USGS FDSN Event Web Service
// (https://earthquake.usgs.gov/fdsnws/event/1/query) as a GeoJSON feature
// collection. Each feature carries a stable network-assigned id (e.g.
// "hv74512345"), an origin time in epoch milliseconds, a nullable magnitude, a
// free-text place, a detail URL, and geometry coordinates.
//
// Authoritative status comes from the USGS Volcano API "vhpstatus" endpoint
// (https://volcanoes.usgs.gov/vsc/api/volcanoApi/vhpstatus/<vnum>), which
// reports the aviation color code and the ground-based alert level assigned
// by the responsible observatory.
//
// # Conventions
//
// Coordinates:
//
//	GeoJSON order is [longitude, latitude, depth_km]. Depth is positive
//	downwards and may be null or slightly negative for events above sea level.
//
// Dates:
//
//	Query windows are calendar dates in UTC ("2006-01-02"), inclusive on both
//	ends: a window [start, end] covers start 00:00:00Z through end 23:59:59Z.
//
// Alert levels and color codes:
//
//	Alert level: NORMAL, ADVISORY, WATCH, WARNING (UNASSIGNED = no signal).
//	Color code:  GREEN, YELLOW, ORANGE, RED.
//	Any other token (or an empty payload) is treated as "no authoritative
//	signal" and scoring falls back to the seismic heuristic.
//
// # Cache Identity
//
// Events are cached per query configuration: the same USGS event fetched for
// two different radius/magnitude settings is two records. The composite key is
// (event id, vnum, radius km, magnitude floor). Window fetches are tracked by a
// signature string "eq:<vnum>:<start>:<end>:r<radius>:m<minmag>" so every
// distinct query shape gets its own freshness TTL.
//
// # Risk Score
//
// Scores are recomputed on every request from cached events; they are never
// stored. See [Assess] for the full derivation and [ScoringWeights] for the
// empirically chosen thresholds.
package domain
