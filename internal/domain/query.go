package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the calendar-date format used by query windows.
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// recentWindow is how close to "now" a window end must be for upstream revisions to matter.
const recentWindow = 2 * day

var validate = validator.New()

// WindowQuery identifies one cacheable catalog query for a location.
// Start and End are UTC midnights; the window is inclusive of both days.
type WindowQuery struct {
	Start        time.Time `validate:"required"`
	End          time.Time `validate:"required,gtefield=Start"`
	RadiusKm     float64   `validate:"gte=1,lte=500"`
	MinMagnitude float64   `validate:"gte=-1,lte=10"`
}

// ParseDate parses a strict YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidQuery, s)
	}
	return t, nil
}

// NewWindowQuery parses and validates a query window.
func NewWindowQuery(start, end string, radiusKm, minMagnitude float64) (WindowQuery, error) {
	s, err := ParseDate(start)
	if err != nil {
		return WindowQuery{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return WindowQuery{}, err
	}
	q := WindowQuery{Start: s, End: e, RadiusKm: radiusKm, MinMagnitude: minMagnitude}
	if err := q.Validate(); err != nil {
		return WindowQuery{}, err
	}
	return q, nil
}

// TrailingWindow returns a window of the given number of days ending on the day of now.
func TrailingWindow(now time.Time, days int, radiusKm, minMagnitude float64) WindowQuery {
	end := truncateDay(now)
	return WindowQuery{
		Start:        end.Add(-time.Duration(days) * day),
		End:          end,
		RadiusKm:     radiusKm,
		MinMagnitude: minMagnitude,
	}
}

// Validate rejects inverted windows and out-of-range or non-finite parameters.
func (q WindowQuery) Validate() error {
	if !finite(q.RadiusKm) || !finite(q.MinMagnitude) {
		return fmt.Errorf("%w: radius and magnitude must be finite", ErrInvalidQuery)
	}
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return nil
}

// StartDate formats Start as YYYY-MM-DD.
func (q WindowQuery) StartDate() string { return q.Start.Format(DateLayout) }

// EndDate formats End as YYYY-MM-DD.
func (q WindowQuery) EndDate() string { return q.End.Format(DateLayout) }

// From is the first instant covered by the window.
func (q WindowQuery) From() time.Time { return q.Start }

// Until is the last millisecond covered by the window (end date 23:59:59.999Z).
func (q WindowQuery) Until() time.Time { return endOfDay(q.End) }

// DaysSpan is the window length in whole days, at least 1.
func (q WindowQuery) DaysSpan() int {
	n := int(math.Round(float64(q.Until().Sub(q.From())) / float64(day)))
	return max(1, n)
}

// Signature is the freshness-ledger key for this query on the given location.
func (q WindowQuery) Signature(vnum string) string {
	return fmt.Sprintf("eq:%s:%s:%s:r%s:m%s",
		vnum, q.StartDate(), q.EndDate(), formatFloat(q.RadiusKm), formatFloat(q.MinMagnitude))
}

// IsRecentEnd reports whether the window ends within two days of now, i.e.
// it covers data upstream may still be revising.
func (q WindowQuery) IsRecentEnd(now time.Time) bool {
	return now.Sub(q.Until()) < recentWindow
}

// MarshalJSON renders dates as YYYY-MM-DD.
func (q WindowQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start        string  `json:"start"`
		End          string  `json:"end"`
		RadiusKm     float64 `json:"radiusKm"`
		MinMagnitude float64 `json:"minmag"`
	}{q.StartDate(), q.EndDate(), q.RadiusKm, q.MinMagnitude})
}

// UnmarshalJSON accepts the format produced by MarshalJSON.
func (q *WindowQuery) UnmarshalJSON(data []byte) error {
	var aux struct {
		Start        string  `json:"start"`
		End          string  `json:"end"`
		RadiusKm     float64 `json:"radiusKm"`
		MinMagnitude float64 `json:"minmag"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	start, err := ParseDate(aux.Start)
	if err != nil {
		return err
	}
	end, err := ParseDate(aux.End)
	if err != nil {
		return err
	}
	*q = WindowQuery{Start: start, End: end, RadiusKm: aux.RadiusKm, MinMagnitude: aux.MinMagnitude}
	return nil
}

// Chunk is one sub-window of a query, inclusive calendar dates.
type Chunk struct {
	Start time.Time
	End   time.Time
}

// Until is the last millisecond covered by the chunk.
func (c Chunk) Until() time.Time { return endOfDay(c.End) }

// SplitWindow partitions [start, end] into consecutive chunks spanning at most
// maxDays calendar days each. Chunks never overlap and cover every day once.
func SplitWindow(start, end time.Time, maxDays int) []Chunk {
	if maxDays < 1 {
		maxDays = 1
	}
	start, end = truncateDay(start), truncateDay(end)

	var chunks []Chunk
	for cursor := start; !cursor.After(end); {
		chunkEnd := cursor.Add(time.Duration(maxDays-1) * day)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, Chunk{Start: cursor, End: chunkEnd})
		cursor = chunkEnd.Add(day)
	}
	return chunks
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return truncateDay(t).Add(day - time.Millisecond)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
