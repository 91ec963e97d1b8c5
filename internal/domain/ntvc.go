package domain

import "time"

// NTVC states, from calm to alarming.
const (
	NTVCBackground  = "background activity"
	NTVCUnrest      = "heightened unrest"
	NTVCPreEruptive = "possible pre-eruptive phase"
)

// NTVCResult is the legacy 24-hour magnitude/frequency score.
type NTVCResult struct {
	Score int    `json:"ntvc"`
	State string `json:"state"`
}

// NTVC scores the 24 hours of events preceding ref with a fixed magnitude and
// frequency lookup table. It is an alternate, simpler consumer of the cache.
func NTVC(events []SeismicEvent, ref time.Time) NTVCResult {
	cutoff := ref.Add(-day)
	var recent []SeismicEvent
	for _, e := range events {
		if !e.Time.Before(cutoff) && !e.Time.After(ref) {
			recent = append(recent, e)
		}
	}

	score := 0.0
	if len(recent) > 0 {
		mmax := 0.0
		if m := Max(magnitudes(recent)); m != nil {
			mmax = *m
		}
		score += stepAtLeast(mmax, []Step{{4.5, 50}, {3.5, 35}, {2.5, 20}, {1.5, 10}})

		perHour := float64(len(recent)) / 24
		score += stepAtLeast(perHour, []Step{{10, 50}, {5, 30}, {2, 15}, {1, 5}})
	}

	n := int(min(100, score))
	state := NTVCBackground
	switch {
	case n >= 70:
		state = NTVCPreEruptive
	case n >= 40:
		state = NTVCUnrest
	}
	return NTVCResult{Score: n, State: state}
}
