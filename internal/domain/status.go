package domain

import (
	"context"
	"encoding/json"
	"strings"
)

// AuthoritativeStatus is an observatory-assigned volcano status.
type AuthoritativeStatus struct {
	VNum        string          `json:"vnum,omitempty"`
	AlertLevel  string          `json:"alertLevel,omitempty"`
	ColorCode   string          `json:"colorCode,omitempty"`
	Observatory string          `json:"obs,omitempty"`
	SentAt      string          `json:"sentUtc,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

var (
	knownAlertLevels = map[string]bool{"NORMAL": true, "ADVISORY": true, "WATCH": true, "WARNING": true}
	knownColorCodes  = map[string]bool{"GREEN": true, "YELLOW": true, "ORANGE": true, "RED": true}
)

// Usable reports whether the status carries a recognized signal.
// An UNASSIGNED alert level disqualifies the whole status.
func (s AuthoritativeStatus) Usable() bool {
	alert := normalizeToken(s.AlertLevel)
	if alert == "UNASSIGNED" {
		return false
	}
	return knownAlertLevels[alert] || knownColorCodes[normalizeToken(s.ColorCode)]
}

// ElevatedVolcano is one entry of the observatories' elevated-status notice list.
type ElevatedVolcano struct {
	VNum        string          `json:"vnum,omitempty"`
	VolcanoCode string          `json:"volcanoCd,omitempty"`
	Name        string          `json:"vName,omitempty"`
	AlertLevel  string          `json:"alertLevel,omitempty"`
	ColorCode   string          `json:"colorCode,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// MatchElevated finds loc in the elevated list by vnum, falling back to the
// volcano code when the location has one.
func MatchElevated(elevated []ElevatedVolcano, loc Location) *ElevatedVolcano {
	for i := range elevated {
		if elevated[i].VNum != "" && elevated[i].VNum == loc.VNum {
			return &elevated[i]
		}
	}
	if loc.VolcanoCode == "" {
		return nil
	}
	for i := range elevated {
		if strings.EqualFold(elevated[i].VolcanoCode, loc.VolcanoCode) {
			return &elevated[i]
		}
	}
	return nil
}

// StatusFeed provides authoritative volcano status. Callers treat it as best-effort.
type StatusFeed interface {
	Status(ctx context.Context, vnum string) (AuthoritativeStatus, error)
}

func normalizeToken(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
