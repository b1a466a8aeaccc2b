package modal

import (
	"fmt"
	"strings"
	"time"
)

type ActorCount struct {
	ActorID string `json:"actorId"`
	Count   int    `json:"count"`
}

// ActionStats is the read-only aggregate over a time window.
type ActionStats struct {
	Counts        map[ActionKind]int `json:"counts"`
	Total         int                `json:"total"`
	FirstAt       time.Time          `json:"firstAt,omitempty"`
	TopModerators []ActorCount       `json:"topModerators"`
}

// StatsWindow is one of the named ranges: day, week, month, all.
type StatsWindow struct {
	Name  string    `json:"name"`
	Since time.Time `json:"since,omitempty"`
	Days  int       `json:"days,omitempty"`
}

func ParseStatsWindow(name string, now time.Time) (StatsWindow, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	days := map[string]int{"day": 1, "week": 7, "month": 30}
	if name == "all" {
		return StatsWindow{Name: name}, nil
	}
	d, ok := days[name]
	if !ok {
		return StatsWindow{}, fmt.Errorf("invalid range %q: allowed options are day, week, month, all", name)
	}
	return StatsWindow{Name: name, Since: now.Add(-time.Duration(d) * 24 * time.Hour), Days: d}, nil
}

// AveragePerDay divides the total by the window length. For "all" the window starts at the
// first recorded action and is at least one day long. ok is false when there is nothing to divide.
func (s ActionStats) AveragePerDay(w StatsWindow, now time.Time) (avg float64, ok bool) {
	if w.Days > 0 {
		return float64(s.Total) / float64(w.Days), true
	}
	if s.FirstAt.IsZero() {
		return 0, false
	}
	days := now.Sub(s.FirstAt).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(s.Total) / days, true
}
