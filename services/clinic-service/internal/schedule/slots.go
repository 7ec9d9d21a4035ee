package schedule

import (
	"sort"
	"time"
)

const DefaultStep = 30 * time.Minute

// Window is an availability window [Start, End).
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type Options struct {
	Step      time.Duration
	// When HasCutoff is set, slots at or before Cutoff are unavailable (the date is today).
	HasCutoff bool
	Cutoff    TimeOfDay
}

// GenerateSlots walks every window from its start in Step increments while t < End.
// Candidates from overlapping windows are merged by time and returned sorted.
// A candidate is unavailable when its time is occupied or not after the cutoff.
func GenerateSlots(windows []Window, occupied []TimeOfDay, opts Options) []Slot {
	step := TimeOfDay(opts.Step / time.Minute)
	if step <= 0 {
		step = TimeOfDay(DefaultStep / time.Minute)
	}

	taken := make(map[TimeOfDay]struct{}, len(occupied))
	for _, o := range occupied {
		taken[o] = struct{}{}
	}

	seen := map[TimeOfDay]struct{}{}
	var times []TimeOfDay
	for _, w := range windows {
		for t := w.Start; t < w.End; t += step {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			times = append(times, t)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	slots := make([]Slot, 0, len(times))
	for _, t := range times {
		_, busy := taken[t]
		past := opts.HasCutoff && t <= opts.Cutoff
		slots = append(slots, Slot{Time: t.String(), Available: !busy && !past})
	}
	return slots
}

// Lookup finds the slot starting at t.
func Lookup(slots []Slot, t TimeOfDay) (Slot, bool) {
	want := t.String()
	for _, s := range slots {
		if s.Time == want {
			return s, true
		}
	}
	return Slot{}, false
}
