package weather

import "sort"

// ReduceDaily collapses a raw forecast sequence (one entry per 3-hour slot)
// into at most one entry per UTC calendar day, preferring the earliest slot of
// each day, capped at maxDays.
func ReduceDaily(entries []ForecastEntry, maxDays int) []ForecastEntry {
	if maxDays <= 0 || len(entries) == 0 {
		return nil
	}

	byDay := make(map[string]ForecastEntry)
	for _, e := range entries {
		key := e.Timestamp.UTC().Format("2006-01-02")
		best, ok := byDay[key]
		if !ok || e.Timestamp.Before(best.Timestamp) {
			byDay[key] = e
		}
	}

	keys := make([]string, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	reduced := make([]ForecastEntry, 0, maxDays)
	for _, k := range keys {
		if len(reduced) >= maxDays {
			break
		}
		reduced = append(reduced, byDay[k])
	}

	return reduced
}
