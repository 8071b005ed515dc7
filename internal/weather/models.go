package weather

import (
	"time"
)

// Unit selects the measurement system for remote fetches.
type Unit string

const (
	UnitMetric   Unit = "metric"
	UnitImperial Unit = "imperial"
)

// ParseUnit validates a unit string coming from the outside.
func ParseUnit(s string) (Unit, bool) {
	switch Unit(s) {
	case UnitMetric:
		return UnitMetric, true
	case UnitImperial:
		return UnitImperial, true
	default:
		return "", false
	}
}

// Snapshot is the complete current-weather view for a place at a point in time.
// It is immutable once constructed and replaced wholesale on each successful fetch.
type Snapshot struct {
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidityPercent"`
	Pressure    float64   `json:"pressureHpa"`
	WindSpeed   float64   `json:"windSpeed"`
	Description string    `json:"description"`
	FetchedAt   time.Time `json:"fetchedAt"` // set at fetch time, always UTC
}

// ForecastEntry is a single forecast slot. The remote API delivers one entry
// per 3-hour slot; ReduceDaily collapses those into daily entries.
type ForecastEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidityPercent"`
	WindSpeed   float64   `json:"windSpeed"`
	Description string    `json:"description"`
}
