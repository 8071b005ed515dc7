package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/mkravets/weather-sync/internal/weather"
)

// WeatherEnvelope is the single payload persisted under KeyWeather: the last
// good current-weather snapshot together with the forecast fetched alongside
// it. Superseded wholesale on every successful fetch.
type WeatherEnvelope struct {
	Current  weather.Snapshot        `json:"current"`
	Forecast []weather.ForecastEntry `json:"forecast,omitempty"`
}

// EncodeWeather serializes the envelope for storage.
func EncodeWeather(env WeatherEnvelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode weather envelope: %w", err)
	}
	return b, nil
}

// DecodeWeather deserializes a stored envelope. Callers treat any error here
// the same as a cache miss.
func DecodeWeather(b []byte) (WeatherEnvelope, error) {
	var env WeatherEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return WeatherEnvelope{}, fmt.Errorf("decode weather envelope: %w", err)
	}
	if env.Current.City == "" {
		return WeatherEnvelope{}, fmt.Errorf("decode weather envelope: missing city")
	}
	return env, nil
}
