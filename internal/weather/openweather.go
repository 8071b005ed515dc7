package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// OpenWeatherClient implements Client against the OpenWeatherMap REST API.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewOpenWeatherClient builds a client around a shared *http.Client. Each user
// action performs a single attempt; the breaker only sheds load while the
// upstream is down.
func NewOpenWeatherClient(client *http.Client, apiKey string) *OpenWeatherClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5",
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      0,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

func (c *OpenWeatherClient) get(ctx context.Context, endpoint, place string, unit Unit) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openweather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("q", place)
		values.Set("appid", c.apiKey)
		values.Set("units", string(unit))

		// url.Values.Encode percent-encodes the free-text place name.
		u := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	return doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
}

// FetchCurrent retrieves current conditions for a free-text place name.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, place string, unit Unit) (Snapshot, error) {
	resp, err := c.get(ctx, "weather", place, unit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("openweather current: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Name string `json:"name"`
		Sys  struct {
			Country string `json:"country"`
		} `json:"sys"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
			Pressure float64 `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Snapshot{}, fmt.Errorf("openweather current decode: %w", err)
	}
	if payload.Name == "" {
		return Snapshot{}, fmt.Errorf("openweather current decode: payload missing place name")
	}

	var description string
	if len(payload.Weather) > 0 {
		description = payload.Weather[0].Description
	}

	return Snapshot{
		City:        payload.Name,
		Country:     payload.Sys.Country,
		Temperature: payload.Main.Temp,
		Humidity:    payload.Main.Humidity,
		Pressure:    payload.Main.Pressure,
		WindSpeed:   payload.Wind.Speed,
		Description: description,
		// Capture time is ours, not the upstream's.
		FetchedAt: time.Now().UTC(),
	}, nil
}

// FetchForecast retrieves the raw 3-hour-slot forecast sequence. Callers are
// expected to reduce it with ReduceDaily.
func (c *OpenWeatherClient) FetchForecast(ctx context.Context, place string, unit Unit) ([]ForecastEntry, error) {
	resp, err := c.get(ctx, "forecast", place, unit)
	if err != nil {
		return nil, fmt.Errorf("openweather forecast: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp     float64 `json:"temp"`
				Humidity float64 `json:"humidity"`
			} `json:"main"`
			Wind struct {
				Speed float64 `json:"speed"`
			} `json:"wind"`
			Weather []struct {
				Description string `json:"description"`
			} `json:"weather"`
		} `json:"list"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("openweather forecast decode: %w", err)
	}
	if len(payload.List) == 0 {
		return nil, fmt.Errorf("openweather forecast decode: empty list")
	}

	entries := make([]ForecastEntry, 0, len(payload.List))
	for _, item := range payload.List {
		var description string
		if len(item.Weather) > 0 {
			description = item.Weather[0].Description
		}
		entries = append(entries, ForecastEntry{
			Timestamp:   time.Unix(item.Dt, 0).UTC(),
			Temperature: item.Main.Temp,
			Humidity:    item.Main.Humidity,
			WindSpeed:   item.Wind.Speed,
			Description: description,
		})
	}

	return entries, nil
}
