package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mkravets/weather-sync/internal/favorites"
	"github.com/mkravets/weather-sync/internal/snapshot"
	"github.com/mkravets/weather-sync/internal/weather"
)

// fakeClient implements weather.Client with pluggable behaviour per test.
type fakeClient struct {
	currentFn  func(ctx context.Context, place string, unit weather.Unit) (weather.Snapshot, error)
	forecastFn func(ctx context.Context, place string, unit weather.Unit) ([]weather.ForecastEntry, error)
}

func (f *fakeClient) FetchCurrent(ctx context.Context, place string, unit weather.Unit) (weather.Snapshot, error) {
	if f.currentFn == nil {
		return weather.Snapshot{}, errors.New("current fetch not configured")
	}
	return f.currentFn(ctx, place, unit)
}

func (f *fakeClient) FetchForecast(ctx context.Context, place string, unit weather.Unit) ([]weather.ForecastEntry, error) {
	if f.forecastFn == nil {
		return nil, errors.New("forecast fetch not configured")
	}
	return f.forecastFn(ctx, place, unit)
}

func okCurrent(temp, humidity float64) func(ctx context.Context, place string, unit weather.Unit) (weather.Snapshot, error) {
	return func(_ context.Context, place string, _ weather.Unit) (weather.Snapshot, error) {
		return weather.Snapshot{
			City:        place,
			Temperature: temp,
			Humidity:    humidity,
			FetchedAt:   time.Now().UTC(),
		}, nil
	}
}

func failingFetch(_ context.Context, _ string, _ weather.Unit) (weather.Snapshot, error) {
	return weather.Snapshot{}, errors.New("network down")
}

func newOrchestrator(client weather.Client) (*Orchestrator, *snapshot.MemoryStore, *favorites.MemoryChannel) {
	store := snapshot.NewMemoryStore()
	channel := favorites.NewMemoryChannel("")
	return New(client, store, channel, weather.UnitMetric), store, channel
}

func TestSearchEmptyInput(t *testing.T) {
	called := false
	o, _, _ := newOrchestrator(&fakeClient{
		currentFn: func(ctx context.Context, place string, unit weather.Unit) (weather.Snapshot, error) {
			called = true
			return weather.Snapshot{}, nil
		},
	})

	o.Search(context.Background(), "   ")

	if called {
		t.Error("empty input must not reach the remote client")
	}
	if got := o.State().LastError; got != "empty input" {
		t.Errorf("expected lastError %q, got %q", "empty input", got)
	}
}

// TestSearchSuccess covers the Paris scenario: remote returns 18.4/60 and the
// state goes online with no error.
func TestSearchSuccess(t *testing.T) {
	o, store, _ := newOrchestrator(&fakeClient{currentFn: okCurrent(18.4, 60)})

	o.Search(context.Background(), "Paris")

	state := o.State()
	if state.Current == nil {
		t.Fatal("expected current weather")
	}
	if state.Current.City != "Paris" || state.Current.Temperature != 18.4 || state.Current.Humidity != 60 {
		t.Errorf("unexpected snapshot: %+v", state.Current)
	}
	if state.Offline {
		t.Error("expected online state after successful fetch")
	}
	if state.LastError != "" {
		t.Errorf("expected no error, got %q", state.LastError)
	}

	// Successful fetches are written through to the snapshot store.
	raw, err := store.Get(context.Background(), snapshot.KeyWeather)
	if err != nil {
		t.Fatalf("expected persisted envelope: %v", err)
	}
	env, err := snapshot.DecodeWeather(raw)
	if err != nil {
		t.Fatalf("persisted envelope does not decode: %v", err)
	}
	if env.Current.City != "Paris" {
		t.Errorf("persisted wrong snapshot: %+v", env.Current)
	}
}

func TestSearchReducesForecast(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	raw := make([]weather.ForecastEntry, 0, 24)
	for i := 0; i < 24; i++ {
		raw = append(raw, weather.ForecastEntry{Timestamp: day.Add(time.Duration(i) * 3 * time.Hour)})
	}

	o, _, _ := newOrchestrator(&fakeClient{
		currentFn: okCurrent(10, 50),
		forecastFn: func(_ context.Context, _ string, _ weather.Unit) ([]weather.ForecastEntry, error) {
			return raw, nil
		},
	})

	o.Search(context.Background(), "Oslo")

	state := o.State()
	if len(state.Forecast) != 3 {
		t.Fatalf("expected forecast reduced to 3 daily entries, got %d", len(state.Forecast))
	}
	for i, e := range state.Forecast {
		if !e.Timestamp.Equal(day.AddDate(0, 0, i)) {
			t.Errorf("entry %d: expected earliest slot of day, got %v", i, e.Timestamp)
		}
	}
}

func TestSearchForecastFailureKeepsPrevious(t *testing.T) {
	forecastOK := true
	o, _, _ := newOrchestrator(&fakeClient{
		currentFn: okCurrent(10, 50),
		forecastFn: func(_ context.Context, _ string, _ weather.Unit) ([]weather.ForecastEntry, error) {
			if !forecastOK {
				return nil, errors.New("forecast down")
			}
			return []weather.ForecastEntry{{Timestamp: time.Now().UTC(), Temperature: 7}}, nil
		},
	})

	o.Search(context.Background(), "Oslo")
	if len(o.State().Forecast) != 1 {
		t.Fatalf("expected forecast after first search, got %+v", o.State().Forecast)
	}

	forecastOK = false
	o.Search(context.Background(), "Bergen")

	state := o.State()
	if state.Current == nil || state.Current.City != "Bergen" {
		t.Fatalf("expected current weather for second search, got %+v", state.Current)
	}
	if len(state.Forecast) != 1 {
		t.Errorf("forecast failure must not roll back previous forecast, got %+v", state.Forecast)
	}
	if state.LastError != "" {
		t.Errorf("forecast failure must be silent, got %q", state.LastError)
	}
}

func TestSearchFailureAdoptsCache(t *testing.T) {
	ctx := context.Background()
	o, store, _ := newOrchestrator(&fakeClient{currentFn: failingFetch})

	cached := snapshot.WeatherEnvelope{
		Current:  weather.Snapshot{City: "Paris", Temperature: 15},
		Forecast: []weather.ForecastEntry{{Temperature: 12}},
	}
	b, err := snapshot.EncodeWeather(cached)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := store.Put(ctx, snapshot.KeyWeather, b); err != nil {
		t.Fatalf("put: %v", err)
	}

	o.Search(ctx, "Paris")

	state := o.State()
	if state.Current == nil || state.Current.City != "Paris" || state.Current.Temperature != 15 {
		t.Fatalf("expected cached snapshot adopted, got %+v", state.Current)
	}
	if !state.Offline {
		t.Error("expected offline after fallback")
	}
	if state.LastError != "showing cached data" {
		t.Errorf("expected lastError %q, got %q", "showing cached data", state.LastError)
	}
	if len(state.Forecast) != 1 {
		t.Errorf("expected cached forecast adopted, got %+v", state.Forecast)
	}
}

func TestSearchFailureWithoutCache(t *testing.T) {
	o, _, _ := newOrchestrator(&fakeClient{currentFn: failingFetch})

	o.Search(context.Background(), "Zzqx")

	state := o.State()
	if state.Current != nil {
		t.Errorf("state must stay untouched, got %+v", state.Current)
	}
	if state.LastError != "no data available" {
		t.Errorf("expected lastError %q, got %q", "no data available", state.LastError)
	}
	if state.Offline {
		t.Error("offline flag must not flip without adopted cache")
	}
}

func TestSearchCorruptCacheTreatedAsMiss(t *testing.T) {
	ctx := context.Background()
	o, store, _ := newOrchestrator(&fakeClient{currentFn: failingFetch})

	if err := store.Put(ctx, snapshot.KeyWeather, []byte("stale garbage")); err != nil {
		t.Fatalf("put: %v", err)
	}

	o.Search(ctx, "Paris")

	if got := o.State().LastError; got != "no data available" {
		t.Errorf("expected corrupt cache to read as miss, got lastError %q", got)
	}
}

// TestStaleSearchDiscarded: a slow search for one place must not overwrite a
// later search for a different place.
func TestStaleSearchDiscarded(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	o, _, _ := newOrchestrator(&fakeClient{
		currentFn: func(_ context.Context, place string, _ weather.Unit) (weather.Snapshot, error) {
			if place == "Slowtown" {
				close(started)
				<-gate
			}
			return weather.Snapshot{City: place}, nil
		},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Search(context.Background(), "Slowtown")
	}()

	<-started
	o.Search(context.Background(), "Fastville")
	close(gate)
	<-done

	if got := o.State().Current.City; got != "Fastville" {
		t.Errorf("stale result overwrote newer search: got %q", got)
	}
}

func TestChangeUnitAffectsSubsequentSearches(t *testing.T) {
	var gotUnit weather.Unit
	o, _, _ := newOrchestrator(&fakeClient{
		currentFn: func(_ context.Context, place string, unit weather.Unit) (weather.Snapshot, error) {
			gotUnit = unit
			return weather.Snapshot{City: place}, nil
		},
	})

	o.ChangeUnit(weather.UnitImperial)
	o.Search(context.Background(), "Austin")

	if gotUnit != weather.UnitImperial {
		t.Errorf("expected imperial fetch after unit change, got %q", gotUnit)
	}
}

func TestLoadCachedAdoptsSnapshotOffline(t *testing.T) {
	ctx := context.Background()
	o, store, _ := newOrchestrator(&fakeClient{})

	env := snapshot.WeatherEnvelope{Current: weather.Snapshot{City: "Paris"}}
	b, _ := snapshot.EncodeWeather(env)
	if err := store.Put(ctx, snapshot.KeyWeather, b); err != nil {
		t.Fatalf("put: %v", err)
	}

	o.LoadCached(ctx)

	state := o.State()
	if state.Current == nil || state.Current.City != "Paris" {
		t.Fatalf("expected cached snapshot, got %+v", state.Current)
	}
	if !state.Offline {
		t.Error("cached startup data is assumed offline until a search succeeds")
	}
}

func TestLoadCachedEmptyStore(t *testing.T) {
	o, _, _ := newOrchestrator(&fakeClient{})

	o.LoadCached(context.Background())

	state := o.State()
	if state.Current != nil || state.Offline || state.LastError != "" {
		t.Errorf("expected untouched state on cold cache, got %+v", state)
	}
}

func TestAddFavoriteWithoutCurrentWeather(t *testing.T) {
	o, _, channel := newOrchestrator(&fakeClient{})
	if _, err := channel.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	o.AddFavorite(context.Background(), "note")

	if got := o.State().LastError; got != "no city loaded" {
		t.Errorf("expected lastError %q, got %q", "no city loaded", got)
	}
}

// TestAddFavoriteUnauthenticated: no document is created and the error
// surfaces as a NotAuthenticated message.
func TestAddFavoriteUnauthenticated(t *testing.T) {
	ctx := context.Background()
	o, _, channel := newOrchestrator(&fakeClient{currentFn: okCurrent(20, 40)})

	o.Search(ctx, "Paris")
	o.AddFavorite(ctx, "trip")

	if got := o.State().LastError; got != "not signed in" {
		t.Errorf("expected lastError %q, got %q", "not signed in", got)
	}

	// Signing in afterwards must reveal an empty collection: nothing was
	// queued.
	if _, err := channel.SignIn(ctx); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	feed, err := channel.Observe(ctx)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	select {
	case list := <-feed:
		if len(list) != 0 {
			t.Errorf("expected no documents, got %+v", list)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestFavoritesFeedReplacesList(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o, store, channel := newOrchestrator(&fakeClient{})

	sub := o.Subscribe()
	defer o.Unsubscribe(sub)

	o.Run(ctx)

	// A mutation from "another session" arrives through the live feed.
	if _, err := channel.Add(ctx, "Paris", "from elsewhere"); err != nil {
		t.Fatalf("add: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-sub:
			if len(state.Favorites) == 1 && state.Favorites[0].CityName == "Paris" {
				// Identity and list are persisted for the next start.
				if _, err := store.Get(ctx, snapshot.KeyIdentity); err != nil {
					t.Errorf("expected persisted identity: %v", err)
				}
				raw, err := store.Get(ctx, snapshot.KeyFavorites)
				if err != nil {
					t.Fatalf("expected persisted favorites: %v", err)
				}
				var list []favorites.Favorite
				if err := json.Unmarshal(raw, &list); err != nil || len(list) != 1 {
					t.Errorf("persisted favorites malformed: %v %+v", err, list)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for favorites snapshot")
		}
	}
}

func TestRefreshFavoriteWeatherBestEffort(t *testing.T) {
	ctx := context.Background()
	o, store, _ := newOrchestrator(&fakeClient{
		currentFn: func(_ context.Context, place string, _ weather.Unit) (weather.Snapshot, error) {
			if place == "Atlantis" {
				return weather.Snapshot{}, errors.New("no such place")
			}
			return weather.Snapshot{City: place, Temperature: 21}, nil
		},
	})

	// Seed favorites through the persisted list so no channel is involved.
	seed := []favorites.Favorite{
		{ID: "fav-1", CityName: "Paris"},
		{ID: "fav-2", CityName: "Atlantis"},
	}
	b, _ := json.Marshal(seed)
	if err := store.Put(ctx, snapshot.KeyFavorites, b); err != nil {
		t.Fatalf("put: %v", err)
	}
	o.LoadCached(ctx)

	o.RefreshFavoriteWeather(ctx)

	state := o.State()
	if len(state.FavoriteWeather) != 1 {
		t.Fatalf("expected 1 cached favorite weather, got %d", len(state.FavoriteWeather))
	}
	if snap, ok := state.FavoriteWeather["fav-1"]; !ok || snap.City != "Paris" {
		t.Errorf("expected weather for fav-1, got %+v", state.FavoriteWeather)
	}
	if state.Offline || state.LastError != "" {
		t.Errorf("per-favorite failures must not touch offline/lastError: %+v", state)
	}
}

func TestSubscribePublishesAtomicCopies(t *testing.T) {
	o, _, _ := newOrchestrator(&fakeClient{currentFn: okCurrent(18.4, 60)})

	sub := o.Subscribe()
	defer o.Unsubscribe(sub)

	o.Search(context.Background(), "Paris")

	select {
	case state := <-sub:
		if state.Current == nil || state.Current.City != "Paris" {
			t.Fatalf("expected published state with current weather, got %+v", state)
		}
		// Mutating the received copy must not leak into the orchestrator.
		state.Current.City = "Mutated"
		if o.State().Current.City != "Paris" {
			t.Error("published state shares memory with the orchestrator")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published state")
	}
}
