package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/mkravets/weather-sync/internal/favorites"
	"github.com/mkravets/weather-sync/internal/snapshot"
	"github.com/mkravets/weather-sync/internal/weather"
)

// User-visible fallback messages, one per failure family.
const (
	msgEmptyInput  = "empty input"
	msgCachedData  = "showing cached data"
	msgNoData      = "no data available"
	msgNotSignedIn = "not signed in"
	msgNoCity      = "no city loaded"
)

// forecastDays caps the reduced forecast.
const forecastDays = 3

// State is the read-only view exposed to presentation. Every field is a copy;
// mutating a returned State has no effect on the orchestrator.
type State struct {
	Current         *weather.Snapshot           `json:"current,omitempty"`
	Forecast        []weather.ForecastEntry     `json:"forecast,omitempty"`
	Favorites       []favorites.Favorite        `json:"favorites"`
	FavoriteWeather map[string]weather.Snapshot `json:"favoriteWeather,omitempty"`
	Unit            weather.Unit                `json:"unit"`
	Offline         bool                        `json:"offline"`
	LastError       string                      `json:"lastError,omitempty"`
}

// Orchestrator is the single owner of State. It coordinates the weather
// client, the snapshot store, and the favorites channel, applies the
// offline-fallback policy, and publishes one immutable state copy to
// subscribers after each atomic mutation.
type Orchestrator struct {
	client  weather.Client
	store   snapshot.Store
	channel favorites.Channel

	mu    sync.Mutex
	state State
	// place is the most recently requested search target. In-flight fetches
	// are tagged with the place they were issued for; results whose tag no
	// longer matches are discarded instead of overwriting a newer search.
	place string

	subMu sync.Mutex
	subs  map[chan State]struct{}
}

// New wires the orchestrator with explicit dependencies; there are no
// process-wide singletons.
func New(client weather.Client, store snapshot.Store, channel favorites.Channel, unit weather.Unit) *Orchestrator {
	if unit == "" {
		unit = weather.UnitMetric
	}
	return &Orchestrator{
		client:  client,
		store:   store,
		channel: channel,
		state: State{
			Unit:            unit,
			Favorites:       []favorites.Favorite{},
			FavoriteWeather: make(map[string]weather.Snapshot),
		},
		subs: make(map[chan State]struct{}),
	}
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneState(o.state)
}

// Subscribe registers a state feed. One copy is delivered per atomic
// mutation; slow consumers miss intermediate states, never see torn ones.
func (o *Orchestrator) Subscribe() chan State {
	ch := make(chan State, 8)
	o.subMu.Lock()
	o.subs[ch] = struct{}{}
	o.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a feed returned by Subscribe.
func (o *Orchestrator) Unsubscribe(ch chan State) {
	o.subMu.Lock()
	if _, ok := o.subs[ch]; ok {
		delete(o.subs, ch)
		close(ch)
	}
	o.subMu.Unlock()
}

func (o *Orchestrator) publishLocked() {
	snap := cloneState(o.state)
	o.subMu.Lock()
	for ch := range o.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	o.subMu.Unlock()
}

// mutate applies one atomic state mutation and publishes the result.
func (o *Orchestrator) mutate(fn func(*State)) {
	o.mu.Lock()
	fn(&o.state)
	o.publishLocked()
	o.mu.Unlock()
}

// Run signs in on the favorites channel and starts consuming the live
// subscription. Sign-in failure leaves favorites inert for the process
// lifetime; the weather path is unaffected.
func (o *Orchestrator) Run(ctx context.Context) {
	identity, err := o.channel.SignIn(ctx)
	if err != nil {
		log.Printf("favorites sign-in failed; favorites disabled: %v", err)
		return
	}

	// Persist the assigned identity so the next start offers it back.
	if err := o.store.Put(ctx, snapshot.KeyIdentity, []byte(identity)); err != nil {
		log.Printf("DEBUG: identity persist failed: %v", err)
	}

	feed, err := o.channel.Observe(ctx)
	if err != nil {
		log.Printf("favorites subscription failed; favorites disabled: %v", err)
		return
	}

	go func() {
		for list := range feed {
			o.mu.Lock()
			o.state.Favorites = list
			o.persistFavoritesLocked(ctx)
			o.publishLocked()
			o.mu.Unlock()
		}
	}()
}

// Search fetches current conditions and the forecast for a free-text place.
// The two fetches run concurrently; results are applied in order, and the
// forecast is only applied after a current-weather success.
func (o *Orchestrator) Search(ctx context.Context, place string) {
	if strings.TrimSpace(place) == "" {
		o.mutate(func(s *State) { s.LastError = msgEmptyInput })
		return
	}

	o.mu.Lock()
	o.place = place
	unit := o.state.Unit
	o.mu.Unlock()

	var (
		wg      sync.WaitGroup
		current weather.Snapshot
		curErr  error
		raw     []weather.ForecastEntry
		fcErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		current, curErr = o.client.FetchCurrent(ctx, place, unit)
	}()
	go func() {
		defer wg.Done()
		raw, fcErr = o.client.FetchForecast(ctx, place, unit)
	}()
	wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.place != place {
		// A later search took over; this result is stale.
		return
	}

	if curErr != nil {
		o.fallbackLocked(ctx)
		o.publishLocked()
		return
	}

	o.state.Current = &current
	o.state.Offline = false
	o.state.LastError = ""
	if fcErr == nil {
		o.state.Forecast = weather.ReduceDaily(raw, forecastDays)
	}
	// Forecast failure is silent: current weather is the primary signal and
	// the previous forecast stays as-is.
	o.persistWeatherLocked(ctx)
	o.publishLocked()
}

// fallbackLocked implements the offline-fallback policy after a failed
// current-weather fetch.
func (o *Orchestrator) fallbackLocked(ctx context.Context) {
	raw, err := o.store.Get(ctx, snapshot.KeyWeather)
	if err == nil {
		env, decErr := snapshot.DecodeWeather(raw)
		if decErr == nil {
			cur := env.Current
			o.state.Current = &cur
			o.state.Forecast = env.Forecast
			o.state.Offline = true
			o.state.LastError = msgCachedData
			return
		}
		// Stale format; same as a miss.
		err = decErr
	}
	if !errors.Is(err, snapshot.ErrNotFound) {
		log.Printf("DEBUG: cache read failed: %v", err)
	}
	o.state.LastError = msgNoData
}

// ChangeUnit stores the unit preference for subsequent searches. It does not
// retroactively re-fetch.
func (o *Orchestrator) ChangeUnit(unit weather.Unit) {
	o.mutate(func(s *State) { s.Unit = unit })
}

// LoadCached adopts the persisted weather envelope and favorites list at
// startup. Cached weather arrives marked offline: no network probe has run,
// so the data is assumed stale until an explicit search succeeds.
func (o *Orchestrator) LoadCached(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if raw, err := o.store.Get(ctx, snapshot.KeyWeather); err == nil {
		if env, err := snapshot.DecodeWeather(raw); err == nil {
			cur := env.Current
			o.state.Current = &cur
			o.state.Forecast = env.Forecast
			o.state.Offline = true
		}
	}

	if raw, err := o.store.Get(ctx, snapshot.KeyFavorites); err == nil {
		var list []favorites.Favorite
		if err := json.Unmarshal(raw, &list); err == nil {
			o.state.Favorites = list
		}
	}

	o.publishLocked()
}

// AddFavorite creates a favorite for the currently loaded city.
func (o *Orchestrator) AddFavorite(ctx context.Context, note string) {
	o.mu.Lock()
	current := o.state.Current
	o.mu.Unlock()

	if current == nil {
		o.mutate(func(s *State) { s.LastError = msgNoCity })
		return
	}

	if _, err := o.channel.Add(ctx, current.City, note); err != nil {
		o.reportFavoriteErr("add favorite", err)
	}
	// The live subscription delivers the updated list.
}

// UpdateFavoriteNote patches a favorite's note. Unknown ids are a no-op.
func (o *Orchestrator) UpdateFavoriteNote(ctx context.Context, id, note string) {
	if err := o.channel.UpdateNote(ctx, id, note); err != nil {
		o.reportFavoriteErr("update favorite", err)
	}
}

// DeleteFavorite removes a favorite. Idempotent; unknown ids are a no-op.
func (o *Orchestrator) DeleteFavorite(ctx context.Context, id string) {
	if err := o.channel.Delete(ctx, id); err != nil {
		o.reportFavoriteErr("delete favorite", err)
	}
}

func (o *Orchestrator) reportFavoriteErr(op string, err error) {
	if errors.Is(err, favorites.ErrNotAuthenticated) {
		o.mutate(func(s *State) { s.LastError = msgNotSignedIn })
		return
	}
	log.Printf("%s failed: %v", op, err)
}

// RefreshFavoriteWeather fetches current weather for every favorite
// concurrently. Individual failures are skipped: this is best-effort
// enrichment, decoupled from the offline/online signal.
func (o *Orchestrator) RefreshFavoriteWeather(ctx context.Context) {
	o.mu.Lock()
	list := make([]favorites.Favorite, len(o.state.Favorites))
	copy(list, o.state.Favorites)
	unit := o.state.Unit
	o.mu.Unlock()

	if len(list) == 0 {
		return
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		fetched = make(map[string]weather.Snapshot)
	)
	for _, fav := range list {
		fav := fav
		wg.Add(1)
		go func() {
			defer wg.Done()

			snap, err := o.client.FetchCurrent(ctx, fav.CityName, unit)
			if err != nil {
				log.Printf("favorite %s fetch failed: %v", fav.CityName, err)
				return
			}
			mu.Lock()
			fetched[fav.ID] = snap
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(fetched) == 0 {
		return
	}

	o.mutate(func(s *State) {
		for id, snap := range fetched {
			s.FavoriteWeather[id] = snap
		}
	})
}

// persistWeatherLocked writes through the current weather envelope. Failed
// writes degrade to a cache miss on the next read and are only logged.
func (o *Orchestrator) persistWeatherLocked(ctx context.Context) {
	if o.state.Current == nil {
		return
	}
	env := snapshot.WeatherEnvelope{
		Current:  *o.state.Current,
		Forecast: o.state.Forecast,
	}
	b, err := snapshot.EncodeWeather(env)
	if err != nil {
		log.Printf("DEBUG: weather encode failed: %v", err)
		return
	}
	if err := o.store.Put(ctx, snapshot.KeyWeather, b); err != nil {
		log.Printf("DEBUG: weather persist failed: %v", err)
	}
}

func (o *Orchestrator) persistFavoritesLocked(ctx context.Context) {
	b, err := json.Marshal(o.state.Favorites)
	if err != nil {
		log.Printf("DEBUG: favorites encode failed: %v", err)
		return
	}
	if err := o.store.Put(ctx, snapshot.KeyFavorites, b); err != nil {
		log.Printf("DEBUG: favorites persist failed: %v", err)
	}
}

func cloneState(s State) State {
	dup := s
	if s.Current != nil {
		cur := *s.Current
		dup.Current = &cur
	}
	if s.Forecast != nil {
		dup.Forecast = make([]weather.ForecastEntry, len(s.Forecast))
		copy(dup.Forecast, s.Forecast)
	}
	dup.Favorites = make([]favorites.Favorite, len(s.Favorites))
	copy(dup.Favorites, s.Favorites)
	if s.FavoriteWeather != nil {
		dup.FavoriteWeather = make(map[string]weather.Snapshot, len(s.FavoriteWeather))
		for k, v := range s.FavoriteWeather {
			dup.FavoriteWeather[k] = v
		}
	}
	return dup
}
