package geofence

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aegis-safety/aegis/internal/location"
	"github.com/aegis-safety/aegis/pkg/geo"
)

// ZoneSource supplies the current zone set to the evaluator.
type ZoneSource interface {
	Zones(ctx context.Context) []Zone
}

// EvaluatorConfig holds configuration for creating an Evaluator.
type EvaluatorConfig struct {
	Zones  ZoneSource
	Logger zerolog.Logger

	// OnTransition receives edge-triggered enter/exit events. Called
	// synchronously from Evaluate; must not block for long.
	OnTransition func(Event)
}

// Evaluator maintains per-zone containment state and emits edge-triggered
// transition events. State for each zone moves Unknown -> Outside|Inside on
// the first classification (which never emits an event), then flips between
// Outside and Inside, emitting entered/exited per the zone's alert flags.
//
// Classification uses the hard radius with no hysteresis band; a sample at
// exactly the boundary distance is inside. Boundary oscillation is bounded
// downstream by the dispatch cooldown.
type Evaluator struct {
	zones        ZoneSource
	logger       zerolog.Logger
	onTransition func(Event)

	mu    sync.Mutex
	state map[string]*ContainmentState
}

// NewEvaluator creates a geofence evaluator.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	onTransition := cfg.OnTransition
	if onTransition == nil {
		onTransition = func(Event) {}
	}

	return &Evaluator{
		zones:        cfg.Zones,
		logger:       cfg.Logger,
		onTransition: onTransition,
		state:        make(map[string]*ContainmentState),
	}
}

// Evaluate classifies a position sample against every enabled zone.
// Containment state for zones no longer in the set is discarded.
func (e *Evaluator) Evaluate(ctx context.Context, p location.Position) {
	zones := e.zones.Zones(ctx)

	e.mu.Lock()
	events := e.evaluateLocked(zones, p)
	e.mu.Unlock()

	for _, ev := range events {
		e.logger.Info().
			Str("zone_id", ev.Zone.ID).
			Str("zone_name", ev.Zone.Name).
			Str("transition", string(ev.Kind)).
			Msg("zone transition")
		e.onTransition(ev)
	}
}

// evaluateLocked runs one evaluation cycle. Caller holds e.mu.
func (e *Evaluator) evaluateLocked(zones []Zone, p location.Position) []Event {
	present := make(map[string]struct{}, len(zones))
	var events []Event

	samplePoint := geo.Point{Lat: p.Lat, Lon: p.Lon}

	for i := range zones {
		z := zones[i]
		present[z.ID] = struct{}{}

		if !z.Enabled {
			continue
		}

		inside := geo.Within(samplePoint, geo.Point{Lat: z.CenterLat, Lon: z.CenterLon}, z.RadiusMeters)

		st, known := e.state[z.ID]
		if !known {
			// First classification seeds state without emitting, so starting
			// the app inside a zone never produces a false exit or enter.
			e.state[z.ID] = &ContainmentState{
				ZoneID:           z.ID,
				Inside:           inside,
				LastTransitionAt: p.CapturedAt,
			}
			continue
		}

		if inside == st.Inside {
			continue
		}

		st.Inside = inside
		st.LastTransitionAt = p.CapturedAt

		if inside && z.AlertOnEnter {
			events = append(events, Event{
				Kind: TransitionEntered,
				Zone: z,
				Lat:  p.Lat,
				Lon:  p.Lon,
				At:   p.CapturedAt,
			})
		} else if !inside && z.AlertOnExit {
			events = append(events, Event{
				Kind: TransitionExited,
				Zone: z,
				Lat:  p.Lat,
				Lon:  p.Lon,
				At:   p.CapturedAt,
			})
		}
	}

	// Removed zones lose their containment state.
	for id := range e.state {
		if _, ok := present[id]; !ok {
			delete(e.state, id)
		}
	}

	return events
}

// State returns a copy of the containment state for a zone, if known.
func (e *Evaluator) State(zoneID string) (ContainmentState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.state[zoneID]
	if !ok {
		return ContainmentState{}, false
	}
	return *st, true
}
