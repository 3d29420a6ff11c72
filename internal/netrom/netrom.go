// Package netrom implements passive NET/ROM route and neighbor
// inference (spec.md §4.8): two tables fed exclusively by C3's
// classification output, decayed on a half-life and retired by an
// obsolescence counter. There is no teacher precedent for NET/ROM (Dire
// Wolf digipeats and IGates but never builds a routing table), so the
// table/decay/obsolescence shape is grounded on the classify package's
// own windowed-tracker discipline (time-keyed entries behind an
// injectable clock) rather than on any third-party routing library.
package netrom

import (
	"math"
	"time"

	"github.com/doismellburning/axterm/internal/classify"
)

// Quality computes the canonical NET/ROM formula q=((a*b)+128)/256,
// where a and b are the forward/reverse duty cycle bytes in [0,255].
func Quality(a, b uint8) uint8 {
	return uint8((uint32(a)*uint32(b) + 128) / 256)
}

// Default half-lives (spec.md §4.8).
const (
	DefaultInferredHalfLife = 5 * time.Minute
	DefaultNeighborHalfLife = 30 * time.Minute
	// DefaultObsolescenceTicks is the number of broadcast intervals an
	// entry survives with no refreshing observation before deletion.
	DefaultObsolescenceTicks = 8
)

// Entry is one neighbor or inferred-route record.
type Entry struct {
	Station string // callsign-SSID of the neighbor or route target
	Via     string // "" for a direct neighbor; the digipeater path key for an inferred route

	quality       uint8
	lastSeen      time.Time
	obsolescence  int
	halfLife      time.Duration
}

// Quality returns the quality byte recorded at the entry's last
// refreshing observation. No decay is applied to it; time-based decay
// is reported by Freshness.
func (e *Entry) Quality() uint8 { return e.quality }

// LastSeen returns the time of the most recent refreshing observation.
func (e *Entry) LastSeen() time.Time { return e.lastSeen }

// Freshness returns the 0-255 freshness value at time t: 255 at the
// moment of observation, decaying by half-life thereafter, floored at
// 0 (spec.md §8's freshness monotonicity property).
func (e *Entry) Freshness(t time.Time) uint8 {
	elapsed := t.Sub(e.lastSeen)
	if elapsed <= 0 {
		return 255
	}
	if e.halfLife <= 0 {
		return 255
	}
	factor := decayFactor(elapsed, e.halfLife)
	v := int(255 * factor)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func decayFactor(elapsed, halfLife time.Duration) float64 {
	ratio := float64(elapsed) / float64(halfLife)
	return math.Pow(0.5, ratio)
}

// Tables holds the neighbor and inferred-route tables fed by C3
// classification output (spec.md §4.8).
type Tables struct {
	neighbors map[string]*Entry          // keyed by station
	routes    map[string]map[string]*Entry // keyed by station, then via path

	neighborHalfLife time.Duration
	inferredHalfLife time.Duration
	obsolescenceMax  int

	now func() time.Time
}

// NewTables returns empty neighbor/route tables using the spec's
// default half-lives; now defaults to time.Now when nil.
func NewTables(now func() time.Time) *Tables {
	if now == nil {
		now = time.Now
	}
	return &Tables{
		neighbors:        map[string]*Entry{},
		routes:           map[string]map[string]*Entry{},
		neighborHalfLife: DefaultNeighborHalfLife,
		inferredHalfLife: DefaultInferredHalfLife,
		obsolescenceMax:  DefaultObsolescenceTicks,
		now:              now,
	}
}

// Observation is one classified frame's worth of passive routing
// evidence, decoded from the AX.25 addressing by the coordinator
// before being handed to Tables.Observe.
type Observation struct {
	Kind       classify.FrameKind
	DirectFrom string   // immediate sender callsign-SSID
	ViaPath    []string // digipeater path, in order, empty for a direct frame
	QualityA   uint8    // forward duty-cycle sample
	QualityB   uint8    // reverse duty-cycle sample
}

// Observe applies one observation to the tables. Non-data packets
// (ack-only, retry/duplicate, session-control) never refresh or
// create entries, matching spec.md §4.8.
func (t *Tables) Observe(obs Observation) {
	if !obs.Kind.RefreshesNeighbor() && !obs.Kind.RefreshesRoute() {
		return
	}

	now := t.now()
	q := Quality(obs.QualityA, obs.QualityB)

	if obs.Kind.RefreshesNeighbor() && len(obs.ViaPath) == 0 {
		t.refreshNeighbor(obs.DirectFrom, q, now)
	}

	if obs.Kind.RefreshesRoute() && len(obs.ViaPath) > 0 {
		t.refreshRoute(obs.DirectFrom, viaKey(obs.ViaPath), q, now)
	}
}

func (t *Tables) refreshNeighbor(station string, q uint8, now time.Time) {
	e, ok := t.neighbors[station]
	if !ok {
		e = &Entry{Station: station, halfLife: t.neighborHalfLife}
		t.neighbors[station] = e
	}
	e.quality = q
	e.lastSeen = now
	e.obsolescence = 0
}

// refreshRoute records that station was seen reachable via the given
// path key. Inferred routes are strictly directional: this never
// implies the reverse route through the same path is valid (spec.md
// §4.8).
func (t *Tables) refreshRoute(station, viaPathKey string, q uint8, now time.Time) {
	perStation, ok := t.routes[station]
	if !ok {
		perStation = map[string]*Entry{}
		t.routes[station] = perStation
	}
	e, ok := perStation[viaPathKey]
	if !ok {
		e = &Entry{Station: station, Via: viaPathKey, halfLife: t.inferredHalfLife}
		perStation[viaPathKey] = e
	}
	e.quality = q
	e.lastSeen = now
	e.obsolescence = 0
}

// Neighbor returns the direct-neighbor entry for station, if any.
func (t *Tables) Neighbor(station string) (*Entry, bool) {
	e, ok := t.neighbors[station]
	return e, ok
}

// Route returns the inferred-route entry for reaching station via the
// given path, if any.
func (t *Tables) Route(station string, via []string) (*Entry, bool) {
	perStation, ok := t.routes[station]
	if !ok {
		return nil, false
	}
	e, ok := perStation[viaKey(via)]
	return e, ok
}

// Tick advances the obsolescence counters by one broadcast interval,
// deleting any entry whose counter reaches DefaultObsolescenceTicks
// with no intervening observation (spec.md §4.8).
func (t *Tables) Tick() {
	for station, e := range t.neighbors {
		e.obsolescence++
		if e.obsolescence >= t.obsolescenceMax {
			delete(t.neighbors, station)
		}
	}
	for station, perStation := range t.routes {
		for via, e := range perStation {
			e.obsolescence++
			if e.obsolescence >= t.obsolescenceMax {
				delete(perStation, via)
			}
		}
		if len(perStation) == 0 {
			delete(t.routes, station)
		}
	}
}

// NeighborCount and RouteCount expose table sizes for tests and
// diagnostics.
func (t *Tables) NeighborCount() int { return len(t.neighbors) }

func (t *Tables) RouteCount() int {
	n := 0
	for _, perStation := range t.routes {
		n += len(perStation)
	}
	return n
}

func viaKey(path []string) string {
	key := ""
	for i, p := range path {
		if i > 0 {
			key += ">"
		}
		key += p
	}
	return key
}
