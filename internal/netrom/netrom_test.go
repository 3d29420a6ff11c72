package netrom

import (
	"testing"
	"time"

	"github.com/doismellburning/axterm/internal/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityFormula(t *testing.T) {
	assert.Equal(t, uint8(128/256), Quality(0, 0))
	assert.Equal(t, uint8((255*255+128)/256), Quality(255, 255))
}

func TestObserveDirectRefreshesNeighborNotRoute(t *testing.T) {
	clock := time.Unix(1000, 0)
	tb := NewTables(func() time.Time { return clock })

	tb.Observe(Observation{Kind: classify.KindDataProgress, DirectFrom: "N0CALL-1", QualityA: 200, QualityB: 200})

	_, ok := tb.Neighbor("N0CALL-1")
	assert.True(t, ok)
	assert.Equal(t, 0, tb.RouteCount())
}

func TestObserveViaPathRefreshesRouteNotNeighbor(t *testing.T) {
	clock := time.Unix(1000, 0)
	tb := NewTables(func() time.Time { return clock })

	tb.Observe(Observation{
		Kind:       classify.KindDataProgress,
		DirectFrom: "N1CALL",
		ViaPath:    []string{"WIDE1-1"},
		QualityA:   200, QualityB: 200,
	})

	assert.Equal(t, 0, tb.NeighborCount())
	e, ok := tb.Route("N1CALL", []string{"WIDE1-1"})
	require.True(t, ok)
	assert.Equal(t, "WIDE1-1", e.Via)
}

func TestNonDataClassificationsNeverCreateEntries(t *testing.T) {
	tb := NewTables(nil)
	for _, k := range []classify.FrameKind{classify.KindAckOnly, classify.KindRetryOrDuplicate, classify.KindSessionControl} {
		tb.Observe(Observation{Kind: k, DirectFrom: "N0CALL"})
	}
	assert.Equal(t, 0, tb.NeighborCount())
	assert.Equal(t, 0, tb.RouteCount())
}

func TestRoutingBroadcastRefreshesRouteOnly(t *testing.T) {
	tb := NewTables(nil)
	tb.Observe(Observation{
		Kind:       classify.KindRoutingBroadcast,
		DirectFrom: "N2CALL",
		ViaPath:    []string{"RELAY"},
		QualityA:   128, QualityB: 128,
	})
	_, ok := tb.Route("N2CALL", []string{"RELAY"})
	assert.True(t, ok)
}

func TestRoutesAreStrictlyDirectional(t *testing.T) {
	tb := NewTables(nil)
	tb.Observe(Observation{
		Kind: classify.KindDataProgress, DirectFrom: "A", ViaPath: []string{"B"},
		QualityA: 200, QualityB: 200,
	})
	_, forward := tb.Route("A", []string{"B"})
	assert.True(t, forward)
	_, reverse := tb.Route("B", []string{"A"})
	assert.False(t, reverse, "observing A via B must not imply B via A")
}

func TestObsolescenceTicksDeleteStaleEntries(t *testing.T) {
	tb := NewTables(nil)
	tb.Observe(Observation{Kind: classify.KindUIBeacon, DirectFrom: "N0CALL", QualityA: 100, QualityB: 100})
	require.Equal(t, 1, tb.NeighborCount())

	for i := 0; i < DefaultObsolescenceTicks; i++ {
		tb.Tick()
	}
	assert.Equal(t, 0, tb.NeighborCount())
}

func TestObservationResetsObsolescenceCounter(t *testing.T) {
	tb := NewTables(nil)
	obs := Observation{Kind: classify.KindUIBeacon, DirectFrom: "N0CALL", QualityA: 100, QualityB: 100}
	tb.Observe(obs)

	for i := 0; i < DefaultObsolescenceTicks-1; i++ {
		tb.Tick()
		tb.Observe(obs)
	}
	assert.Equal(t, 1, tb.NeighborCount(), "repeated observation should keep the entry alive indefinitely")
}

// Freshness monotonicity (spec.md §8): non-increasing between
// observations, reset to 255 by a fresh one.
func TestFreshnessMonotonicityAndReset(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	tb := NewTables(now)
	tb.Observe(Observation{Kind: classify.KindUIBeacon, DirectFrom: "N0CALL", QualityA: 100, QualityB: 100})

	e, _ := tb.Neighbor("N0CALL")
	f0 := e.Freshness(clock)
	assert.Equal(t, uint8(255), f0)

	clock = clock.Add(10 * time.Minute)
	f1 := e.Freshness(clock)
	assert.LessOrEqual(t, f1, f0)

	clock = clock.Add(10 * time.Minute)
	f2 := e.Freshness(clock)
	assert.LessOrEqual(t, f2, f1)

	clock = clock.Add(1 * time.Minute)
	tb.Observe(Observation{Kind: classify.KindUIBeacon, DirectFrom: "N0CALL", QualityA: 100, QualityB: 100})
	assert.Equal(t, uint8(255), e.Freshness(clock))
}

func TestDeterministicGivenIdenticalSequence(t *testing.T) {
	build := func() *Tables {
		clock := time.Unix(0, 0)
		tb := NewTables(func() time.Time { return clock })
		tb.Observe(Observation{Kind: classify.KindDataProgress, DirectFrom: "A", QualityA: 200, QualityB: 180})
		tb.Observe(Observation{Kind: classify.KindDataProgress, DirectFrom: "A", ViaPath: []string{"B"}, QualityA: 90, QualityB: 90})
		return tb
	}
	t1 := build()
	t2 := build()
	e1, _ := t1.Neighbor("A")
	e2, _ := t2.Neighbor("A")
	assert.Equal(t, e1.Quality(), e2.Quality())
	assert.Equal(t, t1.RouteCount(), t2.RouteCount())
}
