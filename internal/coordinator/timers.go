package coordinator

import (
	"container/heap"
	"time"
)

// Default T1 (retransmission) interval, used until a link's RTT
// estimator has samples of its own (spec.md §4.6 ties T1 to the RTO
// estimator once it is warm). The T3 fallback lives in startT3.
const (
	defaultT1 = 3 * time.Second
)

type timerKind int

const (
	timerT1 timerKind = iota
	timerT3
)

// timerEntry is one scheduled fire. epoch is compared against the
// link's current t1Epoch/t3Epoch at pop time so Stop can invalidate a
// pending entry without a heap removal (spec.md §9's arena+handle
// pattern applied to timers: bump a counter instead of searching the
// heap).
type timerEntry struct {
	fireAt time.Time
	lk     *link
	kind   timerKind
	epoch  int
}

type timerHeap struct {
	entries []timerEntry
}

func newTimerHeap() *timerHeap {
	h := &timerHeap{}
	heap.Init(h)
	return h
}

func (h *timerHeap) Len() int { return len(h.entries) }
func (h *timerHeap) Less(i, j int) bool {
	return h.entries[i].fireAt.Before(h.entries[j].fireAt)
}
func (h *timerHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

func (h *timerHeap) Push(x any) {
	h.entries = append(h.entries, x.(timerEntry))
}

func (h *timerHeap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	return e
}

func (h *timerHeap) schedule(e timerEntry) {
	heap.Push(h, e)
}

// due pops and returns every entry whose fireAt is at or before now,
// in fire order.
func (h *timerHeap) due(now time.Time) []timerEntry {
	var out []timerEntry
	for h.Len() > 0 && !h.entries[0].fireAt.After(now) {
		out = append(out, heap.Pop(h).(timerEntry))
	}
	return out
}

func (c *Coordinator) startT1(lk *link) {
	lk.t1Epoch++
	rto := defaultT1
	if lk.rtt != nil {
		est := lk.rtt.RTO()
		if lk.sess.RetryCount() > 0 {
			est = lk.rtt.Backoff()
		}
		if est > 0 {
			rto = est
		}
	}
	lk.t1StartedAt = c.now()
	lk.t1Deadline = lk.t1StartedAt.Add(rto)
	c.timers.schedule(timerEntry{fireAt: lk.t1Deadline, lk: lk, kind: timerT1, epoch: lk.t1Epoch})
}

func (c *Coordinator) stopT1(lk *link) {
	lk.t1Epoch++
}

func (c *Coordinator) startT3(lk *link) {
	lk.t3Epoch++
	t3 := c.Cfg.T3
	if t3 <= 0 {
		t3 = 60 * time.Second
	}
	lk.t3Deadline = c.now().Add(t3)
	c.timers.schedule(timerEntry{fireAt: lk.t3Deadline, lk: lk, kind: timerT3, epoch: lk.t3Epoch})
}

func (c *Coordinator) stopT3(lk *link) {
	lk.t3Epoch++
}

// Tick fires every timer due at or before now, executes the
// resulting session actions, and runs the outbound pump once. The
// caller (cmd/axterm's main loop) drives this on a steady interval
// alongside HandleInboundBytes.
func (c *Coordinator) Tick(now time.Time) {
	for _, e := range c.timers.due(now) {
		c.fireTimer(e)
	}
	c.Pump()
}

func (c *Coordinator) fireTimer(e timerEntry) {
	switch e.kind {
	case timerT1:
		if e.epoch != e.lk.t1Epoch {
			return // superseded by a Stop/restart since this entry was scheduled
		}
		prev := e.lk.sess.State()
		actions, resend := e.lk.sess.T1Timeout()
		c.execute(e.lk, actions, resend)
		c.notifyStateChange(e.lk, prev)
	case timerT3:
		if e.epoch != e.lk.t3Epoch {
			return
		}
		c.execute(e.lk, e.lk.sess.T3Timeout(), nil)
	}
}
