// Package classify implements duplicate detection and frame
// classification (spec.md §4.3), grounded in the teacher's
// dedupe.go — a fixed-size ring of recent (checksum, channel,
// timestamp) records checked on a sliding time window — generalized
// from "avoid re-transmitting a duplicate" to "tell the coordinator
// whether this inbound frame is fresh, an ingestion-window repeat, or
// a retry-window repeat."
package classify

import (
	"hash/fnv"
	"time"

	"github.com/doismellburning/axterm/internal/ax25"
)

// Status is the outcome of checking a frame's signature against
// recent history.
type Status int

const (
	StatusUnique Status = iota
	StatusIngestionDedup
	StatusRetryDuplicate
)

// Signature identifies a frame for dedup purposes: from/to address,
// frame class+subtype, N(S) if present, and an FNV-1a hash of the
// information field. The changing digipeater path is deliberately
// excluded, matching the teacher's rationale in dedupe.go (dedup
// catches digipeat loops where only the via path differs).
type Signature struct {
	From    string
	To      string
	Kind    ax25.Kind
	SType   ax25.SSubtype
	UType   ax25.USubtype
	HasNS   bool
	NS      int
	InfoSum uint64
}

// Sign computes the dedup signature of a decoded frame.
func Sign(f *ax25.Frame) Signature {
	h := fnv.New64a()
	_, _ = h.Write(f.Info)

	sig := Signature{
		From:    f.Source.String(),
		To:      f.Destination.String(),
		Kind:    f.Kind,
		InfoSum: h.Sum64(),
	}
	switch f.Kind {
	case ax25.KindS:
		sig.SType = f.SType
	case ax25.KindU:
		sig.UType = f.UType
	case ax25.KindI:
		sig.HasNS = true
		sig.NS = f.NS
	}
	return sig
}

// Tracker holds recent-signature history across two independent
// windows, mirroring the teacher's single ring buffer generalized
// into ingestion vs. retry windows (spec.md §4.3).
type Tracker struct {
	ingestionWindow time.Duration
	retryWindow     time.Duration

	capacity int
	entries  []trackEntry
	next     int

	now func() time.Time
}

type trackEntry struct {
	sig Signature
	at  time.Time
}

// Default windows per spec.md §4.3: 0.25s ingestion dedup for a KISS
// source (0 for AGWPE, which this engine doesn't speak), 2.0s
// retry-duplicate window.
const (
	DefaultIngestionWindow = 250 * time.Millisecond
	DefaultRetryWindow     = 2 * time.Second
	defaultCapacity        = 64
)

// NewTracker returns a Tracker with the given windows and a ring
// capacity sized generously above the teacher's 25-entry history.
func NewTracker(ingestionWindow, retryWindow time.Duration) *Tracker {
	return &Tracker{
		ingestionWindow: ingestionWindow,
		retryWindow:     retryWindow,
		capacity:        defaultCapacity,
		entries:         make([]trackEntry, 0, defaultCapacity),
		now:             time.Now,
	}
}

// Observe records sig at the current time and returns its dedup
// status relative to prior observations.
func (t *Tracker) Observe(sig Signature) Status {
	now := t.now()
	status := StatusUnique

	for _, e := range t.entries {
		if e.sig != sig {
			continue
		}
		age := now.Sub(e.at)
		if age < t.ingestionWindow {
			status = StatusIngestionDedup
			break
		}
		if age < t.retryWindow && status == StatusUnique {
			status = StatusRetryDuplicate
		}
	}

	t.remember(sig, now)
	return status
}

func (t *Tracker) remember(sig Signature, at time.Time) {
	entry := trackEntry{sig: sig, at: at}
	if len(t.entries) < t.capacity {
		t.entries = append(t.entries, entry)
		return
	}
	t.entries[t.next] = entry
	t.next = (t.next + 1) % t.capacity
}
