package classify

import (
	"unicode"

	"github.com/doismellburning/axterm/internal/ax25"
)

// FrameKind is the traffic classification used to decide whether a
// frame should refresh link-quality/route tables (spec.md §4.3).
type FrameKind int

const (
	KindDataProgress FrameKind = iota
	KindUIBeacon
	KindRoutingBroadcast
	KindAckOnly
	KindRetryOrDuplicate
	KindSessionControl
	KindUnknown
)

func (k FrameKind) String() string {
	switch k {
	case KindDataProgress:
		return "dataProgress"
	case KindUIBeacon:
		return "uiBeacon"
	case KindRoutingBroadcast:
		return "routingBroadcast"
	case KindAckOnly:
		return "ackOnly"
	case KindRetryOrDuplicate:
		return "retryOrDuplicate"
	case KindSessionControl:
		return "sessionControl"
	default:
		return "unknown"
	}
}

// RefreshesNeighbor and RefreshesRoute report the feed-forward effect
// a classification has on C8's passive inference tables (spec.md
// §4.3's table).
func (k FrameKind) RefreshesNeighbor() bool {
	return k == KindDataProgress || k == KindUIBeacon
}

func (k FrameKind) RefreshesRoute() bool {
	return k == KindDataProgress || k == KindUIBeacon || k == KindRoutingBroadcast
}

// linkSeq tracks the last observed N(S)/N(R) on a (from,to) link so
// Classifier can tell whether an I-frame is advancing the
// conversation or a bare retransmission.
type linkSeq struct {
	haveNS bool
	lastNS int
	haveNR bool
	lastNR int
}

// Classifier assigns a FrameKind to decoded frames, tracking enough
// per-link state to recognize "advancing" I-frames.
type Classifier struct {
	links map[string]*linkSeq
}

// NewClassifier returns a ready Classifier.
func NewClassifier() *Classifier {
	return &Classifier{links: map[string]*linkSeq{}}
}

// Classify assigns a FrameKind to f. dup is the dedup status already
// computed by a Tracker for the same frame; a retry/ingestion
// duplicate is reported as KindRetryOrDuplicate regardless of its
// underlying frame type, since duplicates never drive routing state.
func (c *Classifier) Classify(f *ax25.Frame, dup Status) FrameKind {
	if dup == StatusRetryDuplicate {
		return KindRetryOrDuplicate
	}
	// Ingestion-window dedups are discarded entirely by the caller
	// before classification is even useful, but classify them
	// consistently in case a caller classifies first.
	if dup == StatusIngestionDedup {
		return KindRetryOrDuplicate
	}

	switch f.Kind {
	case ax25.KindI:
		return c.classifyI(f)
	case ax25.KindU:
		return c.classifyU(f)
	case ax25.KindS:
		return KindAckOnly
	default:
		return KindUnknown
	}
}

func (c *Classifier) classifyI(f *ax25.Frame) FrameKind {
	if len(f.Info) == 0 {
		return KindAckOnly
	}

	if isNetRomRoutingBroadcast(f) {
		return KindRoutingBroadcast
	}

	key := f.Source.String() + ">" + f.Destination.String()
	seq, ok := c.links[key]
	if !ok {
		seq = &linkSeq{}
		c.links[key] = seq
	}

	advancing := false
	if !seq.haveNS || f.NS != seq.lastNS {
		advancing = true
	}
	if !seq.haveNR || f.NR != seq.lastNR {
		advancing = true
	}
	seq.haveNS, seq.lastNS = true, f.NS
	seq.haveNR, seq.lastNR = true, f.NR

	if advancing {
		return KindDataProgress
	}
	return KindAckOnly
}

func (c *Classifier) classifyU(f *ax25.Frame) FrameKind {
	switch f.UType {
	case ax25.UUI:
		if len(f.Info) > 0 && isPrintableASCII(f.Info) {
			return KindUIBeacon
		}
		return KindUnknown
	case ax25.USABM, ax25.USABME, ax25.UDISC, ax25.UUA, ax25.UDM, ax25.UFRMR:
		return KindSessionControl
	default:
		return KindUnknown
	}
}

// isNetRomRoutingBroadcast recognizes the conventional NET/ROM
// nodes-broadcast destination callsign "NODES", the one passive
// signal this engine looks for without implementing NET/ROM routing
// itself (spec.md §1 non-goals: "only passive inference is in
// scope").
func isNetRomRoutingBroadcast(f *ax25.Frame) bool {
	return f.Destination.Callsign == "NODES"
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		r := rune(c)
		if r > unicode.MaxASCII {
			return false
		}
		if c < 0x09 {
			return false
		}
		if c >= 0x0E && c < 0x20 {
			return false
		}
	}
	return true
}
