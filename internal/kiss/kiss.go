// Package kiss implements the KISS TNC framing protocol used between
// this engine and Direwolf over a TCP stream: escape/unescape of the
// FEND/FESC control octets, whole-frame encode, and an incremental
// stream parser that turns arbitrary-sized reads into complete
// payloads. See http://www.ka9q.net/papers/kiss.html.
//
// This is the Go-native KISS layer the teacher's cgo kiss_frame.go
// wraps around Dire Wolf's C implementation; framing semantics
// (escape pairs, command nibble, port nibble) are unchanged from that
// reference, reimplemented without cgo.
package kiss

import "github.com/doismellburning/axterm/internal/axerr"

const (
	// FEND marks the start and end of a KISS frame.
	FEND = 0xC0
	// FESC escapes a literal FEND or FESC byte in the payload.
	FESC = 0xDB
	// TFEND follows FESC to represent a literal FEND byte.
	TFEND = 0xDC
	// TFESC follows FESC to represent a literal FESC byte.
	TFESC = 0xDD

	// CmdDataFrame is the only command nibble this engine emits or
	// accepts; all other command values (TXDELAY, persistence,
	// SetHardware, ...) are TNC-configuration commands with no
	// application-layer payload and are dropped by the parser.
	CmdDataFrame = 0x00
)

// EncodeFrame wraps payload as a complete KISS data frame on the
// given port: FEND, one command octet (port<<4 | CmdDataFrame),
// escaped payload, FEND.
func EncodeFrame(payload []byte, port byte) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, FEND)
	out = append(out, (port<<4)|CmdDataFrame)
	out = appendEscaped(out, payload)
	out = append(out, FEND)
	return out
}

func appendEscaped(out []byte, payload []byte) []byte {
	for _, b := range payload {
		switch b {
		case FEND:
			out = append(out, FESC, TFEND)
		case FESC:
			out = append(out, FESC, TFESC)
		default:
			out = append(out, b)
		}
	}
	return out
}

// Unescape reverses the FESC substitution performed by EncodeFrame. A
// trailing lone FESC (no following byte) is preserved literally
// rather than treated as an error, matching the permissive behavior
// required of a stream that may be truncated mid-escape.
func Unescape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != FESC {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			out = append(out, FESC)
			break
		}
		switch b[i+1] {
		case TFEND:
			out = append(out, FEND)
			i++
		case TFESC:
			out = append(out, FESC)
			i++
		default:
			// Malformed escape: drop the FESC, keep the following
			// byte verbatim. Callers that need strict rejection
			// should use the streaming Parser, whose Feed drops the
			// whole frame instead.
			out = append(out, b[i+1])
			i++
		}
	}
	return out
}

type parserState int

const (
	stateIdle parserState = iota
	stateInFrame
	stateInFrameEscape
)

// Parser incrementally decodes a byte stream into zero or more
// complete KISS payloads, tolerating arbitrary chunk boundaries
// (including mid-escape-sequence splits).
type Parser struct {
	state      parserState
	buf        []byte
	malformed  bool
}

// NewParser returns a parser ready to Feed.
func NewParser() *Parser {
	return &Parser{state: stateIdle}
}

// Reset discards any partially-decoded frame, resynchronising on the
// next FEND.
func (p *Parser) Reset() {
	p.state = stateIdle
	p.buf = p.buf[:0]
	p.malformed = false
}

// Feed processes an arbitrary-sized chunk and returns zero or more
// decoded payloads. Empty payloads, payloads whose command byte has a
// non-zero low nibble (non-data commands), and frames on any port
// other than 0 (the high nibble) are dropped. A malformed escape
// (FESC followed by a byte other than TFEND/TFESC)
// marks the current frame as unrecoverable; it is silently dropped
// when the closing FEND is seen, and the parser resynchronises from
// there.
func (p *Parser) Feed(chunk []byte) [][]byte {
	var out [][]byte

	for _, b := range chunk {
		switch p.state {
		case stateIdle:
			if b == FEND {
				p.buf = p.buf[:0]
				p.malformed = false
				p.state = stateInFrame
			}
			// Any other byte while idle is channel noise; ignore.

		case stateInFrame:
			switch b {
			case FEND:
				if frame, ok := p.finishFrame(); ok {
					out = append(out, frame)
				}
				// A FEND both closes the current frame and opens the
				// next; stay in stateInFrame so back-to-back FENDs
				// (empty frames) are tolerated.
				p.buf = p.buf[:0]
				p.malformed = false
			case FESC:
				p.state = stateInFrameEscape
			default:
				p.buf = append(p.buf, b)
			}

		case stateInFrameEscape:
			switch b {
			case TFEND:
				p.buf = append(p.buf, FEND)
			case TFESC:
				p.buf = append(p.buf, FESC)
			default:
				p.malformed = true
			}
			p.state = stateInFrame
		}
	}

	return out
}

func (p *Parser) finishFrame() ([]byte, bool) {
	if p.malformed || len(p.buf) == 0 {
		return nil, false
	}
	cmd := p.buf[0]
	if cmd&0x0F != CmdDataFrame {
		return nil, false
	}
	if Port(cmd) != 0 {
		// Frames on ports other than 0 are parsed but dropped
		// (spec.md §6); this engine drives a single KISS channel.
		return nil, false
	}
	payload := make([]byte, len(p.buf)-1)
	copy(payload, p.buf[1:])
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}

// Port extracts the radio channel number from a KISS command octet.
func Port(cmd byte) byte { return cmd >> 4 }

// ErrMalformedEscape is returned by strict decode helpers that choose
// to surface rather than silently drop a malformed escape.
var ErrMalformedEscape = axerr.ErrBadEscape
