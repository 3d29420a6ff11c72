package ax25

import "github.com/doismellburning/axterm/internal/axerr"

// Kind is the top-level AX.25 frame class (spec.md §3 "Frame class").
type Kind int

const (
	KindI Kind = iota
	KindS
	KindU
)

// SSubtype enumerates supervisory frame subtypes.
type SSubtype int

const (
	SRR SSubtype = iota
	SRNR
	SREJ
	SSREJ
)

func (s SSubtype) String() string {
	switch s {
	case SRR:
		return "RR"
	case SRNR:
		return "RNR"
	case SREJ:
		return "REJ"
	case SSREJ:
		return "SREJ"
	default:
		return "S?"
	}
}

// USubtype enumerates unnumbered frame subtypes.
type USubtype int

const (
	USABM USubtype = iota
	USABME
	UDISC
	UDM
	UUA
	UFRMR
	UUI
	UXID
	UTEST
	UUnknown
)

func (u USubtype) String() string {
	switch u {
	case USABM:
		return "SABM"
	case USABME:
		return "SABME"
	case UDISC:
		return "DISC"
	case UDM:
		return "DM"
	case UUA:
		return "UA"
	case UFRMR:
		return "FRMR"
	case UUI:
		return "UI"
	case UXID:
		return "XID"
	case UTEST:
		return "TEST"
	default:
		return "UNKNOWN"
	}
}

// Control octet constants for unnumbered frames, P/F bit (0x10)
// cleared. These are the standard AX.25 values, matching the
// teacher's ax25_frame_type switch in ax25_pad.go.
const (
	ctrlSABM  = 0x2F
	ctrlSABME = 0x6F
	ctrlDISC  = 0x43
	ctrlDM    = 0x0F
	ctrlUA    = 0x63
	ctrlFRMR  = 0x87
	ctrlUI    = 0x03
	ctrlXID   = 0xAF
	ctrlTEST  = 0xE3

	pfMask = 0x10
	// ctrlUMask strips the P/F bit, matching "c & 0xef" in the
	// teacher's decoder.
	ctrlUMask = 0xEF
)

// CmdRes records the derived command/response sense of a frame from
// the destination and source address C bits, per AX.25 v2.2 §6.1.2.
type CmdRes int

const (
	CRUnknown CmdRes = iota // both C bits 0 (pre-2.0 frame, or cc=00)
	CRCommand               // dest C=1, source C=0
	CRResponse              // dest C=0, source C=1
	CRBoth                  // both C bits 1 (cc=11, e.g. AX.25 2.2 negotiation)
)

// Frame is a fully decoded AX.25 packet.
type Frame struct {
	Destination Address
	Source      Address
	Digipeaters []Address
	CmdRes      CmdRes

	Kind     Kind
	SType    SSubtype
	UType    USubtype
	Modulo   int // 8 or 128
	NS, NR   int
	PF       bool
	HasPID   bool
	PID      byte
	Info     []byte

	Raw []byte
}

// DecodeFrame parses a raw AX.25 frame: the address field (destination,
// source, zero or more digipeaters, terminated by the last-address
// bit), one or two control octets, and for I/UI frames a PID and
// information field.
//
// modulo tells the decoder whether I/S frames on this link use one
// control octet (8) or two (128); there is no way to recover this
// from the wire bytes alone (the teacher's ax25_frame_type calls this
// out as a "terrible hack" it resorts to heuristics for when no
// session state is available). Pass 0 to default to modulo 8.
func DecodeFrame(raw []byte, modulo int) (*Frame, error) {
	if modulo == 0 {
		modulo = 8
	}
	f := &Frame{Raw: append([]byte(nil), raw...), Modulo: modulo}

	offset := 0

	dest, destC, destLast, err := DecodeAddress(raw, offset)
	if err != nil {
		return nil, axerr.Wrap(axerr.KindFormat, "destination address", err)
	}
	offset += addressLen
	if destLast {
		return nil, axerr.New(axerr.KindFormat, "destination marked as last address")
	}
	f.Destination = dest

	src, srcC, srcLast, err := DecodeAddress(raw, offset)
	if err != nil {
		return nil, axerr.Wrap(axerr.KindFormat, "source address", err)
	}
	offset += addressLen
	f.Source = src

	f.CmdRes = cmdResFromBits(destC, srcC)

	last := srcLast
	for !last {
		digi, h, digiLast, err := DecodeAddress(raw, offset)
		if err != nil {
			return nil, axerr.Wrap(axerr.KindFormat, "digipeater address", err)
		}
		digi.Repeated = h
		f.Digipeaters = append(f.Digipeaters, digi)
		offset += addressLen
		last = digiLast
	}

	if offset >= len(raw) {
		return nil, axerr.New(axerr.KindFormat, "missing control field")
	}

	c1 := raw[offset]
	offset++

	switch {
	case c1&0x01 == 0: // I-frame
		f.Kind = KindI
		if err := decodeIControl(f, raw, &offset, c1); err != nil {
			return nil, err
		}
		f.HasPID = true
	case c1&0x02 == 0: // S-frame
		f.Kind = KindS
		f.SType = SSubtype((c1 >> 2) & 0x03)
		if err := decodeSControl(f, raw, &offset, c1); err != nil {
			return nil, err
		}
	default: // U-frame
		f.Kind = KindU
		f.PF = c1&pfMask != 0
		f.UType = decodeUSubtype(c1)
		if f.UType == UUI {
			f.HasPID = true
		}
	}

	if f.HasPID {
		if offset >= len(raw) {
			return nil, axerr.New(axerr.KindFormat, "missing PID")
		}
		f.PID = raw[offset]
		offset++
		f.Info = append([]byte{}, raw[offset:]...)
	}

	return f, nil
}

func cmdResFromBits(destC, srcC bool) CmdRes {
	switch {
	case destC && srcC:
		return CRBoth
	case destC && !srcC:
		return CRCommand
	case !destC && srcC:
		return CRResponse
	default:
		return CRUnknown
	}
}

func decodeIControl(f *Frame, raw []byte, offset *int, c1 byte) error {
	if f.Modulo == 128 {
		if *offset >= len(raw) {
			return axerr.New(axerr.KindFormat, "missing extended I control octet")
		}
		c2 := raw[*offset]
		*offset++
		f.NS = int(c1>>1) & 0x7F
		f.PF = c2&0x01 != 0
		f.NR = int(c2>>1) & 0x7F
		return nil
	}
	f.NS = int(c1>>1) & 0x07
	f.PF = (c1>>4)&0x01 != 0
	f.NR = int(c1>>5) & 0x07
	return nil
}

func decodeSControl(f *Frame, raw []byte, offset *int, c1 byte) error {
	if f.Modulo == 128 {
		if *offset >= len(raw) {
			return axerr.New(axerr.KindFormat, "missing extended S control octet")
		}
		c2 := raw[*offset]
		*offset++
		f.PF = c2&0x01 != 0
		f.NR = int(c2>>1) & 0x7F
		return nil
	}
	f.PF = (c1>>4)&0x01 != 0
	f.NR = int(c1>>5) & 0x07
	return nil
}

func decodeUSubtype(c1 byte) USubtype {
	switch c1 & ctrlUMask {
	case ctrlSABM:
		return USABM
	case ctrlSABME:
		return USABME
	case ctrlDISC:
		return UDISC
	case ctrlDM:
		return UDM
	case ctrlUA:
		return UUA
	case ctrlFRMR:
		return UFRMR
	case ctrlUI:
		return UUI
	case ctrlXID:
		return UXID
	case ctrlTEST:
		return UTEST
	default:
		return UUnknown
	}
}
