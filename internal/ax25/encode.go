package ax25

// EncodeParams carries the fields needed to build any AX.25 frame
// octet string; callers fill in only the fields their frame kind
// uses.
type EncodeParams struct {
	Destination Address
	Source      Address
	Digipeaters []Address
	CmdRes      CmdRes
	Modulo      int // 8 or 128; 0 defaults to 8

	NS, NR int
	PF     bool
	PID    byte
	Info   []byte
}

func (p EncodeParams) modulo() int {
	if p.Modulo == 0 {
		return 8
	}
	return p.Modulo
}

func (p EncodeParams) encodeAddresses() []byte {
	destC, srcC := cmdResBits(p.CmdRes)

	out := make([]byte, 0, addressLen*(2+len(p.Digipeaters)))
	last := len(p.Digipeaters) == 0

	destOctets := EncodeAddress(p.Destination, false, destC)
	out = append(out, destOctets[:]...)

	srcOctets := EncodeAddress(p.Source, last, srcC)
	out = append(out, srcOctets[:]...)

	for i, digi := range p.Digipeaters {
		isLast := i == len(p.Digipeaters)-1
		digiOctets := EncodeAddress(digi, isLast, digi.Repeated)
		out = append(out, digiOctets[:]...)
	}

	return out
}

func cmdResBits(cr CmdRes) (destC, srcC bool) {
	switch cr {
	case CRCommand:
		return true, false
	case CRResponse:
		return false, true
	case CRBoth:
		return true, true
	default:
		return false, false
	}
}

// EncodeUI builds a UI frame octet string.
func EncodeUI(p EncodeParams) []byte {
	out := p.encodeAddresses()

	c := byte(ctrlUI)
	if p.PF {
		c |= pfMask
	}
	out = append(out, c)
	out = append(out, p.PID)
	out = append(out, p.Info...)
	return out
}

// EncodeI builds an I frame octet string for the given sequence
// numbers, honoring p.Modulo for one- or two-octet control fields.
func EncodeI(p EncodeParams) []byte {
	out := p.encodeAddresses()

	if p.modulo() == 128 {
		c1 := byte((p.NS & 0x7F) << 1)
		c2 := byte((p.NR & 0x7F) << 1)
		if p.PF {
			c2 |= 0x01
		}
		out = append(out, c1, c2)
	} else {
		c1 := byte((p.NS & 0x07) << 1)
		c1 |= byte((p.NR & 0x07) << 5)
		if p.PF {
			c1 |= pfMask
		}
		out = append(out, c1)
	}

	out = append(out, p.PID)
	out = append(out, p.Info...)
	return out
}

// EncodeS builds a supervisory (RR/RNR/REJ/SREJ) frame octet string.
func EncodeS(p EncodeParams, sub SSubtype) []byte {
	out := p.encodeAddresses()

	if p.modulo() == 128 {
		c1 := byte(0x01) | byte(sub&0x03)<<2
		c2 := byte((p.NR & 0x7F) << 1)
		if p.PF {
			c2 |= 0x01
		}
		out = append(out, c1, c2)
	} else {
		c1 := byte(0x01) | byte(sub&0x03)<<2
		c1 |= byte((p.NR & 0x07) << 5)
		if p.PF {
			c1 |= pfMask
		}
		out = append(out, c1)
	}

	return out
}

// EncodeU builds an unnumbered (SABM/SABME/DISC/DM/UA/FRMR/XID/TEST)
// frame octet string; p.Info, when set, is appended after the control
// octet as the information field.
func EncodeU(p EncodeParams, sub USubtype) []byte {
	out := p.encodeAddresses()

	var c byte
	switch sub {
	case USABM:
		c = ctrlSABM
	case USABME:
		c = ctrlSABME
	case UDISC:
		c = ctrlDISC
	case UDM:
		c = ctrlDM
	case UUA:
		c = ctrlUA
	case UFRMR:
		c = ctrlFRMR
	case UXID:
		c = ctrlXID
	case UTEST:
		c = ctrlTEST
	default:
		c = ctrlDM
	}
	if p.PF {
		c |= pfMask
	}
	out = append(out, c)
	out = append(out, p.Info...)
	return out
}
