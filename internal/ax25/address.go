// Package ax25 implements the AX.25 frame codec (spec.md §4.2):
// seven-octet addresses, the control field for U/S/I frames in both
// modulo-8 and modulo-128 form, and the frame-class sum type. It is
// the Go-native reimplementation of what the teacher's cgo
// ax25_pad.go/ax25_pad2.go wrap around Dire Wolf's C ax25_pad.c —
// same field layout and control-octet constants
// (ax25_frame_type/ctrl_to_text), no cgo.
package ax25

import (
	"strings"

	"github.com/doismellburning/axterm/internal/axerr"
)

const addressLen = 7

// Address is the semantic (decoded) form of an AX.25 station address.
type Address struct {
	Callsign string // uppercase, trimmed, max 6 chars
	SSID     int    // 0..15
	Repeated bool   // has-been-repeated (H) bit, meaningful on digis
}

// String renders the display form: "CALL" when SSID is zero,
// otherwise "CALL-SSID".
func (a Address) String() string {
	if a.SSID == 0 {
		return a.Callsign
	}
	return a.Callsign + "-" + itoa(a.SSID)
}

// DisplayRepeated renders the via-path display form, appending a
// trailing "*" when the digipeater has been marked as repeated.
func (a Address) DisplayRepeated() string {
	s := a.String()
	if a.Repeated {
		s += "*"
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// EncodeAddress packs addr into its seven-octet wire form. last sets
// bit 0 (the last-address marker); commandOrRepeated sets bit 7,
// which callers interpret as the command/response (C) bit on the
// destination/source addresses or the has-been-repeated (H) bit on
// digipeaters.
func EncodeAddress(addr Address, last bool, commandOrRepeated bool) [addressLen]byte {
	var out [addressLen]byte

	call := strings.ToUpper(strings.TrimSpace(addr.Callsign))
	for i := 0; i < 6; i++ {
		var c byte = ' '
		if i < len(call) {
			c = call[i]
		}
		out[i] = c << 1
	}

	ssid := addr.SSID & 0x0F
	octet := byte(0x60) | byte(ssid<<1) // reserved bits 6,5 set to 1
	if commandOrRepeated {
		octet |= 0x80
	}
	if last {
		octet |= 0x01
	}
	out[6] = octet

	return out
}

// DecodeAddress reads a seven-octet address starting at offset.
// It returns the decoded address, whether it carries bit7
// (command/response or has-been-repeated depending on position),
// whether it is marked last, and an error if buf is too short.
func DecodeAddress(buf []byte, offset int) (addr Address, bit7 bool, last bool, err error) {
	if offset+addressLen > len(buf) {
		return Address{}, false, false, axerr.Wrap(axerr.KindFormat, "truncated address", axerr.ErrTruncated)
	}

	chunk := buf[offset : offset+addressLen]

	var callBuf [6]byte
	for i := 0; i < 6; i++ {
		callBuf[i] = chunk[i] >> 1
	}
	call := strings.TrimRight(string(callBuf[:]), " ")

	ssid := int(chunk[6]>>1) & 0x0F
	last = chunk[6]&0x01 != 0
	bit7 = chunk[6]&0x80 != 0

	// Repeated (the H bit) is only meaningful for digipeater
	// addresses; callers decoding a digi copy bit7 into it. For
	// destination/source addresses bit7 is the C bit, tracked
	// separately at the Frame level.
	return Address{Callsign: call, SSID: ssid}, bit7, last, nil
}
