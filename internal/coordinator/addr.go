package coordinator

import (
	"strconv"
	"strings"

	"github.com/doismellburning/axterm/internal/ax25"
)

// addrOf parses a display-form address ("CALL" or "CALL-SSID") back
// into an ax25.Address, the inverse of Address.String. Used when
// building outbound frames from a SessionKey, which stores addresses
// as strings so it can serve as a plain map key.
func addrOf(s string) ax25.Address {
	call, ssidPart, found := strings.Cut(s, "-")
	if !found {
		return ax25.Address{Callsign: call}
	}
	ssid, err := strconv.Atoi(ssidPart)
	if err != nil {
		return ax25.Address{Callsign: call}
	}
	return ax25.Address{Callsign: call, SSID: ssid}
}
