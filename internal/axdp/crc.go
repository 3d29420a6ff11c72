package axdp

import "hash/crc32"

// ChecksumIEEE computes the CRC32 (IEEE 802.3 polynomial) of b, as
// carried in the payloadCRC32 TLV (spec.md §4.4).
func ChecksumIEEE(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
