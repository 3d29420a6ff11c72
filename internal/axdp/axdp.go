// Package axdp implements the AXDP application-layer message format
// (spec.md §4.4): the four-byte magic "AXT1" followed by a TLV
// sequence. There is no teacher precedent for this exact wire format
// (Dire Wolf carries APRS/raw text, not a TLV protocol), so the codec
// is grounded on the teacher's general "decode must never trust
// attacker-controlled lengths" discipline (ax25_pad.go's bounds
// checks on every field access) and on the TLV-parsing idiom seen in
// the example pack's protocol codecs (e.g. the L2TP and BGP message
// parsers under other_examples/), which decode a tag/length header
// then slice exactly that many bytes, rejecting without panicking on
// any length that would overrun the buffer.
package axdp

import (
	"encoding/binary"

	"github.com/doismellburning/axterm/internal/axerr"
)

// Magic is the four-byte AXDP header.
var Magic = [4]byte{'A', 'X', 'T', '1'}

// HasMagic reports whether b starts with the literal Magic bytes,
// regardless of what follows (spec.md §8).
func HasMagic(b []byte) bool {
	if len(b) < len(Magic) {
		return false
	}
	for i, m := range Magic {
		if b[i] != m {
			return false
		}
	}
	return true
}

// Type enumerates AXDP message types.
type Type byte

const (
	TypeChat Type = iota + 1
	TypeFileMeta
	TypeFileChunk
	TypeAck
	TypeNack
	TypePing
	TypePong
	TypeClose
)

// Reserved messageId values (spec.md §3, §4.4).
const (
	MessageIDCompletionRequest uint32 = 0xFFFFFFFE
	MessageIDCompletionAck     uint32 = 0xFFFFFFFF
)

// Tag numbers. The spec leaves the exact numbering to the
// implementer provided decoders stay tolerant of unknown tags
// (spec.md §9 Open Questions); this is the stable numbering used
// throughout this repository.
type tag byte

const (
	tagType          tag = 1
	tagSessionID     tag = 2
	tagMessageID     tag = 3
	tagChunkIndex    tag = 4
	tagTotalChunks   tag = 5
	tagPayload       tag = 6
	tagPayloadCRC32  tag = 7
	tagSACKBitmap    tag = 8
	tagFileMeta      tag = 9
	tagCapabilities  tag = 10
	// Nested tags reused inside FileMeta and Capabilities TLVs.
	tagFileName      tag = 1
	tagFileSize      tag = 2
	tagFileSHA256    tag = 3
	tagFileChunkSize tag = 4
	tagFileCompressAlgo tag = 5

	tagCapProtoMax    tag = 1
	tagCapAlgorithms  tag = 2
	tagCapMaxDecompLen tag = 3

	tagSACKBase   tag = 1
	tagSACKWindow tag = 2
	tagSACKBits   tag = 3
)

// FileMeta describes an offered file transfer. CompressAlgo names the
// algorithm ("lz4", "deflate", or "" for none) SHA256/FileSize were
// computed over the DEcompressed form while the chunks on the wire
// carry the compressed bytes (spec.md §4.7).
type FileMeta struct {
	FileName     string
	FileSize     uint64
	SHA256       [32]byte
	ChunkSize    uint32
	CompressAlgo string
}

// Capability advertises AXDP feature negotiation parameters.
type Capability struct {
	ProtoMax          uint8
	Algorithms        []string
	MaxDecompressedLen uint32
}

// SACKBitmap is a selective-acknowledgment window of received chunk
// indices, base-relative.
type SACKBitmap struct {
	BaseChunk uint32
	Window    uint16
	Bits      []byte // bit i set => BaseChunk+i received
}

// Has reports whether chunk index idx (absolute) is marked received.
func (s SACKBitmap) Has(idx uint32) bool {
	if idx < s.BaseChunk {
		return false
	}
	rel := idx - s.BaseChunk
	if rel >= uint32(s.Window) {
		return false
	}
	byteIdx := rel / 8
	if int(byteIdx) >= len(s.Bits) {
		return false
	}
	return s.Bits[byteIdx]&(1<<(rel%8)) != 0
}

// Set marks chunk index idx (absolute, relative to BaseChunk) as
// received, growing Bits as needed up to Window bits.
func (s *SACKBitmap) Set(idx uint32) {
	if idx < s.BaseChunk {
		return
	}
	rel := idx - s.BaseChunk
	if rel >= uint32(s.Window) {
		return
	}
	byteIdx := rel / 8
	for uint32(len(s.Bits)) <= byteIdx {
		s.Bits = append(s.Bits, 0)
	}
	s.Bits[byteIdx] |= 1 << (rel % 8)
}

// Message is a fully decoded AXDP message.
type Message struct {
	Type      Type
	SessionID uint32
	MessageID uint32

	HasChunkIndex  bool
	ChunkIndex     uint32
	HasTotalChunks bool
	TotalChunks    uint32

	Payload        []byte
	HasPayloadCRC  bool
	PayloadCRC32   uint32

	HasSACK bool
	SACK    SACKBitmap

	HasFileMeta bool
	FileMeta    FileMeta

	HasCapability bool
	Capability    Capability
}

// tlv is a single decoded tag/length/value record.
type tlv struct {
	tag   tag
	value []byte
}

// decodeTLVs splits buf into a sequence of TLVs: 1-byte tag, 2-byte
// big-endian length, that many bytes of value. It returns an error
// (never panics) if any length would overrun buf.
func decodeTLVs(buf []byte) ([]tlv, error) {
	var out []tlv
	for off := 0; off < len(buf); {
		if off+3 > len(buf) {
			return nil, axerr.Wrap(axerr.KindFormat, "truncated TLV header", axerr.ErrTruncated)
		}
		t := tag(buf[off])
		length := int(binary.BigEndian.Uint16(buf[off+1 : off+3]))
		off += 3
		if off+length > len(buf) {
			return nil, axerr.Wrap(axerr.KindFormat, "TLV length overruns buffer", axerr.ErrTLVOverrun)
		}
		out = append(out, tlv{tag: t, value: buf[off : off+length]})
		off += length
	}
	return out, nil
}

func encodeTLV(out []byte, t tag, value []byte) []byte {
	out = append(out, byte(t))
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(value)))
	out = append(out, lenBuf[:]...)
	out = append(out, value...)
	return out
}

func encodeU32(out []byte, t tag, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return encodeTLV(out, t, b[:])
}

func decodeU32(v []byte) (uint32, error) {
	if len(v) != 4 {
		return 0, axerr.Wrap(axerr.KindFormat, "bad u32 TLV length", axerr.ErrTruncated)
	}
	return binary.BigEndian.Uint32(v), nil
}
