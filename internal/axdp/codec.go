package axdp

import (
	"encoding/binary"

	"github.com/doismellburning/axterm/internal/axerr"
)

// Encode serializes m to its AXDP wire form: magic + TLVs.
func Encode(m Message) []byte {
	out := make([]byte, 0, 64)
	out = append(out, Magic[:]...)

	out = encodeTLV(out, tagType, []byte{byte(m.Type)})
	out = encodeU32(out, tagSessionID, m.SessionID)
	out = encodeU32(out, tagMessageID, m.MessageID)

	if m.HasChunkIndex {
		out = encodeU32(out, tagChunkIndex, m.ChunkIndex)
	}
	if m.HasTotalChunks {
		out = encodeU32(out, tagTotalChunks, m.TotalChunks)
	}
	if m.Payload != nil {
		out = encodeTLV(out, tagPayload, m.Payload)
	}
	if m.HasPayloadCRC {
		out = encodeU32(out, tagPayloadCRC32, m.PayloadCRC32)
	}
	if m.HasSACK {
		out = encodeTLV(out, tagSACKBitmap, encodeSACK(m.SACK))
	}
	if m.HasFileMeta {
		out = encodeTLV(out, tagFileMeta, encodeFileMeta(m.FileMeta))
	}
	if m.HasCapability {
		out = encodeTLV(out, tagCapabilities, encodeCapability(m.Capability))
	}

	return out
}

func encodeSACK(s SACKBitmap) []byte {
	var out []byte
	out = encodeU32(out, tagSACKBase, s.BaseChunk)
	var winBuf [2]byte
	binary.BigEndian.PutUint16(winBuf[:], s.Window)
	out = encodeTLV(out, tagSACKWindow, winBuf[:])
	out = encodeTLV(out, tagSACKBits, s.Bits)
	return out
}

func encodeFileMeta(fm FileMeta) []byte {
	var out []byte
	out = encodeTLV(out, tagFileName, []byte(fm.FileName))
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], fm.FileSize)
	out = encodeTLV(out, tagFileSize, sizeBuf[:])
	out = encodeTLV(out, tagFileSHA256, fm.SHA256[:])
	out = encodeU32(out, tagFileChunkSize, fm.ChunkSize)
	if fm.CompressAlgo != "" {
		out = encodeTLV(out, tagFileCompressAlgo, []byte(fm.CompressAlgo))
	}
	return out
}

func encodeCapability(c Capability) []byte {
	var out []byte
	out = encodeTLV(out, tagCapProtoMax, []byte{c.ProtoMax})
	algos := joinAlgorithms(c.Algorithms)
	out = encodeTLV(out, tagCapAlgorithms, algos)
	out = encodeU32(out, tagCapMaxDecompLen, c.MaxDecompressedLen)
	return out
}

func joinAlgorithms(algos []string) []byte {
	var out []byte
	for i, a := range algos {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, a...)
	}
	return out
}

func splitAlgorithms(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	start := 0
	for i, c := range b {
		if c == ',' {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	out = append(out, string(b[start:]))
	return out
}

// Decode parses an AXDP message from raw. It returns an error (never
// panics) when the magic is missing or any TLV length would overrun
// the buffer, per spec.md §4.4 and the "similar but not equal magic
// is rejected" requirement of §8.
func Decode(raw []byte) (*Message, error) {
	if !HasMagic(raw) {
		return nil, axerr.Wrap(axerr.KindFormat, "missing AXT1 magic", axerr.ErrBadMagic)
	}

	tlvs, err := decodeTLVs(raw[len(Magic):])
	if err != nil {
		return nil, err
	}

	m := &Message{}
	sawType, sawSession, sawMessage := false, false, false

	for _, t := range tlvs {
		switch t.tag {
		case tagType:
			if len(t.value) != 1 {
				return nil, axerr.New(axerr.KindFormat, "bad type TLV length")
			}
			m.Type = Type(t.value[0])
			sawType = true
		case tagSessionID:
			v, err := decodeU32(t.value)
			if err != nil {
				return nil, err
			}
			m.SessionID = v
			sawSession = true
		case tagMessageID:
			v, err := decodeU32(t.value)
			if err != nil {
				return nil, err
			}
			m.MessageID = v
			sawMessage = true
		case tagChunkIndex:
			v, err := decodeU32(t.value)
			if err != nil {
				return nil, err
			}
			m.HasChunkIndex, m.ChunkIndex = true, v
		case tagTotalChunks:
			v, err := decodeU32(t.value)
			if err != nil {
				return nil, err
			}
			m.HasTotalChunks, m.TotalChunks = true, v
		case tagPayload:
			m.Payload = append([]byte{}, t.value...)
		case tagPayloadCRC32:
			v, err := decodeU32(t.value)
			if err != nil {
				return nil, err
			}
			m.HasPayloadCRC, m.PayloadCRC32 = true, v
		case tagSACKBitmap:
			sack, err := decodeSACK(t.value)
			if err != nil {
				return nil, err
			}
			m.HasSACK, m.SACK = true, sack
		case tagFileMeta:
			fm, err := decodeFileMeta(t.value)
			if err != nil {
				return nil, err
			}
			m.HasFileMeta, m.FileMeta = true, fm
		case tagCapabilities:
			cap_, err := decodeCapability(t.value)
			if err != nil {
				return nil, err
			}
			m.HasCapability, m.Capability = true, cap_
		default:
			// Unknown tags are preserved-by-ignoring per spec.md §4.4.
		}
	}

	if !sawType || !sawSession || !sawMessage {
		return nil, axerr.New(axerr.KindFormat, "missing required AXDP field")
	}

	return m, nil
}

func decodeSACK(buf []byte) (SACKBitmap, error) {
	tlvs, err := decodeTLVs(buf)
	if err != nil {
		return SACKBitmap{}, err
	}
	var s SACKBitmap
	for _, t := range tlvs {
		switch t.tag {
		case tagSACKBase:
			v, err := decodeU32(t.value)
			if err != nil {
				return SACKBitmap{}, err
			}
			s.BaseChunk = v
		case tagSACKWindow:
			if len(t.value) != 2 {
				return SACKBitmap{}, axerr.New(axerr.KindFormat, "bad SACK window length")
			}
			s.Window = binary.BigEndian.Uint16(t.value)
		case tagSACKBits:
			s.Bits = append([]byte(nil), t.value...)
		}
	}
	return s, nil
}

func decodeFileMeta(buf []byte) (FileMeta, error) {
	tlvs, err := decodeTLVs(buf)
	if err != nil {
		return FileMeta{}, err
	}
	var fm FileMeta
	for _, t := range tlvs {
		switch t.tag {
		case tagFileName:
			fm.FileName = string(t.value)
		case tagFileSize:
			if len(t.value) != 8 {
				return FileMeta{}, axerr.New(axerr.KindFormat, "bad file size length")
			}
			fm.FileSize = binary.BigEndian.Uint64(t.value)
		case tagFileSHA256:
			if len(t.value) != 32 {
				return FileMeta{}, axerr.New(axerr.KindFormat, "bad sha256 length")
			}
			copy(fm.SHA256[:], t.value)
		case tagFileChunkSize:
			v, err := decodeU32(t.value)
			if err != nil {
				return FileMeta{}, err
			}
			fm.ChunkSize = v
		case tagFileCompressAlgo:
			fm.CompressAlgo = string(t.value)
		}
	}
	return fm, nil
}

func decodeCapability(buf []byte) (Capability, error) {
	tlvs, err := decodeTLVs(buf)
	if err != nil {
		return Capability{}, err
	}
	var c Capability
	for _, t := range tlvs {
		switch t.tag {
		case tagCapProtoMax:
			if len(t.value) != 1 {
				return Capability{}, axerr.New(axerr.KindFormat, "bad proto_max length")
			}
			c.ProtoMax = t.value[0]
		case tagCapAlgorithms:
			c.Algorithms = splitAlgorithms(t.value)
		case tagCapMaxDecompLen:
			v, err := decodeU32(t.value)
			if err != nil {
				return Capability{}, err
			}
			c.MaxDecompressedLen = v
		}
	}
	return c, nil
}
