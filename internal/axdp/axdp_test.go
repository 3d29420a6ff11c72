package axdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// hasMagic(b) iff b starts with the literal four bytes AXT1,
// regardless of later bytes (spec.md §8).
func TestHasMagic(t *testing.T) {
	assert.True(t, HasMagic([]byte("AXT1")))
	assert.True(t, HasMagic([]byte("AXT1 and then anything")))
	assert.False(t, HasMagic([]byte("AXT0")))
	assert.False(t, HasMagic([]byte("AX")))
	assert.False(t, HasMagic(nil))
}

func TestDecodeRejectsSimilarButWrongMagic(t *testing.T) {
	raw := []byte("AXT2\x01\x00\x01\x01")
	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestDecodeNeverPanicsOnTruncatedInput(t *testing.T) {
	raw := append(Magic[:], 0x09, 0x00, 0xFF)
	assert.NotPanics(t, func() {
		_, _ = Decode(raw)
	})
	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestEncodeDecodeChatRoundTrip(t *testing.T) {
	m := Message{
		Type:      TypeChat,
		SessionID: 0x11223344,
		MessageID: 7,
		Payload:   []byte("hello via AX.25"),
	}
	raw := Encode(m)
	require.True(t, HasMagic(raw))

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, m.Type, got.Type)
	assert.Equal(t, m.SessionID, got.SessionID)
	assert.Equal(t, m.MessageID, got.MessageID)
	assert.Equal(t, m.Payload, got.Payload)
}

func TestEncodeDecodeFileMetaRoundTrip(t *testing.T) {
	fm := FileMeta{
		FileName:  "report.txt",
		FileSize:  4096,
		SHA256:    [32]byte{1, 2, 3},
		ChunkSize: 220,
	}
	m := Message{
		Type:           TypeFileMeta,
		SessionID:      1,
		MessageID:      0,
		HasTotalChunks: true,
		TotalChunks:    19,
		HasFileMeta:    true,
		FileMeta:       fm,
	}
	raw := Encode(m)
	got, err := Decode(raw)
	require.NoError(t, err)
	require.True(t, got.HasFileMeta)
	assert.Equal(t, fm, got.FileMeta)
	assert.Equal(t, uint32(19), got.TotalChunks)
}

func TestEncodeDecodeFileMetaCompressAlgoRoundTrip(t *testing.T) {
	fm := FileMeta{
		FileName:     "archive.tar",
		FileSize:     65536,
		SHA256:       [32]byte{9, 9, 9},
		ChunkSize:    128,
		CompressAlgo: "lz4",
	}
	m := Message{Type: TypeFileMeta, SessionID: 1, MessageID: 0, HasFileMeta: true, FileMeta: fm}
	raw := Encode(m)
	got, err := Decode(raw)
	require.NoError(t, err)
	require.True(t, got.HasFileMeta)
	assert.Equal(t, fm, got.FileMeta)
}

func TestEncodeDecodeFileChunkWithCRCRoundTrip(t *testing.T) {
	payload := []byte("chunk bytes")
	m := Message{
		Type:          TypeFileChunk,
		SessionID:     0x99,
		MessageID:     3,
		HasChunkIndex: true,
		ChunkIndex:    2,
		Payload:       payload,
		HasPayloadCRC: true,
		PayloadCRC32:  ChecksumIEEE(payload),
	}
	raw := Encode(m)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, m.ChunkIndex, got.ChunkIndex)
	assert.Equal(t, m.PayloadCRC32, got.PayloadCRC32)
	assert.Equal(t, ChecksumIEEE(got.Payload), got.PayloadCRC32)
}

func TestEncodeDecodeCompletionNackWithSACKRoundTrip(t *testing.T) {
	sack := SACKBitmap{BaseChunk: 0, Window: 4}
	sack.Set(0)
	sack.Set(1)
	sack.Set(3)

	m := Message{
		Type:      TypeNack,
		SessionID: 0x12345678,
		MessageID: MessageIDCompletionAck,
		HasSACK:   true,
		SACK:      sack,
	}
	raw := Encode(m)
	got, err := Decode(raw)
	require.NoError(t, err)
	require.True(t, got.HasSACK)
	assert.True(t, got.SACK.Has(0))
	assert.True(t, got.SACK.Has(1))
	assert.False(t, got.SACK.Has(2))
	assert.True(t, got.SACK.Has(3))
}

func TestEncodeDecodeCapabilityRoundTrip(t *testing.T) {
	cap1 := Capability{ProtoMax: 2, Algorithms: []string{"lz4", "deflate"}, MaxDecompressedLen: 4096}
	m := Message{Type: TypePing, SessionID: 1, MessageID: 1, HasCapability: true, Capability: cap1}
	raw := Encode(m)
	got, err := Decode(raw)
	require.NoError(t, err)
	require.True(t, got.HasCapability)
	assert.Equal(t, cap1, got.Capability)
}

func TestDecodeUnknownTagsIgnored(t *testing.T) {
	m := Message{Type: TypePing, SessionID: 1, MessageID: 1}
	raw := Encode(m)
	raw = encodeTLV(raw, tag(200), []byte{0xDE, 0xAD})

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypePing, got.Type)
}

func TestDecodeMissingRequiredFieldFails(t *testing.T) {
	raw := append([]byte(nil), Magic[:]...)
	_, err := Decode(raw)
	assert.Error(t, err)
}

// AXDP TLV codec is bijective over its defined domain (spec.md §8).
func TestRapidMessageRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := Message{
			Type:          Type(rapid.IntRange(1, 8).Draw(rt, "type")),
			SessionID:     rapid.Uint32().Draw(rt, "sessionID"),
			MessageID:     rapid.Uint32().Draw(rt, "messageID"),
			HasChunkIndex: rapid.Bool().Draw(rt, "hasChunkIndex"),
			Payload:       rapid.SliceOfN(rapid.Byte(), 0, 48).Draw(rt, "payload"),
		}
		if m.HasChunkIndex {
			m.ChunkIndex = rapid.Uint32().Draw(rt, "chunkIndex")
		}

		raw := Encode(m)
		got, err := Decode(raw)
		require.NoError(rt, err)
		assert.Equal(rt, m.Type, got.Type)
		assert.Equal(rt, m.SessionID, got.SessionID)
		assert.Equal(rt, m.MessageID, got.MessageID)
		assert.Equal(rt, m.HasChunkIndex, got.HasChunkIndex)
		if m.HasChunkIndex {
			assert.Equal(rt, m.ChunkIndex, got.ChunkIndex)
		}
		assert.Equal(rt, m.Payload, got.Payload)
	})
}

func TestRapidDecodeNeverPanics(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.SliceOfN(rapid.Byte(), 0, 128).Draw(rt, "raw")
		assert.NotPanics(t, func() { _, _ = Decode(raw) })
	})
}
