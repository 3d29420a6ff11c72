package transfer

import (
	"crypto/sha256"
	"testing"

	"github.com/doismellburning/axterm/internal/axdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourChunkData() []byte {
	return []byte("aaaabbbbccccdddd") // four 4-byte chunks
}

func newFourChunkOutgoing() *Outgoing {
	data := fourChunkData()
	sum := sha256.Sum256(data)
	meta := axdp.FileMeta{FileName: "x.bin", FileSize: uint64(len(data)), SHA256: sum, ChunkSize: 4}
	o := NewOutgoing(0x12345678, meta, data, 4)
	_ = o.Accept()
	return o
}

// Scenario 6 from spec.md §8: completion NACK with a SACK bitmap
// {0,1,3 received} leaves chunk 2 needsRetry without failing the
// transfer; once chunk 2 is resent and a completion ack follows, the
// transfer completes.
func TestScenario6CompletionNackThenAck(t *testing.T) {
	o := newFourChunkOutgoing()
	require.Equal(t, 4, o.TotalChunks())

	for i := 0; i < 4; i++ {
		idx, ok := o.NextChunkToSend()
		require.True(t, ok)
		require.Equal(t, i, idx)
		o.MarkSent(idx)
	}
	require.Equal(t, StatusAwaitingCompletion, o.Status())

	sack := axdp.SACKBitmap{BaseChunk: 0, Window: 4}
	sack.Set(0)
	sack.Set(1)
	sack.Set(3)

	retry := o.HandleCompletionNack(sack)
	assert.Equal(t, []int{2}, retry)
	assert.Equal(t, StatusSending, o.Status(), "must remain in-progress, never failed")

	idx, ok := o.NextChunkToSend()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	o.MarkSent(idx)
	assert.Equal(t, StatusAwaitingCompletion, o.Status())

	o.HandleCompletionAck()
	assert.Equal(t, StatusCompleted, o.Status())
}

func TestCompletionAckAuthoritativeFromAnyNonTerminalState(t *testing.T) {
	o := newFourChunkOutgoing()
	o.HandleCompletionAck()
	assert.Equal(t, StatusCompleted, o.Status())
}

func TestCompletionAckIgnoredOnTerminalTransfer(t *testing.T) {
	o := newFourChunkOutgoing()
	_ = o.Cancel()
	o.HandleCompletionAck()
	assert.Equal(t, StatusCancelled, o.Status())
}

func TestBytesSentMonotonicExceptOnRetry(t *testing.T) {
	o := newFourChunkOutgoing()
	idx, _ := o.NextChunkToSend()
	o.MarkSent(idx)
	before := o.bytesSent

	o.MarkNeedsRetry(idx)
	assert.Equal(t, before, o.bytesSent, "retry does not un-count bytesSent")

	o.MarkSent(idx)
	assert.Equal(t, before, o.bytesSent, "re-sending an already-counted chunk does not double count")
}

func TestPauseResumeCancelStateRules(t *testing.T) {
	o := newFourChunkOutgoing()
	assert.Error(t, o.Resume(), "resume only valid from paused")

	require.NoError(t, o.Pause())
	assert.Equal(t, StatusPaused, o.Status())
	assert.Error(t, o.Pause(), "pause only valid from sending")

	require.NoError(t, o.Resume())
	assert.Equal(t, StatusSending, o.Status())

	require.NoError(t, o.Cancel())
	assert.Equal(t, StatusCancelled, o.Status())
	assert.Error(t, o.Cancel(), "terminal states reject transitions")
}

func TestProgressClampedToUnitInterval(t *testing.T) {
	o := newFourChunkOutgoing()
	assert.Equal(t, 0.0, o.Progress())
	idx, _ := o.NextChunkToSend()
	o.MarkSent(idx)
	assert.InDelta(t, 0.25, o.Progress(), 1e-9)
}

func TestIncomingWriteChunkRejectsBadCRC(t *testing.T) {
	in := NewIncoming(1, axdp.FileMeta{FileSize: 4}, 1, 1<<20)
	in.Accept()
	err := in.WriteChunk(0, []byte("data"), 0xDEADBEEF)
	require.NoError(t, err)
	assert.False(t, in.IsComplete(), "bad CRC chunk is dropped, not stored")
}

func TestIncomingWriteChunkAcceptsGoodCRCAndCompletes(t *testing.T) {
	data := []byte("data")
	crc := axdp.ChecksumIEEE(data)
	in := NewIncoming(1, axdp.FileMeta{FileSize: uint64(len(data)), SHA256: sha256.Sum256(data)}, 1, 1<<20)
	in.Accept()
	require.NoError(t, in.WriteChunk(0, data, crc))
	assert.True(t, in.IsComplete())

	ok, _ := in.HandleCompletionRequest()
	assert.True(t, ok)
	assert.Equal(t, StatusCompleted, in.Status())
}

func TestIncomingSACKReflectsReceivedSet(t *testing.T) {
	in := NewIncoming(1, axdp.FileMeta{}, 3, 1<<20)
	in.Accept()
	data := []byte("xx")
	require.NoError(t, in.WriteChunk(0, data, axdp.ChecksumIEEE(data)))
	require.NoError(t, in.WriteChunk(2, data, axdp.ChecksumIEEE(data)))

	sack := in.SACK()
	assert.True(t, sack.Has(0))
	assert.False(t, sack.Has(1))
	assert.True(t, sack.Has(2))
}

func TestIncomingVerifySHA256DecompressesLZ4Payload(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog, repeated for good compression: the quick brown fox jumps over the lazy dog")
	compressed, _, err := CompressLZ4(original)
	require.NoError(t, err)

	meta := axdp.FileMeta{
		FileSize:     uint64(len(original)),
		SHA256:       sha256.Sum256(original),
		CompressAlgo: string(AlgorithmLZ4),
	}
	in := NewIncoming(1, meta, 1, 1<<20)
	in.Accept()
	require.NoError(t, in.WriteChunk(0, compressed, axdp.ChecksumIEEE(compressed)))
	require.True(t, in.IsComplete())
	assert.True(t, in.VerifySHA256())
}

func TestAnalyzerSkipsSmallFiles(t *testing.T) {
	a := Analyzer{AbsoluteMaxDecompressedLen: 4096}
	assert.Equal(t, AlgorithmNone, a.Select("tiny.txt", make([]byte, 10)))
}

func TestAnalyzerSkipsPrecompressedExtension(t *testing.T) {
	a := Analyzer{AbsoluteMaxDecompressedLen: 4096}
	assert.Equal(t, AlgorithmNone, a.Select("photo.png", make([]byte, 1000)))
}

func TestAnalyzerSkipsPrecompressedMagic(t *testing.T) {
	a := Analyzer{AbsoluteMaxDecompressedLen: 4096}
	data := append([]byte{0x1F, 0x8B}, make([]byte, 1000)...)
	assert.Equal(t, AlgorithmNone, a.Select("mystery.dat", data))
}

func TestAnalyzerSelectsLZ4ForCompressibleData(t *testing.T) {
	a := Analyzer{AbsoluteMaxDecompressedLen: 4096}
	data := make([]byte, 1000)
	assert.Equal(t, AlgorithmLZ4, a.Select("data.txt", data))
}

func TestLZ4RoundTrip(t *testing.T) {
	var src []byte
	for i := 0; i < 200; i++ {
		src = append(src, []byte("the quick brown fox jumps over the lazy dog, ")...)
	}
	compressed, metrics, err := CompressLZ4(src)
	require.NoError(t, err)
	assert.True(t, metrics.Effective())

	out, err := DecompressLZ4(compressed, len(src), 65536)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestMetricsBytesSavedSaturatesAtZero(t *testing.T) {
	m := Metrics{OriginalSize: 10, CompressedSize: 20}
	assert.Equal(t, 0, m.BytesSaved())
}
