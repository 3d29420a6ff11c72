package transfer

import (
	"crypto/sha256"

	"github.com/doismellburning/axterm/internal/axdp"
	"github.com/doismellburning/axterm/internal/axerr"
)

// Incoming tracks one receiver-side bulk transfer: a sparse buffer of
// chunks indexed by chunkIndex, verified by CRC32 per chunk and by
// sha256 at completion (spec.md §4.7 step 5).
type Incoming struct {
	SessionID uint32
	Meta      axdp.FileMeta
	Total     int

	received           map[uint32][]byte
	status             Status
	maxDecompressedLen uint32
}

// NewIncoming starts a receiver-side transfer awaiting the caller's
// accept/reject decision on the offered fileMeta. maxDecompressedLen
// is this receiver's own negotiated ceiling on the decompressed size
// (spec.md §4.7); it is enforced only when meta.CompressAlgo names a
// compression scheme.
func NewIncoming(sessionID uint32, meta axdp.FileMeta, total int, maxDecompressedLen uint32) *Incoming {
	return &Incoming{
		SessionID:          sessionID,
		Meta:               meta,
		Total:              total,
		received:           make(map[uint32][]byte),
		status:             StatusAwaitingAcceptance,
		maxDecompressedLen: maxDecompressedLen,
	}
}

// Status returns the current lifecycle state.
func (in *Incoming) Status() Status { return in.status }

// Accept moves the transfer into sending (receiving, from the
// receiver's perspective it is simply "in progress").
func (in *Incoming) Accept() {
	if in.status == StatusAwaitingAcceptance {
		in.status = StatusSending
	}
}

// Reject fails the transfer, corresponding to sending a nack on the
// fileMeta offer.
func (in *Incoming) Reject() {
	if !in.status.terminal() {
		in.status = StatusFailed
	}
}

// WriteChunk verifies payload's CRC32 against crc and, if it matches,
// stores it at idx. A CRC mismatch silently drops the chunk per
// spec.md §7's transfer-error handling: retransmission is driven by
// the completion NACK/SACK cycle, not an immediate per-chunk error.
func (in *Incoming) WriteChunk(idx uint32, payload []byte, crc uint32) error {
	if axdp.ChecksumIEEE(payload) != crc {
		return nil
	}
	if int(idx) >= in.Total {
		return axerr.Wrap(axerr.KindTransfer, "chunk index beyond totalChunks", axerr.ErrWrongState)
	}
	in.received[idx] = payload
	return nil
}

// IsComplete reports whether received == {0..Total-1}.
func (in *Incoming) IsComplete() bool {
	if in.Total == 0 {
		return true
	}
	for i := 0; i < in.Total; i++ {
		if _, ok := in.received[uint32(i)]; !ok {
			return false
		}
	}
	return true
}

// SACK builds the selective-ack bitmap of currently received chunks,
// base 0, window Total, for use in a completion nack.
func (in *Incoming) SACK() axdp.SACKBitmap {
	s := axdp.SACKBitmap{BaseChunk: 0, Window: uint16(in.Total)}
	for i := 0; i < in.Total; i++ {
		if _, ok := in.received[uint32(i)]; ok {
			s.Set(uint32(i))
		}
	}
	return s
}

// Assemble concatenates chunks 0..Total-1 in order. Callers must check
// IsComplete first.
func (in *Incoming) Assemble() []byte {
	out := make([]byte, 0, in.Meta.FileSize)
	for i := 0; i < in.Total; i++ {
		out = append(out, in.received[uint32(i)]...)
	}
	return out
}

// decompressed returns the assembled file in its original
// (decompressed) form, undoing Meta.CompressAlgo if one was negotiated
// for this transfer (spec.md §4.7).
func (in *Incoming) decompressed() ([]byte, error) {
	raw := in.Assemble()
	switch Algorithm(in.Meta.CompressAlgo) {
	case "", AlgorithmNone:
		return raw, nil
	case AlgorithmLZ4:
		return DecompressLZ4(raw, int(in.Meta.FileSize), in.maxDecompressedLen)
	default:
		return nil, axerr.Wrap(axerr.KindTransfer, "unsupported compression algorithm", axerr.ErrWrongState)
	}
}

// VerifySHA256 reports whether the decompressed file's digest matches
// the offered FileMeta.SHA256.
func (in *Incoming) VerifySHA256() bool {
	data, err := in.decompressed()
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)
	return sum == in.Meta.SHA256
}

// HandleCompletionRequest reports ok=true when the receiver should
// reply with completion ack; ok=false means it should reply with
// completion nack carrying the returned SACK.
func (in *Incoming) HandleCompletionRequest() (ok bool, sack axdp.SACKBitmap) {
	if in.IsComplete() && in.VerifySHA256() {
		in.status = StatusCompleted
		return true, axdp.SACKBitmap{}
	}
	return false, in.SACK()
}

// Fail marks the transfer failed; reason (e.g. "link dropped") is not
// recorded on the Incoming.
func (in *Incoming) Fail(reason string) {
	if !in.status.terminal() {
		in.status = StatusFailed
	}
}
