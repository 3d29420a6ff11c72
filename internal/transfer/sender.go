package transfer

import (
	"fmt"

	"github.com/doismellburning/axterm/internal/axdp"
	"github.com/doismellburning/axterm/internal/axerr"
)

// Outgoing tracks one sender-side bulk transfer (spec.md §4.7 steps
// 1-7).
type Outgoing struct {
	SessionID uint32
	Meta      axdp.FileMeta
	Chunks    [][]byte // payload per chunk index

	status     Status
	failReason string

	chunkState []ChunkState
	bytesSent  uint64
}

// NewOutgoing splits data into chunkSize pieces and prepares a
// transfer awaiting peer acceptance of its fileMeta.
func NewOutgoing(sessionID uint32, meta axdp.FileMeta, data []byte, chunkSize int) *Outgoing {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	var chunks [][]byte
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}
	return &Outgoing{
		SessionID:  sessionID,
		Meta:       meta,
		Chunks:     chunks,
		status:     StatusAwaitingAcceptance,
		chunkState: make([]ChunkState, len(chunks)),
	}
}

// Status returns the current lifecycle state.
func (o *Outgoing) Status() Status { return o.status }

// TotalChunks returns the chunk count, matching the totalChunks field
// carried in fileMeta/fileChunk AXDP messages.
func (o *Outgoing) TotalChunks() int { return len(o.Chunks) }

// Progress implements spec.md §8's clamp(bytesSent/fileSize, 0, 1).
func (o *Outgoing) Progress() float64 {
	return clampProgress(o.bytesSent, o.Meta.FileSize)
}

// Accept transitions an awaiting-acceptance transfer into sending
// after the peer acks the fileMeta offer.
func (o *Outgoing) Accept() error {
	if o.status != StatusAwaitingAcceptance {
		return axerr.Wrap(axerr.KindTransfer, "accept outside awaitingAcceptance", axerr.ErrWrongState)
	}
	o.status = StatusSending
	return nil
}

// Reject fails the transfer after a peer nack on the fileMeta offer.
func (o *Outgoing) Reject() {
	if o.status.terminal() {
		return
	}
	o.status = StatusFailed
	o.failReason = "rejected"
}

// NextChunkToSend returns the lowest chunk index in {pending,
// needsRetry}, or (-1, false) if none remain (spec.md §4.7 step 4).
func (o *Outgoing) NextChunkToSend() (int, bool) {
	if o.status != StatusSending {
		return -1, false
	}
	for i, st := range o.chunkState {
		if st == ChunkPending || st == ChunkNeedsRetry {
			return i, true
		}
	}
	return -1, false
}

// MarkSent records that chunk idx was handed to the session layer:
// bytesSent advances immediately (so progress tracks transmission,
// not acknowledgment), and once every chunk is sent the transfer
// enters awaitingCompletion.
func (o *Outgoing) MarkSent(idx int) {
	if idx < 0 || idx >= len(o.chunkState) {
		return
	}
	wasNew := o.chunkState[idx] == ChunkPending
	o.chunkState[idx] = ChunkSent
	if wasNew {
		o.bytesSent += uint64(len(o.Chunks[idx]))
	}

	if o.allSent() && o.status == StatusSending {
		o.status = StatusAwaitingCompletion
	}
}

// MarkNeedsRetry flips a chunk back to needsRetry, e.g. because the
// session reported "window full" or a completion NACK carried it in
// its SACK bitmap as missing.
func (o *Outgoing) MarkNeedsRetry(idx int) {
	if idx < 0 || idx >= len(o.chunkState) {
		return
	}
	o.chunkState[idx] = ChunkNeedsRetry
	if o.status == StatusAwaitingCompletion {
		o.status = StatusSending
	}
}

func (o *Outgoing) allSent() bool {
	for _, st := range o.chunkState {
		if st != ChunkSent {
			return false
		}
	}
	return true
}

// HandleCompletionNack processes a completion nack(messageId=
// 0xFFFFFFFF, sack) per spec.md §4.7 step 6: chunks absent from the
// bitmap flip to needsRetry, which moves an awaitingCompletion
// transfer back to sending until they have been re-sent; it does not
// stay awaitingCompletion meanwhile, and it is never marked failed here.
func (o *Outgoing) HandleCompletionNack(sack axdp.SACKBitmap) []int {
	var retry []int
	for i := range o.Chunks {
		if !sack.Has(uint32(i)) {
			o.MarkNeedsRetry(i)
			retry = append(retry, i)
		}
	}
	return retry
}

// HandleCompletionAck processes completion ack(messageId=0xFFFFFFFF):
// authoritative regardless of prior observed status (spec.md §4.7
// step 7, §8's completion-ACK authority property).
func (o *Outgoing) HandleCompletionAck() {
	if o.status.terminal() {
		return
	}
	o.status = StatusCompleted
}

// Pause is only valid from sending (spec.md §4.7).
func (o *Outgoing) Pause() error {
	if o.status != StatusSending {
		return axerr.Wrap(axerr.KindTransfer, "pause outside sending", axerr.ErrWrongState)
	}
	o.status = StatusPaused
	return nil
}

// Resume is only valid from paused.
func (o *Outgoing) Resume() error {
	if o.status != StatusPaused {
		return axerr.Wrap(axerr.KindTransfer, "resume outside paused", axerr.ErrWrongState)
	}
	o.status = StatusSending
	return nil
}

// Cancel is valid from any non-terminal state; terminal states reject
// it.
func (o *Outgoing) Cancel() error {
	if o.status.terminal() {
		return axerr.Wrap(axerr.KindTransfer, "cancel on terminal transfer", axerr.ErrWrongState)
	}
	o.status = StatusCancelled
	return nil
}

// Fail marks the transfer failed with reason, e.g. "link dropped" on
// a disconnectRequest while in flight (spec.md §5).
func (o *Outgoing) Fail(reason string) {
	if o.status.terminal() {
		return
	}
	o.status = StatusFailed
	o.failReason = reason
}

// FailReason returns the reason recorded by the last Fail/Reject
// call, or "" if the transfer never failed.
func (o *Outgoing) FailReason() string { return o.failReason }

func (o *Outgoing) String() string {
	return fmt.Sprintf("Outgoing{session=%08x status=%s chunks=%d/%d}",
		o.SessionID, o.status, o.sentCount(), len(o.Chunks))
}

func (o *Outgoing) sentCount() int {
	n := 0
	for _, st := range o.chunkState {
		if st == ChunkSent {
			n++
		}
	}
	return n
}
