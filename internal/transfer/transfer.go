// Package transfer implements the bulk file transfer engine (spec.md
// §4.7): chunked sends over an AXDP-carrying AX.25 session, a
// sparse-buffer receiver with CRC32-per-chunk and SACK-bitmap repair,
// and a magic-byte compression analyzer. The chunk scheduling and
// per-item state tracking mirrors the outstanding-frame bookkeeping in
// internal/session (a map of index to payload plus an explicit state
// enum), generalized here to three chunk states (pending, sent,
// needsRetry).
package transfer

import (
	"fmt"

	"github.com/doismellburning/axterm/internal/axerr"
)

// Status is the lifecycle state of a transfer, sender or receiver
// side.
type Status int

const (
	StatusAwaitingAcceptance Status = iota
	StatusSending
	StatusAwaitingCompletion
	StatusPaused
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAwaitingAcceptance:
		return "awaitingAcceptance"
	case StatusSending:
		return "sending"
	case StatusAwaitingCompletion:
		return "awaitingCompletion"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// ChunkState is the per-chunk scheduling state on the sender side.
type ChunkState int

const (
	ChunkPending ChunkState = iota
	ChunkSent
	ChunkNeedsRetry
)

// Reserved AXDP messageId values for the completion handshake
// (spec.md §3, §4.4), re-exported here so callers need not import
// internal/axdp just for these two constants.
const (
	MessageIDCompletionRequest = 0xFFFFFFFE
	MessageIDCompletionAck     = 0xFFFFFFFF
)

// clampProgress implements spec.md §8's `progress =
// clamp(bytesSent/fileSize, 0, 1)`.
func clampProgress(bytesSent, fileSize uint64) float64 {
	if fileSize == 0 {
		return 1
	}
	p := float64(bytesSent) / float64(fileSize)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func errRejected(reason string) error {
	return axerr.Wrap(axerr.KindTransfer, fmt.Sprintf("rejected: %s", reason), axerr.ErrWrongState)
}
