package coordinator

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/doismellburning/axterm/internal/axdp"
	"github.com/doismellburning/axterm/internal/transfer"
)

// Pump drains outbound bytes into every session whose window still
// has room, visiting links in a fixed order sorted by SessionKey (spec.md §5:
// "a single outbound pump, run after every event"). Queued control
// messages (chat, capability, acks/nacks) always go out ahead of bulk
// transfer chunks for a given link.
func (c *Coordinator) Pump() {
	keys := slices.SortedFunc(maps.Keys(c.links), func(a, b SessionKey) int {
		return cmp.Or(strings.Compare(a.Local, b.Local), strings.Compare(a.Remote, b.Remote),
			strings.Compare(a.Path, b.Path), cmp.Compare(a.Channel, b.Channel))
	})
	for _, key := range keys {
		lk := c.links[key]
		applyAIMDWindow(lk)
		for lk.sess.CanSend() {
			payload, ok := c.nextOutboundPayload(lk)
			if !ok {
				break
			}
			c.sendNextIFrame(lk, payload)
		}
	}
}

// applyAIMDWindow feeds C6's adaptive window estimate into the
// session's actual outstanding-frame limit (spec.md §2: "C6 feeds
// parameters into C5 — RTO, window, paclen"), so congestion/loss
// signals observed on acks and REJs actually clamp how many I-frames
// CanSend() will allow outstanding at once.
func applyAIMDWindow(lk *link) {
	if lk.aimd == nil {
		return
	}
	lk.sess.Config.Window = lk.aimd.EffectiveWindow()
}

func (c *Coordinator) nextOutboundPayload(lk *link) ([]byte, bool) {
	if len(lk.outbox) > 0 {
		payload := lk.outbox[0]
		lk.outbox = lk.outbox[1:]
		return payload, true
	}
	return c.nextChunkPayload(lk)
}

// nextChunkPayload finds the first outgoing transfer on this link
// with a chunk still owed to the wire, wraps that chunk whole in one
// fileChunk message (chunk size was fixed from paclen when SendFile
// built the transfer), and advances that transfer's sender state. It also
// queues the completion-request handshake once every chunk has gone
// out at least once.
func (c *Coordinator) nextChunkPayload(lk *link) ([]byte, bool) {
	for _, sid := range lk.outgoingTransfers {
		t := c.transfersOut[sid]
		if t == nil {
			continue
		}
		idx, ok := t.NextChunkToSend()
		if !ok {
			continue
		}

		chunk := t.Chunks[idx]
		msg := axdp.Message{
			Type:           axdp.TypeFileChunk,
			SessionID:      sid,
			MessageID:      uint32(idx),
			HasChunkIndex:  true,
			ChunkIndex:     uint32(idx),
			HasTotalChunks: true,
			TotalChunks:    uint32(t.TotalChunks()),
			Payload:        chunk,
			HasPayloadCRC:  true,
			PayloadCRC32:   axdp.ChecksumIEEE(chunk),
		}

		t.MarkSent(idx)
		c.notifyTransferUpdate(lk.key, sid, true, t.Status(), t.Progress(), t.FailReason())

		if t.Status() == transfer.StatusAwaitingCompletion {
			lk.outbox = append(lk.outbox, axdp.Encode(axdp.Message{
				Type:      axdp.TypeFileChunk,
				SessionID: sid,
				MessageID: axdp.MessageIDCompletionRequest,
			}))
		}

		return axdp.Encode(msg), true
	}
	return nil, false
}

func (c *Coordinator) notifyTransferUpdate(key SessionKey, sid uint32, outbound bool, status transfer.Status, progress float64, failReason string) {
	if c.callbacks.OnTransferUpdate == nil {
		return
	}
	c.callbacks.OnTransferUpdate(BulkTransfer{
		SessionID: sid,
		Key:       key,
		Outbound:  outbound,
		Status:    status,
		Progress:  progress,
		FailedWhy: failReason,
	})
}
