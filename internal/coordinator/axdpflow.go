package coordinator

import (
	"github.com/doismellburning/axterm/internal/axdp"
	"github.com/doismellburning/axterm/internal/transfer"
)

// handleAXDP dispatches one decoded application message to chat,
// capability negotiation, or the bulk transfer engine (spec.md §4.4,
// §4.7).
func (c *Coordinator) handleAXDP(lk *link, msg *axdp.Message) {
	switch msg.Type {
	case axdp.TypeChat:
		if c.callbacks.OnChat != nil {
			c.callbacks.OnChat(lk.key.Remote, string(msg.Payload))
		}
	case axdp.TypePing, axdp.TypePong:
		c.handleCapabilityMessage(lk, msg)
	case axdp.TypeFileMeta:
		c.handleFileMetaOffer(lk, msg)
	case axdp.TypeFileChunk:
		c.handleFileChunk(lk, msg)
	case axdp.TypeAck:
		c.handleCompletionAck(lk, msg)
	case axdp.TypeNack:
		c.handleCompletionNack(lk, msg)
	case axdp.TypeClose:
		c.handleRemoteCancel(lk, msg)
	}
}

func (c *Coordinator) queueControl(lk *link, msg axdp.Message) {
	lk.outbox = append(lk.outbox, axdp.Encode(msg))
}

func (c *Coordinator) localCapability() axdp.Capability {
	algos := []string{"none"}
	if c.Cfg.CompressionEnabled && c.Cfg.CompressionAlgorithm != "" && c.Cfg.CompressionAlgorithm != "none" {
		algos = append(algos, c.Cfg.CompressionAlgorithm)
	}
	return axdp.Capability{
		ProtoMax:           1,
		Algorithms:         algos,
		MaxDecompressedLen: c.Cfg.MaxDecompressedPayload,
	}
}

// peerSupportsCompression reports whether remote's negotiated
// capability (if any has been heard yet) advertises lz4, gating
// SendFile's use of the compression analyzer (spec.md §4.7).
func (c *Coordinator) peerSupportsCompression(lk *link) bool {
	if !lk.haveCapability {
		return false
	}
	for _, a := range lk.capability.Algorithms {
		if a == string(transfer.AlgorithmLZ4) {
			return true
		}
	}
	return false
}

func (c *Coordinator) handleCapabilityMessage(lk *link, msg *axdp.Message) {
	if msg.HasCapability {
		lk.capability = msg.Capability
		lk.haveCapability = true
		if c.callbacks.OnCapability != nil {
			c.callbacks.OnCapability(lk.key.Remote, msg.Capability)
		}
	}
	if msg.Type == axdp.TypePing {
		c.queueControl(lk, axdp.Message{
			Type:          axdp.TypePong,
			SessionID:     msg.SessionID,
			MessageID:     msg.MessageID,
			HasCapability: true,
			Capability:    c.localCapability(),
		})
	}
}

func (c *Coordinator) handleFileMetaOffer(lk *link, msg *axdp.Message) {
	if !msg.HasFileMeta {
		return
	}
	sid := msg.SessionID
	in := transfer.NewIncoming(sid, msg.FileMeta, int(msg.TotalChunks), c.localCapability().MaxDecompressedLen)
	c.transfersIn[sid] = in
	c.transferKey[sid] = lk.key
	lk.incomingTransfers = append(lk.incomingTransfers, sid)

	req := IncomingTransferRequest{
		Key:   lk.key,
		Meta:  msg.FileMeta,
		Total: int(msg.TotalChunks),
		accept: func(ok bool) {
			if ok {
				in.Accept()
				c.queueControl(lk, axdp.Message{Type: axdp.TypeAck, SessionID: sid})
			} else {
				in.Reject()
				c.queueControl(lk, axdp.Message{Type: axdp.TypeNack, SessionID: sid})
			}
			c.notifyTransferUpdate(lk.key, sid, false, in.Status(), 0, "")
		},
	}

	if c.callbacks.OnTransferRequest != nil {
		c.callbacks.OnTransferRequest(req)
	}
}

func (c *Coordinator) handleFileChunk(lk *link, msg *axdp.Message) {
	in, ok := c.transfersIn[msg.SessionID]
	if !ok {
		return
	}

	if msg.MessageID == axdp.MessageIDCompletionRequest {
		complete, sack := in.HandleCompletionRequest()
		if complete {
			c.queueControl(lk, axdp.Message{Type: axdp.TypeAck, SessionID: msg.SessionID, MessageID: axdp.MessageIDCompletionAck})
		} else {
			c.queueControl(lk, axdp.Message{Type: axdp.TypeNack, SessionID: msg.SessionID, MessageID: axdp.MessageIDCompletionAck, HasSACK: true, SACK: sack})
		}
		c.notifyTransferUpdate(lk.key, msg.SessionID, false, in.Status(), completionProgress(in), "")
		return
	}

	_ = in.WriteChunk(msg.ChunkIndex, msg.Payload, msg.PayloadCRC32)
}

// completionProgress approximates receiver-side progress as the
// fraction of chunks currently held, since Incoming (unlike Outgoing)
// tracks no bytesSent counter of its own.
func completionProgress(in *transfer.Incoming) float64 {
	if in.Total == 0 {
		return 1
	}
	sack := in.SACK()
	have := 0
	for i := 0; i < in.Total; i++ {
		if sack.Has(uint32(i)) {
			have++
		}
	}
	return float64(have) / float64(in.Total)
}

// handleCompletionAck handles TypeAck: messageId=completionAck means
// "transfer complete" (spec.md §4.7 step 7); any other messageId is
// the peer accepting a fileMeta offer and starting the send.
func (c *Coordinator) handleCompletionAck(lk *link, msg *axdp.Message) {
	t, ok := c.transfersOut[msg.SessionID]
	if !ok {
		return
	}
	if msg.MessageID == axdp.MessageIDCompletionAck {
		t.HandleCompletionAck()
	} else {
		c.acceptOutgoingOffer(msg.SessionID)
	}
	c.notifyTransferUpdate(lk.key, msg.SessionID, true, t.Status(), t.Progress(), t.FailReason())
}

// handleCompletionNack handles TypeNack: a SACK-bearing nack at
// completionAck means "still missing these chunks" (step 6); any
// other messageId is the peer rejecting a fileMeta offer outright.
func (c *Coordinator) handleCompletionNack(lk *link, msg *axdp.Message) {
	t, ok := c.transfersOut[msg.SessionID]
	if !ok {
		return
	}
	if msg.MessageID == axdp.MessageIDCompletionAck && msg.HasSACK {
		t.HandleCompletionNack(msg.SACK)
	} else {
		t.Reject()
	}
	c.notifyTransferUpdate(lk.key, msg.SessionID, true, t.Status(), t.Progress(), t.FailReason())
}

func (c *Coordinator) handleRemoteCancel(lk *link, msg *axdp.Message) {
	if t, ok := c.transfersOut[msg.SessionID]; ok {
		_ = t.Cancel()
		c.notifyTransferUpdate(lk.key, msg.SessionID, true, t.Status(), t.Progress(), t.FailReason())
	}
	if in, ok := c.transfersIn[msg.SessionID]; ok {
		in.Fail("cancelled by peer")
		c.notifyTransferUpdate(lk.key, msg.SessionID, false, in.Status(), 0, "cancelled by peer")
	}
}
