package coordinator

import (
	"crypto/sha256"

	"github.com/doismellburning/axterm/internal/axdp"
	"github.com/doismellburning/axterm/internal/axerr"
	"github.com/doismellburning/axterm/internal/session"
	"github.com/doismellburning/axterm/internal/transfer"
)

// Connect starts (or restarts) a connected-mode session to remote via
// the given digipeater path.
func (c *Coordinator) Connect(remote string, viaPath []string) {
	lk := c.linkForRemote(remote, viaPath)
	lk.initiator = true
	prev := lk.sess.State()
	c.execute(lk, lk.sess.ConnectRequest(), nil)
	c.notifyStateChange(lk, prev)
	c.Pump()
}

// Disconnect requests a graceful teardown of the session to remote.
func (c *Coordinator) Disconnect(remote string, viaPath []string) {
	lk := c.linkForRemote(remote, viaPath)
	prev := lk.sess.State()
	c.execute(lk, lk.sess.DisconnectRequest(), nil)
	c.notifyStateChange(lk, prev)
	c.Pump()
}

// SendChat queues a chat message for remote, to go out as soon as the
// connected session's window allows.
func (c *Coordinator) SendChat(remote string, viaPath []string, text string) {
	lk := c.linkForRemote(remote, viaPath)
	c.queueControl(lk, axdp.Message{Type: axdp.TypeChat, Payload: []byte(text)})
	c.Pump()
}

// SendFile offers fileName/data to remote as a new bulk transfer and
// returns the sessionID the peer will use to refer to it.
func (c *Coordinator) SendFile(remote string, viaPath []string, fileName string, data []byte) uint32 {
	lk := c.linkForRemote(remote, viaPath)

	sid := c.allocSessionID()
	chunkSize := int(lk.paclen.Current())

	payload, algo := data, ""
	if c.Cfg.CompressionEnabled && c.peerSupportsCompression(lk) {
		analyzer := transfer.Analyzer{AbsoluteMaxDecompressedLen: c.Cfg.AbsoluteMaxDecompressedLen}
		if analyzer.Select(fileName, data) == transfer.AlgorithmLZ4 {
			if compressed, metrics, err := transfer.CompressLZ4(data); err == nil && metrics.Effective() {
				payload, algo = compressed, string(transfer.AlgorithmLZ4)
			}
		}
	}

	meta := axdp.FileMeta{
		FileName:     fileName,
		FileSize:     uint64(len(data)),
		SHA256:       sha256.Sum256(data),
		ChunkSize:    uint32(chunkSize),
		CompressAlgo: algo,
	}

	out := transfer.NewOutgoing(sid, meta, payload, chunkSize)
	c.transfersOut[sid] = out
	c.transferKey[sid] = lk.key
	lk.outgoingTransfers = append(lk.outgoingTransfers, sid)

	c.queueControl(lk, axdp.Message{
		Type: axdp.TypeFileMeta, SessionID: sid,
		HasFileMeta: true, FileMeta: meta,
		HasTotalChunks: true, TotalChunks: uint32(out.TotalChunks()),
	})
	c.notifyTransferUpdate(lk.key, sid, true, out.Status(), out.Progress(), "")
	c.Pump()
	return sid
}

// acceptOutgoingOffer moves an outgoing transfer from
// awaitingAcceptance to sending once the peer acks the fileMeta
// offer.
func (c *Coordinator) acceptOutgoingOffer(sid uint32) {
	if t, ok := c.transfersOut[sid]; ok {
		_ = t.Accept()
	}
}

// CancelTransfer cancels an in-flight transfer (sender or receiver
// side) and notifies the peer with a close message.
func (c *Coordinator) CancelTransfer(sid uint32) error {
	key, ok := c.transferKey[sid]
	if !ok {
		return axerr.New(axerr.KindTransfer, "unknown transfer session")
	}
	lk, ok := c.links[key]
	if !ok {
		return axerr.New(axerr.KindTransfer, "link no longer present")
	}

	if t, ok := c.transfersOut[sid]; ok {
		if err := t.Cancel(); err != nil {
			return err
		}
		c.notifyTransferUpdate(key, sid, true, t.Status(), t.Progress(), t.FailReason())
	}
	if in, ok := c.transfersIn[sid]; ok {
		in.Fail("cancelled locally")
		c.notifyTransferUpdate(key, sid, false, in.Status(), 0, "cancelled locally")
	}

	c.queueControl(lk, axdp.Message{Type: axdp.TypeClose, SessionID: sid})
	c.Pump()
	return nil
}

func (c *Coordinator) allocSessionID() uint32 {
	c.nextSession++
	return c.nextSession
}

func (c *Coordinator) linkForRemote(remote string, viaPath []string) *link {
	key := SessionKey{
		Local:   c.Callsign,
		Remote:  remote,
		Path:    joinPath(viaPath),
		Channel: 0,
	}
	return c.linkFor(key)
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += ">"
		}
		out += p
	}
	return out
}

// State returns the connected-mode state of remote (Disconnected if
// no session exists yet).
func (c *Coordinator) State(remote string, viaPath []string) session.State {
	key := SessionKey{Local: c.Callsign, Remote: remote, Path: joinPath(viaPath), Channel: 0}
	if lk, ok := c.links[key]; ok {
		return lk.sess.State()
	}
	return session.Disconnected
}
