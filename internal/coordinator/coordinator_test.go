package coordinator

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/axterm/internal/ax25"
	"github.com/doismellburning/axterm/internal/axdp"
	"github.com/doismellburning/axterm/internal/config"
	"github.com/doismellburning/axterm/internal/kiss"
	"github.com/doismellburning/axterm/internal/session"
	"github.com/doismellburning/axterm/internal/transfer"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Callsign = "N0CALL"
	return cfg
}

// testConfigNoCapabilityPing disables the proactive capability ping so
// tests asserting exact N(S) values on plain chat/file traffic aren't
// thrown off by it occupying a sequence slot.
func testConfigNoCapabilityPing() config.Config {
	cfg := testConfig()
	cfg.AutoNegotiateCapabilities = false
	return cfg
}

func newTestCoordinator(t *testing.T, w *bytes.Buffer, cb Callbacks) *Coordinator {
	t.Helper()
	return New(testConfig(), w, cb, func() time.Time { return time.Unix(0, 0) })
}

// feedFrame wraps raw in a KISS frame and hands it to the coordinator,
// the same path a TCP read from the TNC would take.
func feedFrame(c *Coordinator, raw []byte) {
	c.HandleInboundBytes(kiss.EncodeFrame(raw, 0))
}

// decodeOutbound decodes every complete KISS frame currently buffered
// and returns the last one, clearing the buffer.
func decodeOutbound(t *testing.T, w *bytes.Buffer) *ax25.Frame {
	t.Helper()
	frames := decodeAllOutbound(t, w)
	require.NotEmpty(t, frames)
	return frames[len(frames)-1]
}

func decodeAllOutbound(t *testing.T, w *bytes.Buffer) []*ax25.Frame {
	t.Helper()
	p := kiss.NewParser()
	payloads := p.Feed(w.Bytes())
	w.Reset()
	out := make([]*ax25.Frame, len(payloads))
	for i, raw := range payloads {
		f, err := ax25.DecodeFrame(raw, 8)
		require.NoError(t, err)
		out[i] = f
	}
	return out
}

func uFrame(dest, src ax25.Address, sub ax25.USubtype, pf bool) []byte {
	return ax25.EncodeU(ax25.EncodeParams{Destination: dest, Source: src, PF: pf}, sub)
}

// TestConnectSendsSABMOverKISS exercises Connect end to end: the
// coordinator must emit a KISS-framed SABM addressed to the remote
// station.
func TestConnectSendsSABMOverKISS(t *testing.T) {
	var w bytes.Buffer
	c := newTestCoordinator(t, &w, Callbacks{})

	c.Connect("REMOTE-1", nil)

	f := decodeOutbound(t, &w)
	assert.Equal(t, ax25.KindU, f.Kind)
	assert.Equal(t, ax25.USABM, f.UType)
	assert.Equal(t, "REMOTE", f.Destination.Callsign)
	assert.Equal(t, 1, f.Destination.SSID)
	assert.Equal(t, session.Connecting, c.State("REMOTE-1", nil))
}

// TestInboundSABMReplysUA feeds a raw SABM from a peer and checks the
// coordinator answers with UA and flips to Connected.
func TestInboundSABMReplysUA(t *testing.T) {
	var w bytes.Buffer
	var gotState []session.State
	c := newTestCoordinator(t, &w, Callbacks{
		OnSessionState: func(peer string, prev, next session.State) {
			gotState = append(gotState, next)
		},
	})

	local := ax25.Address{Callsign: "N0CALL"}
	remote := ax25.Address{Callsign: "REMOTE", SSID: 1}

	feedFrame(c, uFrame(local, remote, ax25.USABM, true))

	// The UA goes out synchronously; a proactive capability ping may
	// follow once the session reaches Connected, so check the first
	// frame rather than the last.
	frames := decodeAllOutbound(t, &w)
	require.NotEmpty(t, frames)
	assert.Equal(t, ax25.UUA, frames[0].UType)
	assert.Equal(t, session.Connected, c.State("REMOTE-1", nil))
	assert.Contains(t, gotState, session.Connected)
}

// TestConnectThenUAThenChatRoundTrip drives a full connect handshake
// then sends a chat message and confirms it goes out as an I-frame
// carrying an AXDP chat payload.
func TestConnectThenUAThenChatRoundTrip(t *testing.T) {
	var w bytes.Buffer
	c := newTestCoordinator(t, &w, Callbacks{})

	c.Connect("REMOTE-1", nil)
	decodeOutbound(t, &w) // SABM

	local := ax25.Address{Callsign: "N0CALL"}
	remote := ax25.Address{Callsign: "REMOTE", SSID: 1}
	feedFrame(c, uFrame(local, remote, ax25.UUA, true))
	require.Equal(t, session.Connected, c.State("REMOTE-1", nil))

	c.SendChat("REMOTE-1", nil, "hello")

	f := decodeOutbound(t, &w)
	require.Equal(t, ax25.KindI, f.Kind)
	msg, err := axdp.Decode(f.Info)
	require.NoError(t, err)
	assert.Equal(t, axdp.TypeChat, msg.Type)
	assert.Equal(t, "hello", string(msg.Payload))
}

// TestInboundChatFiresOnChat confirms a plain (non-AXDP) UI payload
// surfaces through OnChat.
func TestInboundChatFiresOnChat(t *testing.T) {
	var w bytes.Buffer
	var got []string
	c := newTestCoordinator(t, &w, Callbacks{
		OnChat: func(from, text string) { got = append(got, text) },
	})

	local := ax25.Address{Callsign: "N0CALL"}
	remote := ax25.Address{Callsign: "REMOTE", SSID: 1}

	ui := ax25.EncodeUI(ax25.EncodeParams{Destination: local, Source: remote, PID: 0xF0, Info: []byte("plain text")})
	feedFrame(c, ui)

	require.Contains(t, got, "plain text")
}

// TestREJTriggersRetransmission checks that an inbound REJ causes the
// coordinator to resend the unacked I-frames from the session's
// outstanding buffer, each re-encoded with its original N(S).
func TestREJTriggersRetransmission(t *testing.T) {
	var w bytes.Buffer
	c := New(testConfigNoCapabilityPing(), &w, Callbacks{}, func() time.Time { return time.Unix(0, 0) })

	c.Connect("REMOTE-1", nil)
	decodeOutbound(t, &w)
	local := ax25.Address{Callsign: "N0CALL"}
	remote := ax25.Address{Callsign: "REMOTE", SSID: 1}
	feedFrame(c, uFrame(local, remote, ax25.UUA, true))

	c.SendChat("REMOTE-1", nil, "one")
	decodeOutbound(t, &w)
	c.SendChat("REMOTE-1", nil, "two")
	decodeOutbound(t, &w)

	rej := ax25.EncodeS(ax25.EncodeParams{Destination: local, Source: remote, NR: 0}, ax25.SREJ)
	feedFrame(c, rej)

	frames := decodeAllOutbound(t, &w)
	require.Len(t, frames, 2)
	assert.Equal(t, ax25.KindI, frames[0].Kind)
	assert.Equal(t, 0, frames[0].NS)
	assert.Equal(t, ax25.KindI, frames[1].Kind)
	assert.Equal(t, 1, frames[1].NS)
}

// TestConnectedT1TimeoutRetransmits checks that a T1 deadline expiring
// on a Connected link resends the unacked I-frames, the same as an
// inbound REJ would (spec.md §7). It drives the timer directly via
// Coordinator.Tick rather than relying on SendChat to have armed T1,
// since nothing else on this link's path does so yet.
func TestConnectedT1TimeoutRetransmits(t *testing.T) {
	var w bytes.Buffer
	c := New(testConfigNoCapabilityPing(), &w, Callbacks{}, func() time.Time { return time.Unix(0, 0) })

	c.Connect("REMOTE-1", nil)
	decodeOutbound(t, &w)
	local := ax25.Address{Callsign: "N0CALL"}
	remote := ax25.Address{Callsign: "REMOTE", SSID: 1}
	feedFrame(c, uFrame(local, remote, ax25.UUA, true))

	c.SendChat("REMOTE-1", nil, "one")
	decodeOutbound(t, &w)
	c.SendChat("REMOTE-1", nil, "two")
	decodeOutbound(t, &w)

	lk := c.linkForRemote("REMOTE-1", nil)
	c.startT1(lk)

	c.Tick(time.Unix(0, 0).Add(defaultT1 + time.Second))

	frames := decodeAllOutbound(t, &w)
	require.Len(t, frames, 2)
	assert.Equal(t, ax25.KindI, frames[0].Kind)
	assert.Equal(t, 0, frames[0].NS)
	assert.Equal(t, ax25.KindI, frames[1].Kind)
	assert.Equal(t, 1, frames[1].NS)
}

// TestSendFileOffersThenAcceptAndCompletes drives the full bulk
// transfer handshake: fileMeta offer, peer accept, chunk delivery, and
// the completion request/ack cycle.
func TestSendFileOffersThenAcceptAndCompletes(t *testing.T) {
	var w bytes.Buffer
	var updates []BulkTransfer
	c := newTestCoordinator(t, &w, Callbacks{
		OnTransferUpdate: func(b BulkTransfer) { updates = append(updates, b) },
	})

	c.Connect("REMOTE-1", nil)
	decodeOutbound(t, &w)
	local := ax25.Address{Callsign: "N0CALL"}
	remote := ax25.Address{Callsign: "REMOTE", SSID: 1}
	feedFrame(c, uFrame(local, remote, ax25.UUA, true))

	data := bytes.Repeat([]byte("x"), 10)
	sid := c.SendFile("REMOTE-1", nil, "test.bin", data)

	offerFrame := decodeOutbound(t, &w)
	offer, err := axdp.Decode(offerFrame.Info)
	require.NoError(t, err)
	require.Equal(t, axdp.TypeFileMeta, offer.Type)
	require.Equal(t, sid, offer.SessionID)

	// Peer accepts the offer: a plain TypeAck with default MessageID.
	ack := axdp.Encode(axdp.Message{Type: axdp.TypeAck, SessionID: sid})
	iAck := ax25.EncodeI(ax25.EncodeParams{Destination: local, Source: remote, NS: 0, NR: 0, PID: 0xF0, Info: ack})
	feedFrame(c, iAck)

	// Coordinator should now have pumped out the single chunk, followed
	// by the completion request queued once every chunk has been sent.
	var chunkMsg *axdp.Message
	for _, f := range decodeAllOutbound(t, &w) {
		if f.Kind != ax25.KindI {
			continue
		}
		m, err := axdp.Decode(f.Info)
		require.NoError(t, err)
		if m.MessageID != axdp.MessageIDCompletionRequest {
			chunkMsg = m
		}
	}
	require.NotNil(t, chunkMsg)
	require.Equal(t, axdp.TypeFileChunk, chunkMsg.Type)
	assert.Equal(t, data, chunkMsg.Payload)

	// Peer answers the completion request with a completion ack.
	done := axdp.Encode(axdp.Message{Type: axdp.TypeAck, SessionID: sid, MessageID: axdp.MessageIDCompletionAck})
	feedFrame(c, ax25.EncodeI(ax25.EncodeParams{Destination: local, Source: remote, NS: 1, NR: 0, PID: 0xF0, Info: done}))

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, sid, last.SessionID)
	assert.Equal(t, transfer.StatusCompleted, last.Status)
}
