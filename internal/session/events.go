package session

// Event drives the state machine. Exactly one handler method exists
// per event kind below; the coordinator calls the matching method.

// ConnectRequest requests an outbound connection (disconnected ->
// connecting).
func (s *Session) ConnectRequest() []Action {
	s.resetSequenceState()
	s.state = Connecting
	return []Action{
		{Kind: ActionSendSABM},
		{Kind: ActionStartT1},
	}
}

// DisconnectRequest requests a graceful teardown (connected ->
// disconnecting).
func (s *Session) DisconnectRequest() []Action {
	if s.state != Connected {
		return nil
	}
	s.state = Disconnecting
	return []Action{
		{Kind: ActionSendDISC},
		{Kind: ActionStopT3},
		{Kind: ActionStartT1},
	}
}

// ReceivedSABM handles an inbound SABM/SABME, covering both first
// connection and a peer-initiated re-sync while already connected.
func (s *Session) ReceivedSABM() []Action {
	switch s.state {
	case Disconnected, Connecting:
		s.resetSequenceState()
		s.state = Connected
		return []Action{
			{Kind: ActionSendUA},
			{Kind: ActionStartT3},
			{Kind: ActionNotifyConnected},
		}
	case Connected:
		s.resetSequenceState()
		return []Action{
			{Kind: ActionSendUA},
			{Kind: ActionStartT3},
			{Kind: ActionNotifyConnected},
		}
	default:
		return nil
	}
}

// ReceivedDISC handles an inbound disconnect request.
func (s *Session) ReceivedDISC() []Action {
	prev := s.state
	s.resetSequenceState()
	s.state = Disconnected
	actions := []Action{{Kind: ActionSendUA}, {Kind: ActionStopT1}, {Kind: ActionStopT3}}
	if prev != Disconnected {
		actions = append(actions, Action{Kind: ActionNotifyDisconnected})
	}
	return actions
}

// ReceivedUA handles an inbound UA, which confirms either a
// connection (from Connecting) or a disconnection (from
// Disconnecting).
func (s *Session) ReceivedUA() []Action {
	switch s.state {
	case Connecting:
		s.state = Connected
		s.retryCount = 0
		return []Action{
			{Kind: ActionStopT1},
			{Kind: ActionStartT3},
			{Kind: ActionNotifyConnected},
		}
	case Disconnecting:
		s.state = Disconnected
		return []Action{
			{Kind: ActionStopT1},
			{Kind: ActionNotifyDisconnected},
		}
	default:
		return nil
	}
}

// ReceivedDM handles an inbound DM (disconnected mode): a connection
// refusal while connecting, or confirmation while already tearing
// down / disconnected.
func (s *Session) ReceivedDM() []Action {
	switch s.state {
	case Connecting:
		s.state = Disconnected
		return []Action{
			{Kind: ActionStopT1},
			{Kind: ActionNotifyError, ErrorKind: "refused"},
		}
	case Connected, Disconnecting:
		s.state = Disconnected
		return []Action{
			{Kind: ActionStopT1},
			{Kind: ActionStopT3},
			{Kind: ActionNotifyDisconnected},
		}
	default:
		return nil
	}
}

// ReceivedFRMR handles a frame-reject from any state.
func (s *Session) ReceivedFRMR() []Action {
	s.state = ErrorState
	return []Action{
		{Kind: ActionStopT3},
		{Kind: ActionNotifyError, ErrorKind: "frmr"},
	}
}

// ReceivedRR handles an inbound RR(N(R)): it advances V(A) and, if
// the window is now fully acked, stops T1/starts T3.
func (s *Session) ReceivedRR(nr int) []Action {
	if s.state != Connected {
		return nil
	}
	return s.applyAck(nr)
}

// ReceivedRNR handles an inbound RNR(N(R)): peer is busy. V(A) still
// advances to the carried N(R). The busy condition is not tracked as
// session state (RNR carries no independent flag in spec.md §4.5's
// transition table), and the coordinator's pump does not pause for it.
func (s *Session) ReceivedRNR(nr int) []Action {
	if s.state != Connected {
		return nil
	}
	return s.applyAck(nr)
}

func (s *Session) applyAck(nr int) []Action {
	s.va = nr
	s.discardAcked()
	var actions []Action
	if s.va == s.vs {
		actions = append(actions, Action{Kind: ActionStopT1}, Action{Kind: ActionStartT3})
	}
	return actions
}

func (s *Session) discardAcked() {
	for ns := range s.outstanding {
		if !inOutstandingRange(ns, s.va, s.vs, s.Config.Modulo) {
			delete(s.outstanding, ns)
		}
	}
}

// inOutstandingRange reports whether ns is in [va, vs) modulo M: the
// set of sequence numbers still awaiting acknowledgment.
func inOutstandingRange(ns, va, vs, modulo int) bool {
	for n := va; n != vs; n = (n + 1) % modulo {
		if n == ns {
			return true
		}
	}
	return false
}

// ReceivedREJ handles an inbound REJ(N(R)): resets V(A) and
// retransmits every unacked I-frame from V(A) to V(S)-1.
func (s *Session) ReceivedREJ(nr int) ([]Action, [][]byte) {
	if s.state != Connected {
		return nil, nil
	}
	s.va = nr
	s.discardAcked()

	var resend [][]byte
	for n := s.va; n != s.vs; n = (n + 1) % s.Config.Modulo {
		if payload, ok := s.outstanding[n]; ok {
			resend = append(resend, payload)
		}
	}

	actions := []Action{{Kind: ActionStartT1}}
	if len(resend) > 0 {
		actions = append(actions, Action{Kind: ActionResendOutstanding})
	}
	return actions, resend
}

// ReceivedIFrame handles an inbound I-frame per spec.md §4.5's three
// cases: in-sequence delivery (with reorder-buffer drain), buffered
// out-of-sequence but inside the window (possibly REJ), or dropped.
//
// It returns the actions to execute and, separately, the ordered list
// of payloads delivered upward this call (the in-sequence frame plus
// any drained buffer entries), so the coordinator can hand them to
// AXDP/chat decoding without re-parsing Action.Payload.
func (s *Session) ReceivedIFrame(ns, nr int, payload []byte) ([]Action, [][]byte) {
	if s.state != Connected {
		return nil, nil
	}

	var actions []Action
	var delivered [][]byte

	modulo := s.Config.Modulo

	switch {
	case ns == s.vr:
		delivered = append(delivered, payload)
		s.vr = (s.vr + 1) % modulo
		s.rejSent = false

		for {
			entry, ok := s.reorder[s.vr]
			if !ok {
				break
			}
			delivered = append(delivered, entry.payload)
			delete(s.reorder, s.vr)
			s.vr = (s.vr + 1) % modulo
		}

		actions = append(actions, Action{Kind: ActionSendRR, NR: s.vr})

	case inWindow(ns, s.vr, s.Config.Window, modulo):
		if _, already := s.reorder[ns]; !already {
			s.reorder[ns] = reorderEntry{payload: payload}
			if !s.rejSent {
				actions = append(actions, Action{Kind: ActionSendREJ, NR: s.vr})
				s.rejSent = true
				s.stats.REJsSent++
			}
		}

	default:
		// Already delivered or outside the window: drop silently.
	}

	ackActions := s.applyAck(nr)
	actions = append(actions, ackActions...)

	s.stats.FramesReceived++
	return actions, delivered
}

// T1Timeout handles retransmission-timer expiry. In Connecting it
// retries SABM up to N2 times before failing the connect attempt; in
// Disconnecting it retries DISC the same way; in Connected it is the
// cue to back off and retransmit every outstanding I-frame from V(A)
// to V(S)-1, the same unacked range ReceivedREJ resends.
//
// The second return value is non-nil only for the Connected case: the
// ordered payloads the coordinator must re-send (oldest N(S) first).
func (s *Session) T1Timeout() ([]Action, [][]byte) {
	switch s.state {
	case Connecting:
		s.retryCount++
		s.stats.Retries++
		if s.retryCount <= s.Config.N2 {
			return []Action{
				{Kind: ActionSendSABM},
				{Kind: ActionStartT1},
			}, nil
		}
		s.state = ErrorState
		return []Action{
			{Kind: ActionStopT1},
			{Kind: ActionNotifyError, ErrorKind: "timeout"},
		}, nil
	case Disconnecting:
		s.retryCount++
		s.stats.Retries++
		if s.retryCount <= s.Config.N2 {
			return []Action{
				{Kind: ActionSendDISC},
				{Kind: ActionStartT1},
			}, nil
		}
		s.state = Disconnected
		return []Action{
			{Kind: ActionStopT1},
			{Kind: ActionNotifyDisconnected},
		}, nil
	case Connected:
		s.retryCount++
		s.stats.Retries++
		if s.retryCount > s.Config.N2 {
			s.state = ErrorState
			return []Action{
				{Kind: ActionStopT3},
				{Kind: ActionNotifyError, ErrorKind: "timeout"},
			}, nil
		}

		var resend [][]byte
		for n := s.va; n != s.vs; n = (n + 1) % s.Config.Modulo {
			if payload, ok := s.outstanding[n]; ok {
				resend = append(resend, payload)
			}
		}
		actions := []Action{{Kind: ActionStartT1}}
		if len(resend) > 0 {
			actions = append(actions, Action{Kind: ActionResendOutstanding})
		}
		return actions, resend
	default:
		return nil, nil
	}
}

// T3Timeout sends a liveness poll (RR with P=1) while connected.
func (s *Session) T3Timeout() []Action {
	if s.state != Connected {
		return nil
	}
	return []Action{
		{Kind: ActionSendRR, NR: s.vr, PF: true},
		{Kind: ActionStartT1},
	}
}

// RecordSent notes that an I-frame carrying payload was just handed
// to the wire at the session's current V(S), then advances V(S).
// Callers must check OutstandingCount() < Config.Window first.
func (s *Session) RecordSent(payload []byte) int {
	ns := s.vs
	s.outstanding[ns] = payload
	s.vs = (s.vs + 1) % s.Config.Modulo
	s.stats.FramesSent++
	return ns
}

// CanSend reports whether the outstanding-frame invariant still
// leaves room in the window for another I-frame.
func (s *Session) CanSend() bool {
	return s.state == Connected && s.OutstandingCount() < s.Config.Window
}
