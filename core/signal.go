package core

import "errors"

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

var ErrInvalidSignal = errors.New("invalid call signal")

// Signal is a call signaling payload: an offer or answer carrying an SDP, or a
// trickled ICE candidate.
type Signal struct {
	Type          SignalType `json:"type"`
	SDP           string     `json:"sdp,omitempty"`
	Candidate     string     `json:"candidate,omitempty"`
	SDPMid        *string    `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16    `json:"sdpMLineIndex,omitempty"`
}

func (s Signal) Validate() error {
	switch s.Type {
	case SignalOffer, SignalAnswer:
		if s.SDP == "" {
			return ErrInvalidSignal
		}
	case SignalCandidate:
		if s.Candidate == "" {
			return ErrInvalidSignal
		}
	default:
		return ErrInvalidSignal
	}
	return nil
}

func (s Signal) Description() SessionDescription {
	return SessionDescription{Type: s.Type, SDP: s.SDP}
}

func (s Signal) ICECandidate() ICECandidate {
	return ICECandidate{Candidate: s.Candidate, SDPMid: s.SDPMid, SDPMLineIndex: s.SDPMLineIndex}
}

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type SignalType
	SDP  string
}

func (d SessionDescription) Signal() Signal {
	return Signal{Type: d.Type, SDP: d.SDP}
}

type ICECandidate struct {
	Candidate     string
	SDPMid        *string
	SDPMLineIndex *uint16
}

func (c ICECandidate) Signal() Signal {
	return Signal{Type: SignalCandidate, Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex}
}
