package peerchat

import (
	"context"
	"errors"

	"github.com/putto11262002/peerchat/core"
)

// ErrMediaUnavailable is returned by the default media source. Calls then abort
// silently, as they do when the user denies microphone access.
var ErrMediaUnavailable = errors.New("no media device available")

type noMedia struct{}

func (noMedia) Acquire(context.Context, core.CallMode) (core.MediaStream, error) {
	return nil, ErrMediaUnavailable
}

type noPeers struct{}

func (noPeers) NewPeer(string, core.MediaStream, core.PeerEvents) (core.PeerConnection, error) {
	return nil, ErrMediaUnavailable
}
