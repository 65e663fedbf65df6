package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var baseTimeout = time.Second

func getWSURLFromHTTPURL(url string) string {
	return "ws" + strings.TrimPrefix(url, "http")
}

// backendFixture is a fake backend accepting websocket connections.
type backendFixture struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []*Frame
	accepted int
}

func newBackendFixture(t *testing.T) *backendFixture {
	f := &backendFixture{t: t}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.accepted++
		f.mu.Unlock()

		for {
			_, r, err := conn.NextReader()
			if err != nil {
				return
			}
			frame, err := DecodeFrame(r)
			if err != nil {
				continue
			}
			f.mu.Lock()
			f.received = append(f.received, frame)
			f.mu.Unlock()
		}
	}))
	return f
}

func (f *backendFixture) url() string {
	return getWSURLFromHTTPURL(f.server.URL)
}

func (f *backendFixture) latest() *websocket.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func (f *backendFixture) connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

func (f *backendFixture) frames() []*Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Frame(nil), f.received...)
}

// push writes a frame to the latest connection.
func (f *backendFixture) push(frame *Frame) error {
	conn := f.latest()
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := EncodeFrame(w, frame); err != nil {
		return err
	}
	return w.Close()
}

// drop closes the latest connection without a close handshake.
func (f *backendFixture) drop() {
	if conn := f.latest(); conn != nil {
		conn.Close()
	}
}

func (f *backendFixture) close() {
	f.mu.Lock()
	for _, c := range f.conns {
		c.Close()
	}
	f.mu.Unlock()
	f.server.Close()
}

type clientFixture struct {
	client *WSClient
	cancel context.CancelFunc
	done   chan struct{}
}

func startClient(t *testing.T, cfg WSClientConfig, setup func(*WSClient)) *clientFixture {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewWSClient(cfg)
	if setup != nil {
		setup(c)
	}
	f := &clientFixture{client: c, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		c.Run(ctx)
	}()
	t.Cleanup(f.stop)
	return f
}

func (f *clientFixture) stop() {
	f.cancel()
	<-f.done
}
