package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. History pages can be large.
	maxMessageSize = 16 << 20
)

var (
	ErrNotConnected   = errors.New("not connected to backend")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn is one websocket connection to the backend.
type Conn struct {
	conn        *websocket.Conn
	token       uint64
	writeStream chan *Frame
	onFrame     func(*Frame)
	closeOnce   sync.Once
	done        chan struct{}
	pingPeriod  time.Duration
	logger      *slog.Logger
}

func newConn(ws *websocket.Conn, token uint64, bufSize int, onFrame func(*Frame), logger *slog.Logger) *Conn {
	return &Conn{
		conn:        ws,
		token:       token,
		writeStream: make(chan *Frame, bufSize),
		onFrame:     onFrame,
		done:        make(chan struct{}),
		pingPeriod:  pingPeriod,
		logger:      logger,
	}
}

// send queues f without blocking.
func (c *Conn) send(f *Frame) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.writeStream <- f:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

// close asks the write loop to send a close message and stop.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// run serves the connection until it fails or ctx is done. It returns the error that
// ended the read loop, or nil on a normal close.
func (c *Conn) run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()
	err := c.readLoop()
	c.close()
	wg.Wait()
	return err
}

func (c *Conn) readLoop() error {
	c.logger.Debug("read loop started")
	defer func() {
		c.conn.Close()
		c.logger.Debug("read loop stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info(fmt.Sprintf("expected close: %v", err))
				return nil
			}
			select {
			case <-c.done:
				// we closed the connection ourselves
				return nil
			default:
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
			}
			return fmt.Errorf("NextReader: %w", err)
		}

		if format != websocket.TextMessage {
			c.logger.Warn(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		f, err := DecodeFrame(r)
		if err != nil {
			c.logger.Warn("dropping frame", "error", err)
			continue
		}
		c.onFrame(f)
	}
}

func (c *Conn) writeLoop(ctx context.Context) {
	c.logger.Debug("write loop started")
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.logger.Debug("write loop stopped")
	}()

	closeConn := func() {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// unblock the read loop if the backend never answers the close
		time.AfterFunc(writeWait, func() { c.conn.Close() })
	}

	for {
		select {
		case f := <-c.writeStream:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Error(fmt.Sprintf("getting next writer: %v", err))
				c.conn.Close()
				return
			}
			if err := EncodeFrame(w, f); err != nil {
				c.logger.Error(err.Error())
			}
			if err := w.Close(); err != nil {
				c.logger.Error(fmt.Sprintf("flushing frame: %v", err))
				c.conn.Close()
				return
			}
		case <-c.done:
			closeConn()
			return
		case <-ctx.Done():
			closeConn()
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("writing ping: %v", err))
				c.conn.Close()
				return
			}
		}
	}
}
