package core

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// RoomLog is the append-only message log of one room in arrival order.
type RoomLog struct {
	key     string
	entries []Message
	seenSeq map[int64]struct{}
}

func newRoomLog(key string) *RoomLog {
	return &RoomLog{key: key, seenSeq: make(map[int64]struct{})}
}

func (l *RoomLog) Key() string { return l.key }

func (l *RoomLog) Len() int { return len(l.entries) }

// Arrival returns a copy of the log in the order messages were accepted. Every fold
// runs over this order.
func (l *RoomLog) Arrival() []Message {
	return slices.Clone(l.entries)
}

// Presentation returns the messages visible in scope sorted by timestamp.
func (l *RoomLog) Presentation(scope ViewScope) []Message {
	return Presentation(l.entries, scope)
}

// Find returns the message with the given id.
func (l *RoomLog) Find(id string) (Message, bool) {
	for _, m := range l.entries {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

type IngestResult struct {
	Accepted   int
	Duplicates int
	// View is the view after ingestion. It is refolded only if something was accepted.
	View *RoomView
}

// FoldObserver is notified after every refold.
type FoldObserver func(roomKey string, entries int, took time.Duration)

type RoomsOption func(*Rooms)

func WithRoomsLogger(logger *slog.Logger) RoomsOption {
	return func(r *Rooms) {
		r.logger = logger
	}
}

// WithLogStore writes every accepted message through to store.
func WithLogStore(store LogStore) RoomsOption {
	return func(r *Rooms) {
		r.store = store
	}
}

func WithFoldObserver(o FoldObserver) RoomsOption {
	return func(r *Rooms) {
		r.observer = o
	}
}

// Rooms owns the logs of every known room. It is not safe for concurrent use and must
// only be touched from the event loop, except for the published views returned by View.
type Rooms struct {
	logs map[string]*RoomLog
	// seenIDs is global across rooms.
	seenIDs  map[string]struct{}
	views    *SyncMap[string, *RoomView]
	store    LogStore
	observer FoldObserver
	logger   *slog.Logger
}

func NewRooms(opts ...RoomsOption) *Rooms {
	r := &Rooms{
		logs:    make(map[string]*RoomLog),
		seenIDs: make(map[string]struct{}),
		views:   NewSyncMap[string, *RoomView](),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Rooms) log(roomKey string) *RoomLog {
	l, ok := r.logs[roomKey]
	if !ok {
		l = newRoomLog(roomKey)
		r.logs[roomKey] = l
	}
	return l
}

// duplicate applies the dedup priority: _seq within the room first, then the global id.
// Messages carrying neither are never considered duplicates.
func (r *Rooms) duplicate(l *RoomLog, m Message) bool {
	if m.Seq != nil {
		_, ok := l.seenSeq[*m.Seq]
		return ok
	}
	if m.ID != "" {
		_, ok := r.seenIDs[m.ID]
		return ok
	}
	return false
}

func (r *Rooms) accept(l *RoomLog, m Message) {
	if m.Seq != nil {
		l.seenSeq[*m.Seq] = struct{}{}
	}
	if m.ID != "" {
		r.seenIDs[m.ID] = struct{}{}
	}
	l.entries = append(l.entries, m)
}

// IngestHistory appends a page of history. Duplicates, including duplicates within the
// page, are dropped.
func (r *Rooms) IngestHistory(ctx context.Context, roomKey string, msgs []Message) IngestResult {
	l := r.log(roomKey)
	var res IngestResult
	accepted := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if r.duplicate(l, m) {
			res.Duplicates++
			continue
		}
		r.accept(l, m)
		accepted = append(accepted, m)
	}
	res.Accepted = len(accepted)

	view, ok := r.views.Load(roomKey)
	if res.Accepted > 0 || !ok {
		view = r.refold(l)
	}
	res.View = view

	if res.Accepted > 0 && r.store != nil {
		if err := r.store.AppendMessages(ctx, roomKey, accepted); err != nil {
			r.logger.Error("failed to cache messages", "room", roomKey, "error", err)
		}
	}
	return res
}

// IngestMessage appends a single live message.
func (r *Rooms) IngestMessage(ctx context.Context, roomKey string, msg Message) IngestResult {
	return r.IngestHistory(ctx, roomKey, []Message{msg})
}

func (r *Rooms) refold(l *RoomLog) *RoomView {
	start := time.Now()
	view := Fold(l.key, l.entries)
	r.views.Store(l.key, view)
	if r.observer != nil {
		r.observer(l.key, len(l.entries), time.Since(start))
	}
	return view
}

// View returns the last published view of a room. It is safe to call from any
// goroutine; the returned view must not be modified.
func (r *Rooms) View(roomKey string) (*RoomView, bool) {
	return r.views.Load(roomKey)
}

// Views returns every published view.
func (r *Rooms) Views() []*RoomView {
	views := make([]*RoomView, 0)
	r.views.RRange(func(_ string, v *RoomView) bool {
		views = append(views, v)
		return true
	})
	slices.SortFunc(views, func(a, b *RoomView) int {
		switch {
		case a.RoomKey < b.RoomKey:
			return -1
		case a.RoomKey > b.RoomKey:
			return 1
		}
		return 0
	})
	return views
}

func (r *Rooms) Log(roomKey string) (*RoomLog, bool) {
	l, ok := r.logs[roomKey]
	return l, ok
}

// Drop forgets a room, including the ids it contributed to the global id set.
func (r *Rooms) Drop(ctx context.Context, roomKey string) {
	l, ok := r.logs[roomKey]
	if ok {
		for _, m := range l.entries {
			if m.ID != "" {
				delete(r.seenIDs, m.ID)
			}
		}
		delete(r.logs, roomKey)
	}
	r.views.Delete(roomKey)
	if r.store != nil {
		if err := r.store.DeleteRoom(ctx, roomKey); err != nil {
			r.logger.Error("failed to drop cached room", "room", roomKey, "error", err)
		}
	}
}

// Reset clears every in-memory log and view. The cache is kept.
func (r *Rooms) Reset() {
	r.logs = make(map[string]*RoomLog)
	r.seenIDs = make(map[string]struct{})
	r.views.Clear()
}

// Restore replays every cached log. It returns the cached room records so callers can
// restore room metadata as well.
func (r *Rooms) Restore(ctx context.Context) ([]Room, error) {
	if r.store == nil {
		return nil, nil
	}
	rooms, err := r.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		msgs, err := r.store.LoadLog(ctx, room.Key)
		if err != nil {
			return nil, err
		}
		l := r.log(room.Key)
		for _, m := range msgs {
			if !r.duplicate(l, m) {
				r.accept(l, m)
			}
		}
		r.refold(l)
	}
	r.logger.Info("restored cached rooms", "rooms", len(rooms))
	return rooms, nil
}
