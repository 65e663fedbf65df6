package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type DialogKind string

const (
	DialogError        DialogKind = "error"
	DialogConfirm      DialogKind = "confirm"
	DialogIncomingCall DialogKind = "incoming-call"
	DialogSeedPhrase   DialogKind = "seed-phrase"
	DialogInfo         DialogKind = "info"
)

var (
	ErrDialogClosed    = errors.New("dialog queue closed")
	ErrDialogNotActive = errors.New("dialog is not active")
)

type Dialog struct {
	ID        string     `json:"id"`
	Kind      DialogKind `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Data      any        `json:"data,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type pendingDialog struct {
	Dialog
	onResolve func(accepted bool)
}

// DialogQueue shows one modal dialog at a time. Further dialogs wait and are shown
// strictly in the order they were enqueued once the active one resolves.
// It belongs to the event loop and is not safe for concurrent use.
type DialogQueue struct {
	active  *pendingDialog
	pending []*pendingDialog
	closed  bool
	// onChange is called whenever the active dialog changes.
	onChange func(active *Dialog)
}

func NewDialogQueue(onChange func(active *Dialog)) *DialogQueue {
	return &DialogQueue{onChange: onChange}
}

// Enqueue adds a dialog and returns its id. onResolve may be nil.
func (q *DialogQueue) Enqueue(d Dialog, onResolve func(accepted bool)) (string, error) {
	if q.closed {
		return "", ErrDialogClosed
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	p := &pendingDialog{Dialog: d, onResolve: onResolve}
	if q.active == nil {
		q.activate(p)
	} else {
		q.pending = append(q.pending, p)
	}
	return d.ID, nil
}

func (q *DialogQueue) activate(p *pendingDialog) {
	q.active = p
	if q.onChange == nil {
		return
	}
	if p == nil {
		q.onChange(nil)
		return
	}
	d := p.Dialog
	q.onChange(&d)
}

// Active returns the dialog currently shown.
func (q *DialogQueue) Active() (Dialog, bool) {
	if q.active == nil {
		return Dialog{}, false
	}
	return q.active.Dialog, true
}

// Pending returns the dialogs waiting behind the active one, oldest first.
func (q *DialogQueue) Pending() []Dialog {
	out := make([]Dialog, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, p.Dialog)
	}
	return out
}

// Len counts the active dialog and the pending ones.
func (q *DialogQueue) Len() int {
	n := len(q.pending)
	if q.active != nil {
		n++
	}
	return n
}

// Resolve closes the active dialog and shows the next one. Only the active dialog
// can be resolved.
func (q *DialogQueue) Resolve(id string, accepted bool) error {
	if q.closed {
		return ErrDialogClosed
	}
	if q.active == nil || q.active.ID != id {
		return ErrDialogNotActive
	}
	done := q.active
	var next *pendingDialog
	if len(q.pending) > 0 {
		next = q.pending[0]
		q.pending = q.pending[1:]
	}
	q.activate(next)
	if done.onResolve != nil {
		done.onResolve(accepted)
	}
	return nil
}

// Close dismisses every dialog as declined. Enqueue fails afterwards.
func (q *DialogQueue) Close() {
	if q.closed {
		return
	}
	q.closed = true
	all := q.pending
	if q.active != nil {
		all = append([]*pendingDialog{q.active}, all...)
	}
	q.active, q.pending = nil, nil
	for _, p := range all {
		if p.onResolve != nil {
			p.onResolve(false)
		}
	}
}
