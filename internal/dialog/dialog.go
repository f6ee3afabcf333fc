package dialog

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DialogState is a command waiting for its argument.
type DialogState struct {
	UserID    int64
	ChatID    int64
	Command   string
	StartedAt time.Time
	timer     *time.Timer
}

// Manager keeps at most one pending dialog per user.
type Manager struct {
	dialogs  sync.Map // map[int64]*DialogState
	timeout  time.Duration
	onExpire func(DialogState)
}

// NewManager creates a manager; onExpire (optional) is called from a timer
// goroutine when a dialog times out.
func NewManager(timeout time.Duration, onExpire func(DialogState)) *Manager {
	return &Manager{timeout: timeout, onExpire: onExpire}
}

// StartDialog opens (or replaces) the user's pending dialog.
func (m *Manager) StartDialog(userID, chatID int64, command string) {
	state := &DialogState{
		UserID:    userID,
		ChatID:    chatID,
		Command:   command,
		StartedAt: time.Now(),
	}
	if m.timeout > 0 {
		state.timer = time.AfterFunc(m.timeout, func() { m.expire(state) })
	}
	if prev, loaded := m.dialogs.Swap(userID, state); loaded {
		prev.(*DialogState).stop()
	}
	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"chat_id": chatID,
		"command": command,
	}).Debug("Dialog started")
}

// Pending returns the user's dialog without closing it.
func (m *Manager) Pending(userID int64) (DialogState, bool) {
	v, ok := m.dialogs.Load(userID)
	if !ok {
		return DialogState{}, false
	}
	return v.(*DialogState).snapshot(), true
}

// Complete closes the dialog and returns it; ok is false when none was open.
func (m *Manager) Complete(userID int64) (DialogState, bool) {
	v, ok := m.dialogs.LoadAndDelete(userID)
	if !ok {
		return DialogState{}, false
	}
	s := v.(*DialogState)
	s.stop()
	return s.snapshot(), true
}

// CancelDialog closes the dialog; it reports whether one was open.
func (m *Manager) CancelDialog(userID int64) bool {
	s, ok := m.Complete(userID)
	if ok {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"chat_id": s.ChatID,
		}).Info("Dialog cancelled")
	}
	return ok
}

// IsDialogActive reports whether the user has a pending dialog.
func (m *Manager) IsDialogActive(userID int64) bool {
	_, ok := m.dialogs.Load(userID)
	return ok
}

func (m *Manager) expire(s *DialogState) {
	// only the state that armed this timer may be removed
	if !m.dialogs.CompareAndDelete(s.UserID, s) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"user_id": s.UserID,
		"chat_id": s.ChatID,
		"command": s.Command,
	}).Info("Dialog timed out")
	if m.onExpire != nil {
		m.onExpire(s.snapshot())
	}
}

func (s *DialogState) stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *DialogState) snapshot() DialogState {
	return DialogState{UserID: s.UserID, ChatID: s.ChatID, Command: s.Command, StartedAt: s.StartedAt}
}
