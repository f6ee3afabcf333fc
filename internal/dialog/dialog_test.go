package dialog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_StartComplete(t *testing.T) {
	m := NewManager(time.Minute, nil)

	assert.False(t, m.IsDialogActive(1))
	m.StartDialog(1, 100, "profile")
	assert.True(t, m.IsDialogActive(1))

	pending, ok := m.Pending(1)
	require.True(t, ok)
	assert.Equal(t, "profile", pending.Command)
	assert.True(t, m.IsDialogActive(1), "Pending must not close the dialog")

	done, ok := m.Complete(1)
	require.True(t, ok)
	assert.Equal(t, int64(100), done.ChatID)
	assert.False(t, m.IsDialogActive(1))

	_, ok = m.Complete(1)
	assert.False(t, ok)
}

func TestManager_StartReplacesPrevious(t *testing.T) {
	m := NewManager(time.Minute, nil)
	m.StartDialog(1, 100, "profile")
	m.StartDialog(1, 100, "posts")

	s, ok := m.Pending(1)
	require.True(t, ok)
	assert.Equal(t, "posts", s.Command)
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(time.Minute, nil)
	assert.False(t, m.CancelDialog(7))
	m.StartDialog(7, 1, "posts")
	assert.True(t, m.CancelDialog(7))
	assert.False(t, m.IsDialogActive(7))
}

func TestManager_Timeout(t *testing.T) {
	expired := make(chan DialogState, 1)
	m := NewManager(20*time.Millisecond, func(s DialogState) { expired <- s })

	m.StartDialog(3, 300, "profile")

	select {
	case s := <-expired:
		assert.Equal(t, int64(3), s.UserID)
		assert.Equal(t, int64(300), s.ChatID)
		assert.Equal(t, "profile", s.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("dialog did not expire")
	}
	assert.False(t, m.IsDialogActive(3))
}

func TestManager_CompletedDialogDoesNotExpire(t *testing.T) {
	expired := make(chan DialogState, 1)
	m := NewManager(20*time.Millisecond, func(s DialogState) { expired <- s })

	m.StartDialog(4, 400, "profile")
	_, ok := m.Complete(4)
	require.True(t, ok)

	select {
	case <-expired:
		t.Fatal("completed dialog expired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManager_ReplacedDialogTimerIgnored(t *testing.T) {
	expired := make(chan DialogState, 2)
	m := NewManager(50*time.Millisecond, func(s DialogState) { expired <- s })

	m.StartDialog(5, 500, "profile")
	m.StartDialog(5, 500, "posts")

	select {
	case s := <-expired:
		assert.Equal(t, "posts", s.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("dialog did not expire")
	}
	select {
	case s := <-expired:
		t.Fatalf("unexpected second expiry for %q", s.Command)
	case <-time.After(100 * time.Millisecond):
	}
}
