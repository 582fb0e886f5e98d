package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parkdesk/auth-go/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	down    atomic.Bool
	expired atomic.Bool
	health  atomic.Int32
	verify  atomic.Int32
}

func (f *fakeChecker) Health(context.Context) error {
	f.health.Add(1)
	if f.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeChecker) Verify(context.Context) (bool, error) {
	f.verify.Add(1)
	return !f.expired.Load(), nil
}

type recordedNotification struct {
	message  string
	severity notify.Severity
}

type notificationRecorder struct {
	mux  sync.Mutex
	seen []recordedNotification
}

func (r *notificationRecorder) Notify(message string, severity notify.Severity) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.seen = append(r.seen, recordedNotification{message, severity})
}

func (r *notificationRecorder) severities() []notify.Severity {
	r.mux.Lock()
	defer r.mux.Unlock()
	out := []notify.Severity{}
	for _, n := range r.seen {
		out = append(out, n.severity)
	}
	return out
}

func TestNewPollerValidation(t *testing.T) {
	_, err := NewPoller(nil, WithHealthInterval(time.Second))
	assert.Error(t, err)

	_, err = NewPoller(new(fakeChecker))
	assert.Error(t, err)

	_, err = NewPoller(new(fakeChecker), WithHealthInterval(-time.Second))
	assert.Error(t, err)

	_, err = NewPoller(new(fakeChecker), WithVerifyInterval(time.Second), WithCheckTimeout(0))
	assert.Error(t, err)
}

func TestPollerReportsBackendTransitions(t *testing.T) {
	checker := new(fakeChecker)
	checker.down.Store(true)
	recorder := new(notificationRecorder)

	p, err := NewPoller(checker, WithHealthInterval(20*time.Millisecond), WithNotifier(recorder))
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, p.Status().Backend)
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Status().Backend == StateDown }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return checker.health.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	// Repeated failures do not repeat the notification.
	assert.Equal(t, []notify.Severity{notify.Error}, recorder.severities())

	checker.down.Store(false)
	require.Eventually(t, func() bool { return len(recorder.severities()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateUp, p.Status().Backend)
	assert.Equal(t, []notify.Severity{notify.Error, notify.Success}, recorder.severities())
	assert.False(t, p.Status().LastSeen.IsZero())
	assert.Zero(t, checker.verify.Load())
}

func TestPollerReportsExpiredSession(t *testing.T) {
	checker := new(fakeChecker)
	recorder := new(notificationRecorder)

	p, err := NewPoller(checker, WithVerifyInterval(20*time.Millisecond), WithNotifier(recorder))
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Status().Session == StateUp }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, recorder.severities())

	checker.expired.Store(true)
	require.Eventually(t, func() bool { return len(recorder.severities()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateDown, p.Status().Session)
	assert.Equal(t, []notify.Severity{notify.Info}, recorder.severities())
	assert.Zero(t, checker.health.Load())
}
