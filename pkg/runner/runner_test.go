package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	log      *[]string
	mu       *sync.Mutex
	startErr error
	block    time.Duration
}

func (s recordingService) Start(context.Context) error {
	s.mu.Lock()
	*s.log = append(*s.log, "start "+s.name)
	s.mu.Unlock()
	return s.startErr
}

func (s recordingService) Drain(context.Context) error {
	time.Sleep(s.block)
	s.mu.Lock()
	*s.log = append(*s.log, "drain "+s.name)
	s.mu.Unlock()
	return nil
}

func init() { BannerOutput = nil }

func TestRunStartsAndDrainsInReverse(t *testing.T) {
	var log []string
	var mu sync.Mutex
	stopped := false
	r := NewLifecycleRunner([]Service{
		recordingService{name: "store", log: &log, mu: &mu},
		recordingService{name: "http", log: &log, mu: &mu},
	}, Hooks{OnStop: func() { stopped = true }}, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.State() == StateRunning }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, StateStopped, r.State())
	assert.True(t, stopped)
	assert.Equal(t, []string{"start store", "start http", "drain http", "drain store"}, log)
}

func TestRunStartFailureDrainsStarted(t *testing.T) {
	var log []string
	var mu sync.Mutex
	r := NewLifecycleRunner([]Service{
		recordingService{name: "store", log: &log, mu: &mu},
		recordingService{name: "http", log: &log, mu: &mu, startErr: errors.New("address in use")},
	}, Hooks{}, time.Second, nil)

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.Equal(t, []string{"start store", "start http", "drain store"}, log)
	assert.Equal(t, StateStopped, r.State())
}

func TestDrainTimeout(t *testing.T) {
	var log []string
	var mu sync.Mutex
	r := NewLifecycleRunner([]Service{
		recordingService{name: "slow", log: &log, mu: &mu, block: 200 * time.Millisecond},
	}, Hooks{}, 20*time.Millisecond, nil)

	go func() {
		for r.State() != StateRunning {
			time.Sleep(time.Millisecond)
		}
		_ = r.Stop()
	}()
	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrDrainTimeout)
}

func TestRunTwice(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
	assert.Error(t, r.Run(context.Background()))
	assert.Equal(t, "stopped", r.State().String())
}
