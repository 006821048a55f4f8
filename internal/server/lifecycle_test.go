package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
	order    *[]string
	name     string
}

func (m *mockService) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return m.startErr
}

func (m *mockService) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	return nil
}

func (m *mockService) state() (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started, m.stopped
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	svc1 := &mockService{}
	svc2 := &mockService{}
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool {
		s1, _ := svc1.state()
		s2, _ := svc2.state()
		return s1 && s2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	_, stopped1 := svc1.state()
	_, stopped2 := svc2.state()
	assert.True(t, stopped1)
	assert.True(t, stopped2)
}

func TestLifecycleStopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	var order []string
	svc1 := &mockService{name: "first", order: &order}
	svc2 := &mockService{name: "second", order: &order}
	lc.Add("first", svc1)
	lc.Add("second", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, lc.Run(ctx))
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestLifecycleStartFailureStopsEarlierServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	svc1 := &mockService{}
	svc2 := &mockService{startErr: errors.New("bind failed")}
	svc3 := &mockService{}
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)
	lc.Add("svc3", svc3)

	err := lc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "svc2")

	_, stopped1 := svc1.state()
	started3, _ := svc3.state()
	assert.True(t, stopped1)
	assert.False(t, started3)
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false
	svc := FuncService{
		StartFn: func(context.Context) error { started = true; return nil },
		StopFn:  func(context.Context) error { stopped = true; return nil },
	}
	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, started)
	require.NoError(t, svc.Stop(context.Background()))
	assert.True(t, stopped)
}
