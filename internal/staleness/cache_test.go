package staleness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) HasChangedSince(ctx context.Context, since time.Time) (bool, error) {
	args := m.Called(ctx, since)
	return args.Bool(0), args.Error(1)
}

type fetchRecorder struct {
	mu      sync.Mutex
	calls   []bool
	value   int
	failing error
}

func (f *fetchRecorder) fetch(_ context.Context, bypass bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, bypass)
	if f.failing != nil {
		return 0, f.failing
	}
	f.value++
	return f.value, nil
}

func (f *fetchRecorder) bypasses() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.calls...)
}

func TestGet_FetchesOnce(t *testing.T) {
	f := &fetchRecorder{}
	c := New[int](f.fetch, &mockChecker{})

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, []bool{false}, f.bypasses())
	assert.False(t, c.FetchedAt().IsZero())
}

func TestGet_FetchError(t *testing.T) {
	f := &fetchRecorder{failing: errors.New("503")}
	c := New[int](f.fetch, &mockChecker{})

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staleness: fetch")
	assert.True(t, c.FetchedAt().IsZero())
}

func TestCheck_UnchangedServesCachedValue(t *testing.T) {
	f := &fetchRecorder{}
	checker := &mockChecker{}
	c := New[int](f.fetch, checker)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	since := c.FetchedAt()

	checker.On("HasChangedSince", mock.Anything, since).Return(false, nil).Twice()

	for i := 0; i < 2; i++ {
		refreshed, err := c.Check(context.Background())
		require.NoError(t, err)
		assert.False(t, refreshed)
	}

	v, _ := c.Get(context.Background())
	assert.Equal(t, 1, v)
	assert.Len(t, f.bypasses(), 1)
	checker.AssertExpectations(t)
}

func TestCheck_ChangedRefetchesWithBypass(t *testing.T) {
	f := &fetchRecorder{}
	checker := &mockChecker{}
	var refreshed []int
	c := New[int](f.fetch, checker, WithOnRefresh(func(v int) { refreshed = append(refreshed, v) }))

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	first := c.FetchedAt()

	checker.On("HasChangedSince", mock.Anything, first).Return(true, nil).Once()

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	v, _ := c.Get(context.Background())
	assert.Equal(t, 2, v)
	assert.Equal(t, []bool{false, true}, f.bypasses())
	assert.Equal(t, []int{1, 2}, refreshed)
	assert.False(t, c.FetchedAt().Before(first))
	checker.AssertExpectations(t)
}

func TestCheck_CheckerFailureSkipsCycle(t *testing.T) {
	f := &fetchRecorder{}
	checker := &mockChecker{}
	c := New[int](f.fetch, checker)
	_, _ = c.Get(context.Background())

	checker.On("HasChangedSince", mock.Anything, mock.Anything).Return(false, errors.New("timeout")).Once()

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, f.bypasses(), 1)
}

func TestCheck_RefetchFailureKeepsValue(t *testing.T) {
	f := &fetchRecorder{}
	checker := &mockChecker{}
	c := New[int](f.fetch, checker)
	_, _ = c.Get(context.Background())

	checker.On("HasChangedSince", mock.Anything, mock.Anything).Return(true, nil).Once()
	f.mu.Lock()
	f.failing = errors.New("502")
	f.mu.Unlock()

	ok, err := c.Check(context.Background())
	require.Error(t, err)
	assert.False(t, ok)

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCheck_NothingCachedYet(t *testing.T) {
	f := &fetchRecorder{}
	checker := &mockChecker{}
	c := New[int](f.fetch, checker)

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	checker.AssertNotCalled(t, "HasChangedSince", mock.Anything, mock.Anything)
	assert.Empty(t, f.bypasses())
}

func TestInvalidate_NextGetBypasses(t *testing.T) {
	f := &fetchRecorder{}
	c := New[int](f.fetch, &mockChecker{})
	_, _ = c.Get(context.Background())

	c.Invalidate()
	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, []bool{false, true}, f.bypasses())
}

func TestSetActive_Interval(t *testing.T) {
	c := New[int]((&fetchRecorder{}).fetch, &mockChecker{},
		WithActiveInterval[int](2*time.Second),
		WithIdleInterval[int](30*time.Second),
	)

	assert.Equal(t, 30*time.Second, c.Interval())
	c.SetActive(true)
	assert.Equal(t, 2*time.Second, c.Interval())
	c.SetActive(false)
	assert.Equal(t, 30*time.Second, c.Interval())
}

func TestRun_ChecksOnActiveCadence(t *testing.T) {
	f := &fetchRecorder{}
	checker := &mockChecker{}
	checker.On("HasChangedSince", mock.Anything, mock.Anything).Return(true, nil)

	c := New[int](f.fetch, checker,
		WithActiveInterval[int](10*time.Millisecond),
		WithIdleInterval[int](time.Hour),
	)
	_, err := c.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, f.bypasses(), 1, "idle cadence should not have fired yet")

	c.SetActive(true)
	require.Eventually(t, func() bool { return len(f.bypasses()) >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
