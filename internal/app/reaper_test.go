package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/memory"
	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/metrics"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyReapRepo struct {
	*memory.SlideRepo
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyReapRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fails > 0
	if fail {
		f.fails--
	}
	f.mu.Unlock()
	if fail {
		return 0, errors.New("db down")
	}
	return f.SlideRepo.DeleteExpired(ctx, cutoff)
}

func (f *flakyReapRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func startReaper(t *testing.T, r *Reaper, clock *clockwork.FakeClock) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	return func() {
		cancel()
		<-done
	}
}

func seed(t *testing.T, repo domain.SlideRepository, title string, expires time.Time) {
	t.Helper()
	_, err := repo.Create(context.Background(), domain.NewSlide{
		Title: title, DurationSeconds: 5, BodyContent: "x", ExpiresAt: expires, CreatedAt: now,
	})
	require.NoError(t, err)
}

func TestReaper_DeletesExpiredOnTick(t *testing.T) {
	repo := memory.NewSlideRepo()
	seed(t, repo, "expires soon", now.Add(30*time.Minute))
	seed(t, repo, "long lived", now.Add(48*time.Hour))

	clock := clockwork.NewFakeClockAt(now)
	m := metrics.NewStoreMetrics(nil)
	stop := startReaper(t, NewReaper(repo, clock, time.Hour, m), clock)
	defer stop()

	slides, _ := repo.List(context.Background())
	require.Len(t, slides, 2)

	clock.Advance(time.Hour)

	assert.Eventually(t, func() bool {
		slides, _ := repo.List(context.Background())
		return len(slides) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.SlidesReaped) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReaper_ErrorDoesNotStopLoop(t *testing.T) {
	repo := &flakyReapRepo{SlideRepo: memory.NewSlideRepo(), fails: 1}
	seed(t, repo, "expired", now.Add(-time.Minute))

	clock := clockwork.NewFakeClockAt(now)
	m := metrics.NewStoreMetrics(nil)
	stop := startReaper(t, NewReaper(repo, clock, time.Hour, m), clock)
	defer stop()

	clock.Advance(time.Hour)
	assert.Eventually(t, func() bool { return repo.callCount() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Hour)
	assert.Eventually(t, func() bool { return repo.callCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ReapRuns.WithLabelValues("error")) == 1 &&
			testutil.ToFloat64(m.ReapRuns.WithLabelValues("ok")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReaper_SecondRunReturnsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	r := NewReaper(memory.NewSlideRepo(), clock, time.Hour, nil)
	stop := startReaper(t, r, clock)
	defer stop()

	returned := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("second Run did not return")
	}
}

func TestNewReaper_DefaultsInterval(t *testing.T) {
	r := NewReaper(memory.NewSlideRepo(), clockwork.NewFakeClock(), 0, nil)
	assert.Equal(t, DefaultReapInterval, r.interval)
}

type stubLock struct {
	acquired bool
	err      error
}

func (l stubLock) TryAcquire(context.Context) (bool, error) {
	return l.acquired, l.err
}

func TestReaper_SkipsWhenLockHeldElsewhere(t *testing.T) {
	repo := memory.NewSlideRepo()
	seed(t, repo, "expired", now.Add(-time.Minute))

	m := metrics.NewStoreMetrics(nil)
	r := NewReaper(repo, clockwork.NewFakeClockAt(now), time.Hour, m).WithLock(stubLock{acquired: false})
	r.reap(context.Background())

	slides, _ := repo.List(context.Background())
	assert.Len(t, slides, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReapRuns.WithLabelValues("skipped")))
}

func TestReaper_LockErrorFallsBackToReaping(t *testing.T) {
	repo := memory.NewSlideRepo()
	seed(t, repo, "expired", now.Add(-time.Minute))

	r := NewReaper(repo, clockwork.NewFakeClockAt(now), time.Hour, nil).
		WithLock(stubLock{err: errors.New("redis down")})
	r.reap(context.Background())

	slides, _ := repo.List(context.Background())
	assert.Empty(t, slides)
}
