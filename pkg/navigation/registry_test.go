package navigation_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/navigation/navigationtest"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type evictions struct {
	mu      sync.Mutex
	reasons []navigation.EvictReason
}

func (e *evictions) hook(_ *navigation.Session, reason navigation.EvictReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reasons = append(e.reasons, reason)
}

func (e *evictions) list() []navigation.EvictReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]navigation.EvictReason(nil), e.reasons...)
}

func newTrackedSession(
	t *testing.T,
	timeout time.Duration,
	pages int,
) (*navigation.Registry, *navigationtest.Clock, *evictions, navigation.MessageKey) {
	t.Helper()

	clock := navigationtest.NewClock(testEpoch)
	evicted := &evictions{}
	registry := navigation.NewRegistry(
		navigation.WithTimeout(timeout),
		navigation.WithClock(clock),
		navigation.WithRegistryLogger(quietLogger()),
		navigation.WithEvictHook(evicted.hook),
	)
	session := newTestSession(t, []navigation.Bookmark{bookmark("main", pages, true)}, navigation.StartPage(0))
	key := navigation.MessageKey{Scope: "test", Conversation: "chat", Message: "1"}
	if err := registry.Track(key, session); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	return registry, clock, evicted, key
}

func TestRegistryAcceptedEventPostponesExpiry(t *testing.T) {
	t.Parallel()

	const timeout = 10 * time.Second
	registry, clock, evicted, key := newTrackedSession(t, timeout, 5)

	clock.Advance(timeout - time.Second)
	transition, err := registry.Apply(key, navigation.Event{Action: navigation.ActionNext}, nil)
	if err != nil || !transition.Accepted {
		t.Fatalf("Apply() = %+v, %v; want accepted", transition, err)
	}

	session, _ := registry.Lookup(key)
	wantDeadline := testEpoch.Add(timeout - time.Second).Add(timeout)
	if got := session.ExpiresAt(); !got.Equal(wantDeadline) {
		t.Fatalf("deadline = %v, want %v", got, wantDeadline)
	}

	clock.Advance(time.Second)
	if _, ok := registry.Lookup(key); !ok {
		t.Fatal("session expired at the original deadline")
	}

	clock.Advance(timeout - 2*time.Second)
	if _, ok := registry.Lookup(key); !ok {
		t.Fatal("session expired before the postponed deadline")
	}

	clock.Advance(time.Second)
	if _, ok := registry.Lookup(key); ok {
		t.Fatal("session still tracked after the postponed deadline")
	}
	if got := evicted.list(); len(got) != 1 || got[0] != navigation.EvictExpired {
		t.Fatalf("evictions = %v, want [expired]", got)
	}
	if !session.Closed() {
		t.Fatal("expired session not closed")
	}
}

func TestRegistryRejectedEventKeepsDeadline(t *testing.T) {
	t.Parallel()

	const timeout = 10 * time.Second
	registry, clock, _, key := newTrackedSession(t, timeout, 1)

	clock.Advance(timeout - time.Second)
	transition, err := registry.Apply(key, navigation.Event{Action: navigation.ActionNext}, nil)
	if err != nil || transition.Accepted {
		t.Fatalf("Apply() = %+v, %v; want rejected", transition, err)
	}

	clock.Advance(time.Second)
	if _, ok := registry.Lookup(key); ok {
		t.Fatal("rejected event postponed expiry")
	}
}

func TestRegistryCloseCancelsTimer(t *testing.T) {
	t.Parallel()

	registry, clock, evicted, key := newTrackedSession(t, time.Minute, 3)

	if !registry.Close(key) {
		t.Fatal("Close() = false, want true")
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending timers = %d, want 0", clock.Pending())
	}
	clock.Advance(2 * time.Minute)

	if got := evicted.list(); len(got) != 1 || got[0] != navigation.EvictClosed {
		t.Fatalf("evictions = %v, want [closed]", got)
	}
	if _, err := registry.Apply(key, navigation.Event{Action: navigation.ActionNext}, nil); !errors.Is(err, navigation.ErrUnknownSession) {
		t.Fatalf("Apply() after close error = %v, want %v", err, navigation.ErrUnknownSession)
	}
	if registry.Close(key) {
		t.Fatal("second Close() = true, want false")
	}
}

func TestSessionApplyCloseReleasesTrackedSession(t *testing.T) {
	t.Parallel()

	registry, clock, evicted, key := newTrackedSession(t, time.Minute, 3)
	session, _ := registry.Lookup(key)

	clock.Advance(30 * time.Second)
	if transition := session.Apply(navigation.Event{Action: navigation.ActionNext}); !transition.Accepted {
		t.Fatalf("next = %+v, want accepted", transition)
	}
	if want := testEpoch.Add(90 * time.Second); !session.ExpiresAt().Equal(want) {
		t.Fatalf("expires at = %s, want %s", session.ExpiresAt(), want)
	}

	if transition := session.Apply(navigation.Event{Action: navigation.ActionClose}); !transition.Closed {
		t.Fatalf("close = %+v, want closed", transition)
	}
	if registry.Len() != 0 {
		t.Fatalf("sessions = %d, want 0 after close", registry.Len())
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending timers = %d, want 0", clock.Pending())
	}
	if got := evicted.list(); len(got) != 1 || got[0] != navigation.EvictClosed {
		t.Fatalf("evictions = %v, want [closed]", got)
	}
	if transition := session.Apply(navigation.Event{Action: navigation.ActionPrev}); transition.Accepted {
		t.Fatalf("prev after close = %+v, want rejected", transition)
	}
}

func TestRegistryRenderFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		renderErr   error
		wantErr     error
		wantTracked bool
		wantEvicted []navigation.EvictReason
	}{
		{
			name:        "failure evicts",
			renderErr:   errors.New("message deleted"),
			wantErr:     navigation.ErrRenderFailed,
			wantEvicted: []navigation.EvictReason{navigation.EvictRenderFailed},
		},
		{
			name:        "deferred failure keeps session",
			renderErr:   navigation.ErrRenderDeferred,
			wantErr:     navigation.ErrRenderDeferred,
			wantTracked: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry, clock, evicted, key := newTrackedSession(t, time.Minute, 3)
			_, err := registry.Apply(key, navigation.Event{Action: navigation.ActionNext}, func(navigation.Page) error {
				return testCase.renderErr
			})
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, testCase.wantErr)
			}
			if _, tracked := registry.Lookup(key); tracked != testCase.wantTracked {
				t.Fatalf("tracked = %v, want %v", tracked, testCase.wantTracked)
			}
			if !testCase.wantTracked && clock.Pending() != 0 {
				t.Fatalf("pending timers = %d, want 0", clock.Pending())
			}
			if got := evicted.list(); len(got) != len(testCase.wantEvicted) {
				t.Fatalf("evictions = %v, want %v", got, testCase.wantEvicted)
			}
		})
	}
}

func TestRegistryTrackRejectsDuplicates(t *testing.T) {
	t.Parallel()

	registry, _, _, key := newTrackedSession(t, time.Minute, 2)
	other := newTestSession(t, []navigation.Bookmark{bookmark("main", 2, true)}, navigation.StartPage(0))

	if err := registry.Track(key, other); !errors.Is(err, navigation.ErrSessionTracked) {
		t.Fatalf("Track() duplicate error = %v, want %v", err, navigation.ErrSessionTracked)
	}
}

func TestRegistryShutdown(t *testing.T) {
	t.Parallel()

	registry, clock, evicted, _ := newTrackedSession(t, time.Minute, 2)
	second := newTestSession(t, []navigation.Bookmark{bookmark("main", 2, true)}, navigation.StartPage(0))
	if err := registry.Track(navigation.MessageKey{Scope: "test", Conversation: "chat", Message: "2"}, second); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	registry.Shutdown()

	if registry.Len() != 0 || clock.Pending() != 0 {
		t.Fatalf("after shutdown len = %d pending = %d, want 0 0", registry.Len(), clock.Pending())
	}
	if got := evicted.list(); len(got) != 2 {
		t.Fatalf("evictions = %v, want two shutdowns", got)
	}
}

func TestRegistrySerializesTransitions(t *testing.T) {
	t.Parallel()

	const workers = 50
	registry, _, _, key := newTrackedSession(t, time.Minute, 100)

	var (
		inFlight atomic.Int32
		overlap  atomic.Bool
		renders  atomic.Int32
		wait     sync.WaitGroup
	)
	render := func(navigation.Page) error {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		renders.Add(1)
		inFlight.Add(-1)
		return nil
	}

	wait.Add(workers)
	for worker := 0; worker < workers; worker++ {
		go func() {
			defer wait.Done()
			if _, err := registry.Apply(key, navigation.Event{Action: navigation.ActionNext}, render); err != nil {
				t.Errorf("Apply() error = %v", err)
			}
		}()
	}
	wait.Wait()

	session, _ := registry.Lookup(key)
	if cursor, _ := session.Cursor("main"); cursor != workers {
		t.Fatalf("cursor = %d, want %d", cursor, workers)
	}
	if renders.Load() != workers || overlap.Load() {
		t.Fatalf("renders = %d overlap = %v, want %d false", renders.Load(), overlap.Load(), workers)
	}
}
