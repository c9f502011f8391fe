package audio

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sinkWrite struct {
	at    time.Time
	bytes int
}

type fakeSink struct {
	clock *fakeClock

	mu     sync.Mutex
	writes []sinkWrite
	closed bool
}

func (s *fakeSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, sinkWrite{at: s.clock.Now(), bytes: len(pcm)})
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) snapshot() []sinkWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkWrite(nil), s.writes...)
}

type schedulerFixture struct {
	clock *fakeClock
	sched *Scheduler

	mu    sync.Mutex
	sinks []*fakeSink
}

func newSchedulerFixture() *schedulerFixture {
	f := &schedulerFixture{clock: newFakeClock()}
	f.sched = NewScheduler(SchedulerConfig{
		SampleRateHz: 24000,
		Clock:        f.clock,
		NewSink: func() (Sink, error) {
			sink := &fakeSink{clock: f.clock}
			f.mu.Lock()
			f.sinks = append(f.sinks, sink)
			f.mu.Unlock()
			return sink, nil
		},
	})
	return f
}

func (f *schedulerFixture) sinkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

func (f *schedulerFixture) lastSink() *fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sinks) == 0 {
		return nil
	}
	return f.sinks[len(f.sinks)-1]
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		idle := !s.active
		s.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("scheduler did not go idle")
}

// pcmOfDuration builds a silent 24kHz mono PCM16 frame of the given length.
func pcmOfDuration(d time.Duration) string {
	bytes := int(int64(24000*bytesPerSample) * int64(d) / int64(time.Second))
	return EncodePCM16Base64(make([]byte, bytes))
}

func TestScheduler_GaplessBackToBack(t *testing.T) {
	f := newSchedulerFixture()

	durations := []time.Duration{20 * time.Millisecond, 40 * time.Millisecond, 10 * time.Millisecond}
	for _, d := range durations {
		if err := f.sched.Enqueue(pcmOfDuration(d)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	waitIdle(t, f.sched)

	writes := f.lastSink().snapshot()
	if len(writes) != len(durations) {
		t.Fatalf("writes = %d, want %d", len(writes), len(durations))
	}
	for i := 1; i < len(writes); i++ {
		gap := writes[i].at.Sub(writes[i-1].at)
		if gap != durations[i-1] {
			t.Fatalf("buffer %d started %v after buffer %d, want exactly %v", i, gap, i-1, durations[i-1])
		}
	}
}

func TestScheduler_CatchesUpWhenClockOvertakesSchedule(t *testing.T) {
	f := newSchedulerFixture()

	if err := f.sched.Enqueue(pcmOfDuration(20 * time.Millisecond)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitIdle(t, f.sched)

	// Simulate a network stall long enough for the clock to pass nextStart.
	f.clock.advance(5 * time.Second)
	stallEnd := f.clock.Now()

	if err := f.sched.Enqueue(pcmOfDuration(20 * time.Millisecond)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitIdle(t, f.sched)

	writes := f.lastSink().snapshot()
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(writes))
	}
	if !writes[1].at.Equal(stallEnd) {
		t.Fatalf("late buffer started at %v, want now (%v)", writes[1].at, stallEnd)
	}

	f.sched.mu.Lock()
	next := f.sched.nextStart
	f.sched.mu.Unlock()
	if next.Before(stallEnd) {
		t.Fatalf("nextStart %v went backwards past %v", next, stallEnd)
	}
}

func TestScheduler_EmptyFramesIgnored(t *testing.T) {
	f := newSchedulerFixture()
	if err := f.sched.Enqueue(""); err != nil {
		t.Fatalf("enqueue empty: %v", err)
	}
	if f.sinkCount() != 0 {
		t.Fatal("empty frame allocated an output resource")
	}
	if err := f.sched.Enqueue("@@not-base64@@"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestScheduler_StopReleasesAndReallocatesLazily(t *testing.T) {
	f := newSchedulerFixture()

	if err := f.sched.Enqueue(pcmOfDuration(20 * time.Millisecond)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitIdle(t, f.sched)
	first := f.lastSink()

	f.sched.Stop()
	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Fatal("Stop did not close the output resource")
	}

	if err := f.sched.Enqueue(pcmOfDuration(20 * time.Millisecond)); err != nil {
		t.Fatalf("enqueue after stop: %v", err)
	}
	waitIdle(t, f.sched)
	if f.sinkCount() != 2 {
		t.Fatalf("sink count = %d, want a fresh sink after Stop", f.sinkCount())
	}
}
