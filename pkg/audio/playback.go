package audio

import (
	"log/slog"
	"sync"
	"time"
)

// Clock abstracts the host audio clock so scheduling is testable.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// Sink consumes scheduled PCM16 audio on the host output device.
type Sink interface {
	Write(pcm []byte) error
	Close() error
}

// SinkFactory allocates the output resource. The scheduler calls it lazily on
// the first buffer after creation or after Stop.
type SinkFactory func() (Sink, error)

// SchedulerConfig configures gapless playback.
type SchedulerConfig struct {
	// SampleRateHz of inbound PCM16 audio. Default: PlaybackSampleRateHz.
	SampleRateHz int

	// Clock defaults to the wall clock.
	Clock Clock

	// NewSink defaults to the shared speaker output.
	NewSink SinkFactory

	Logger *slog.Logger
}

// Scheduler turns bursty base64 PCM frames into a continuously scheduled
// audio timeline. Each dequeued buffer starts at max(now, nextStartTime):
// back-to-back under steady delivery, immediate catch-up when the clock has
// overtaken the schedule after a network stall.
type Scheduler struct {
	rate    int
	clock   Clock
	newSink SinkFactory
	logger  *slog.Logger

	mu        sync.Mutex
	queue     [][]byte
	active    bool
	gen       uint64
	sink      Sink
	nextStart time.Time
}

// NewScheduler creates an idle scheduler. No output resource is allocated
// until the first Enqueue.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = PlaybackSampleRateHz
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.NewSink == nil {
		rate := cfg.SampleRateHz
		cfg.NewSink = func() (Sink, error) { return NewOtoSink(rate) }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		rate:    cfg.SampleRateHz,
		clock:   cfg.Clock,
		newSink: cfg.NewSink,
		logger:  cfg.Logger,
	}
}

// Enqueue decodes one base64 PCM16 frame and appends it to the playback
// queue. Empty frames are ignored. If no playback is active, scheduling
// begins immediately.
func (s *Scheduler) Enqueue(data string) error {
	pcm, err := DecodeBase64PCM16(data)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}

	s.mu.Lock()
	s.queue = append(s.queue, pcm)
	if !s.active {
		s.active = true
		go s.run(s.gen)
	}
	s.mu.Unlock()
	return nil
}

// Stop clears the queue, discards playback state, and releases the output
// resource. A fresh resource is allocated lazily on the next Enqueue.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.gen++
	s.queue = nil
	s.active = false
	s.nextStart = time.Time{}
	sink := s.sink
	s.sink = nil
	s.mu.Unlock()

	if sink != nil {
		_ = sink.Close()
	}
}

func (s *Scheduler) run(gen uint64) {
	for {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.active = false
			s.mu.Unlock()
			return
		}
		pcm := s.queue[0]
		s.queue = s.queue[1:]

		if s.sink == nil {
			sink, err := s.newSink()
			if err != nil {
				s.active = false
				s.mu.Unlock()
				s.logger.Error("open audio output", "err", err)
				return
			}
			s.sink = sink
		}
		sink := s.sink

		// Guard against the clock having already passed the ideal start:
		// skip ahead instead of stacking latency. nextStart only ever
		// advances for the lifetime of one playback session.
		start := s.clock.Now()
		if s.nextStart.After(start) {
			start = s.nextStart
		}
		s.nextStart = start.Add(DurationOf(len(pcm), s.rate))
		s.mu.Unlock()

		s.clock.Sleep(start.Sub(s.clock.Now()))

		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if stale {
			return
		}
		if err := sink.Write(pcm); err != nil {
			s.logger.Error("write audio output", "err", err)
		}
	}
}
