package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows one context per process; every sink shares it.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedOtoContext(sampleRateHz int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRateHz,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			// Small buffer keeps latency low; pre-buffering smoothness is
			// the scheduler's job.
			BufferSize: 100 * time.Millisecond,
		})
		if err != nil {
			otoErr = fmt.Errorf("init speaker: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// OtoSink plays PCM16 audio through the speaker. The player pulls from an
// internal buffer via io.Reader, so Write never blocks on the device.
type OtoSink struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  *oto.Player
	otoCtx  *oto.Context
	playing bool
	closed  bool
}

// NewOtoSink allocates a speaker-backed sink. The underlying player starts
// on the first Write.
func NewOtoSink(sampleRateHz int) (*OtoSink, error) {
	ctx, err := sharedOtoContext(sampleRateHz)
	if err != nil {
		return nil, err
	}
	s := &OtoSink{otoCtx: ctx}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write appends PCM16 bytes for playback.
func (s *OtoSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("audio sink is closed")
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto player. It is called from the
// playback goroutine to pull audio data.
func (s *OtoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains without tight error loops.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Close discards buffered audio and releases the player.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.buf = nil
	player := s.player
	s.player = nil
	s.playing = false
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		_ = player.Close()
	}
	return nil
}
