package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// ErrAlreadyRecording is returned by Start while a capture is in progress.
var ErrAlreadyRecording = errors.New("audio: capture already recording")

// FrameFunc receives ownership of one PCM16 microphone frame. It runs on the
// capture's forwarding goroutine, never on the real-time audio thread.
type FrameFunc func(frame []byte)

// CaptureConfig configures the microphone pipeline.
type CaptureConfig struct {
	// DeviceSampleRateHz is the rate requested from the device. When it
	// differs from CaptureSampleRateHz, frames are resampled before
	// delivery. Default: CaptureSampleRateHz.
	DeviceSampleRateHz int

	// PeriodMs is the device callback period. Default: 20.
	PeriodMs int

	Logger *slog.Logger
}

// Capture turns the live microphone stream into fixed-format PCM16 frames.
//
// The device callback runs on a realtime-priority thread owned by the audio
// backend. It converts samples, checks the live recording flag, and hands the
// owned buffer over a channel; a forwarding goroutine invokes the frame
// callback. No mutable state is shared with the real-time thread.
type Capture struct {
	cfg     CaptureConfig
	onFrame FrameFunc
	logger  *slog.Logger

	recording atomic.Bool
	gen       atomic.Uint64

	mu     sync.Mutex
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	done   chan struct{}
}

// NewCapture creates an idle capture pipeline. No device is touched until
// Start.
func NewCapture(cfg CaptureConfig, onFrame FrameFunc) *Capture {
	if cfg.DeviceSampleRateHz <= 0 {
		cfg.DeviceSampleRateHz = CaptureSampleRateHz
	}
	if cfg.PeriodMs <= 0 {
		cfg.PeriodMs = 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{cfg: cfg, onFrame: onFrame, logger: logger}
}

// Recording reports whether the pipeline is currently capturing.
func (c *Capture) Recording() bool {
	return c.recording.Load()
}

// Start acquires the microphone and begins delivering frames. The transition
// to recording happens before any device setup; setup failure rolls the state
// back to idle and returns the error so the caller may retry.
func (c *Capture) Start() error {
	if !c.recording.CompareAndSwap(false, true) {
		return ErrAlreadyRecording
	}
	gen := c.gen.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	rollback := func(err error) error {
		c.recording.Store(false)
		return err
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return rollback(fmt.Errorf("init audio context: %w", err))
	}

	frames := make(chan []byte, 32)
	done := make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = uint32(c.cfg.DeviceSampleRateHz)
	deviceConfig.PeriodSizeInMilliseconds = uint32(c.cfg.PeriodMs)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.onData(gen, input, frames)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return rollback(fmt.Errorf("init capture device: %w", err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return rollback(fmt.Errorf("start capture device: %w", err))
	}

	go c.forward(frames, done)

	c.mctx = mctx
	c.device = device
	c.done = done
	return nil
}

// Stop tears down the device stream and returns to idle. Calling Stop when
// not recording is a no-op. The generation bump makes any device callback
// that fires after Stop discard its result.
func (c *Capture) Stop() {
	if !c.recording.CompareAndSwap(true, false) {
		return
	}
	c.gen.Add(1)

	c.mu.Lock()
	device, mctx, done := c.device, c.mctx, c.done
	c.device, c.mctx, c.done = nil, nil, nil
	c.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}
	if done != nil {
		close(done)
	}
}

// onData runs on the real-time audio thread. The recording flag and
// generation are consulted at delivery time, not captured at registration,
// so audio cannot leak after Stop returns.
func (c *Capture) onData(gen uint64, input []byte, frames chan<- []byte) {
	if !c.recording.Load() || c.gen.Load() != gen {
		return
	}
	samples := f32SamplesFromBytes(input)
	if c.cfg.DeviceSampleRateHz != CaptureSampleRateHz {
		samples = Resample(samples, c.cfg.DeviceSampleRateHz, CaptureSampleRateHz)
	}
	frame := ConvertF32ToPCM16(samples)
	if len(frame) == 0 {
		return
	}
	select {
	case frames <- frame:
	default:
		// Never block the real-time thread; drop when the consumer lags.
	}
}

func (c *Capture) forward(frames <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case frame := <-frames:
			if !c.recording.Load() {
				continue
			}
			if c.onFrame != nil {
				c.onFrame(frame)
			}
		}
	}
}
