// Package audio implements the client's audio path: microphone capture into
// raw PCM16 frames, clock-scheduled gapless playback of streamed agent
// speech, and the sample conversions between them.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Sample rates agreed with the backend. Microphone frames go out at the
// capture rate; agent speech arrives at the playback rate.
const (
	CaptureSampleRateHz  = 16000
	PlaybackSampleRateHz = 24000

	channels       = 1
	bytesPerSample = 2
)

// ConvertF32ToPCM16 converts float samples to 16-bit signed little-endian
// PCM. Samples are clamped to [-1, 1] first; negative values scale by 32768
// and non-negative by 32767 so both extremes stay inside the signed range.
func ConvertF32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, sample := range samples {
		if sample < -1 {
			sample = -1
		}
		if sample > 1 {
			sample = 1
		}
		var v int16
		if sample < 0 {
			v = int16(sample * 32768)
		} else {
			v = int16(sample * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(v))
	}
	return out
}

// ConvertPCM16ToF32 reinterprets little-endian PCM16 bytes as normalized
// float samples in [-1, 1]. A trailing odd byte is ignored.
func ConvertPCM16ToF32(pcm []byte) []float32 {
	n := len(pcm) / bytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// DecodeBase64PCM16 decodes the audio_chunk payload to raw PCM16 bytes.
func DecodeBase64PCM16(data string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio chunk: %w", err)
	}
	return pcm, nil
}

// EncodePCM16Base64 is the outbound mirror of DecodeBase64PCM16.
func EncodePCM16Base64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DurationOf returns the playback duration of a mono PCM16 buffer.
func DurationOf(pcmBytes int, sampleRateHz int) time.Duration {
	if pcmBytes <= 0 || sampleRateHz <= 0 {
		return 0
	}
	samples := pcmBytes / (channels * bytesPerSample)
	return time.Duration(samples) * time.Second / time.Duration(sampleRateHz)
}

func f32SamplesFromBytes(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
