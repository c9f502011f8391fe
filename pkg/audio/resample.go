package audio

// Resample converts mono float samples between sample rates using linear
// interpolation. Speech content tolerates linear interpolation well at the
// rates involved here; the capture pipeline uses it when the device rate
// differs from the wire rate so frames never leave at the wrong pitch.
func Resample(in []float32, fromRateHz, toRateHz int) []float32 {
	if len(in) == 0 || fromRateHz <= 0 || toRateHz <= 0 {
		return nil
	}
	if fromRateHz == toRateHz {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	n := (len(in)*toRateHz + fromRateHz - 1) / fromRateHz
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	step := float64(fromRateHz) / float64(toRateHz)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}
