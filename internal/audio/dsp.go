package audio

import "math"

// Hook transforms a block of samples in the synthesis pipeline.
type Hook func(samples []float32) []float32

// ApplyHooks runs samples through each hook in order.
func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// Stretch resamples audio to play back at the given speed factor.
// speed > 1 shortens the output, speed < 1 lengthens it.  Linear
// interpolation between neighbouring samples; pitch shifts with speed,
// which is the accepted trade-off for a playback-rate control.
func Stretch(samples []float32, speed float64) []float32 {
	if speed == 1.0 || len(samples) == 0 || speed <= 0 {
		return samples
	}

	outLen := int(math.Round(float64(len(samples)) / speed))
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * speed
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}

	return out
}

// PeakNormalize scales samples so the peak amplitude reaches 1.0.
// Silent input is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak == 0 || peak == 1 {
		return samples
	}

	scale := 1.0 / peak
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s * scale
	}

	return out
}

// DCBlock removes DC offset using a single-pole high-pass filter.
func DCBlock(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 || sampleRate < 1 {
		return samples
	}

	// ~20 Hz corner.
	r := float32(1.0 - (2.0 * math.Pi * 20.0 / float64(sampleRate)))
	out := make([]float32, len(samples))

	var prevIn, prevOut float32
	for i, s := range samples {
		out[i] = s - prevIn + r*prevOut
		prevIn = s
		prevOut = out[i]
	}

	return out
}

// FadeIn applies a linear fade-in ramp over the given duration in milliseconds.
func FadeIn(samples []float32, sampleRate int, ms float64) []float32 {
	n := rampSamples(sampleRate, ms, len(samples))
	if n == 0 {
		return samples
	}

	out := append([]float32(nil), samples...)
	for i := 0; i < n; i++ {
		out[i] *= float32(i) / float32(n)
	}

	return out
}

// FadeOut applies a linear fade-out ramp over the given duration in milliseconds.
func FadeOut(samples []float32, sampleRate int, ms float64) []float32 {
	n := rampSamples(sampleRate, ms, len(samples))
	if n == 0 {
		return samples
	}

	out := append([]float32(nil), samples...)
	for i := 0; i < n; i++ {
		out[len(out)-1-i] *= float32(i) / float32(n)
	}

	return out
}

func rampSamples(sampleRate int, ms float64, max int) int {
	if sampleRate < 1 || ms <= 0 || max == 0 {
		return 0
	}

	n := int(float64(sampleRate) * ms / 1000.0)
	if n > max {
		n = max
	}

	return n
}
