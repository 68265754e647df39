package voxlingua

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	fbankWindowSize = 400 // 25ms at 16kHz
	fbankHopSize    = 160 // 10ms at 16kHz
	fbankFFTSize    = 400
	fbankNumMels    = 80
	fbankTopDB      = 80.0
	fbankMinPower   = 1e-10
)

// filterbank computes log mel features the way the ECAPA front-end expects
// them: Hamming window, power spectrum, dB scale clamped to topDB below the
// peak, then per-utterance mean normalization.
type filterbank struct {
	fft     *fourier.FFT
	window  []float64
	melBank [][]float64
}

func newFilterbank(sampleRate int) *filterbank {
	return &filterbank{
		fft:     fourier.NewFFT(fbankFFTSize),
		window:  hammingWindow(fbankWindowSize),
		melBank: melFilterBank(fbankNumMels, fbankFFTSize, sampleRate, 0, float64(sampleRate)/2),
	}
}

// numFrames returns the number of centered frames for n samples.
func numFrames(n int) int {
	return n/fbankHopSize + 1
}

// extract returns a [T*numMels] row-major feature matrix and T.
func (fb *filterbank) extract(samples []float32) ([]float32, int) {
	if len(samples) == 0 {
		return nil, 0
	}

	// Frames are centered on hop boundaries, so the signal is reflect padded
	// by half a window on each side.
	pad := fbankWindowSize / 2
	padded := reflectPad(samples, pad)
	frames := numFrames(len(samples))

	features := make([]float32, frames*fbankNumMels)
	frame := make([]float64, fbankFFTSize)
	coeffs := make([]complex128, fbankFFTSize/2+1)
	power := make([]float64, fbankFFTSize/2+1)

	peak := math.Inf(-1)
	for t := 0; t < frames; t++ {
		start := t * fbankHopSize
		for i := range frame {
			frame[i] = 0
		}
		for i := 0; i < fbankWindowSize && start+i < len(padded); i++ {
			frame[i] = padded[start+i] * fb.window[i]
		}

		coeffs = fb.fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			power[k] = real(c)*real(c) + imag(c)*imag(c)
		}

		row := features[t*fbankNumMels : (t+1)*fbankNumMels]
		for m, filter := range fb.melBank {
			var sum float64
			for k, w := range filter {
				sum += w * power[k]
			}
			db := 10 * math.Log10(math.Max(sum, fbankMinPower))
			peak = math.Max(peak, db)
			row[m] = float32(db)
		}
	}

	floor := float32(peak - fbankTopDB)
	for i, v := range features {
		if v < floor {
			features[i] = floor
		}
	}

	meanNormalize(features, frames)

	return features, frames
}

func meanNormalize(features []float32, frames int) {
	if frames == 0 {
		return
	}
	for m := 0; m < fbankNumMels; m++ {
		var sum float64
		for t := 0; t < frames; t++ {
			sum += float64(features[t*fbankNumMels+m])
		}
		mean := float32(sum / float64(frames))
		for t := 0; t < frames; t++ {
			features[t*fbankNumMels+m] -= mean
		}
	}
}

func reflectPad(samples []float32, pad int) []float64 {
	n := len(samples)
	out := make([]float64, n+2*pad)
	for i := range out {
		j := i - pad
		// Reflect without repeating the edge sample.
		for j < 0 || j >= n {
			if n == 1 {
				j = 0
				break
			}
			if j < 0 {
				j = -j
			}
			if j >= n {
				j = 2*(n-1) - j
			}
		}
		out[i] = float64(samples[j])
	}
	return out
}

func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		// Periodic window, matching torch.hamming_window defaults.
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank returns [numMels][fftSize/2+1] triangular filters.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	halfFFT := fftSize/2 + 1
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	hz := make([]float64, numMels+2)
	step := (highMel - lowMel) / float64(numMels+1)
	for i := range hz {
		hz[i] = melToHz(lowMel + float64(i)*step)
	}

	binHz := float64(sampleRate) / float64(fftSize)
	bank := make([][]float64, numMels)
	for m := range bank {
		left, center, right := hz[m], hz[m+1], hz[m+2]
		filter := make([]float64, halfFFT)
		for k := range filter {
			f := float64(k) * binHz
			switch {
			case f > left && f <= center:
				filter[k] = (f - left) / (center - left)
			case f > center && f < right:
				filter[k] = (right - f) / (right - center)
			}
		}
		bank[m] = filter
	}
	return bank
}
