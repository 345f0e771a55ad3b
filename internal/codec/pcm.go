// ABOUTME: PCM sample helpers used by the codecs
// ABOUTME: Converts between LE bytes and per-channel int16 slices and interpolates
package codec

import (
	"encoding/binary"
)

// fit returns raw sized to exactly one chunk, zero-padding or truncating
func fit(raw []byte, format Format) []byte {
	size := format.ChunkBytes()
	if len(raw) == size {
		return raw
	}
	out := make([]byte, size)
	copy(out, raw)
	return out
}

func toSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func fromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// magnitude sums absolute sample values
func magnitude(samples []int16) int64 {
	var sum int64
	for _, s := range samples {
		if s < 0 {
			sum -= int64(s)
		} else {
			sum += int64(s)
		}
	}
	return sum
}

// deinterleave splits interleaved samples into one slice per channel
func deinterleave(samples []int16, channels int) [][]int16 {
	frames := len(samples) / channels
	out := make([][]int16, channels)
	for ch := range out {
		out[ch] = make([]int16, frames)
		for i := 0; i < frames; i++ {
			out[ch][i] = samples[i*channels+ch]
		}
	}
	return out
}

func interleave(chans [][]int16) []int16 {
	if len(chans) == 0 {
		return nil
	}
	frames := len(chans[0])
	out := make([]int16, frames*len(chans))
	for ch, data := range chans {
		for i, s := range data {
			out[i*len(chans)+ch] = s
		}
	}
	return out
}

// interpolate fills out by piecewise linear interpolation over the points
// (xs[i], ys[i]). xs must be strictly increasing. Positions before the first
// point or after the last hold the edge value.
func interpolate(out []int16, xs []int, ys []int16) {
	if len(xs) == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}
	seg := 0
	for x := range out {
		if x <= xs[0] {
			out[x] = ys[0]
			continue
		}
		last := len(xs) - 1
		if x >= xs[last] {
			out[x] = ys[last]
			continue
		}
		for xs[seg+1] < x {
			seg++
		}
		x0, x1 := xs[seg], xs[seg+1]
		y0, y1 := int64(ys[seg]), int64(ys[seg+1])
		out[x] = int16(y0 + (y1-y0)*int64(x-x0)/int64(x1-x0))
	}
}
