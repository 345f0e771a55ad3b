// ABOUTME: Mode 2 codec, keeps local extrema and plateau edges of each channel
// ABOUTME: Block layout per channel is count, indices, values as LE int16
package codec

import (
	"encoding/binary"
	"sync/atomic"
)

type extremaEncoder struct {
	format Format
}

func (e *extremaEncoder) Encode(raw []byte) []byte {
	samples := toSamples(fit(raw, e.format))
	if magnitude(samples) < SilenceThreshold {
		return Silence()
	}

	var out []int16
	for _, data := range deinterleave(samples, e.format.Channels) {
		idx := keyframes(data)
		out = append(out, int16(len(idx)))
		for _, i := range idx {
			out = append(out, int16(i))
		}
		for _, i := range idx {
			out = append(out, data[i])
		}
	}
	return fromSamples(out)
}

// keyframes returns the indices kept for one channel: both ends, every
// direction change and the first and last sample of each flat run.
func keyframes(data []int16) []int {
	n := len(data)
	if n == 0 {
		return nil
	}
	idx := []int{0}
	for i := 1; i < n-1; i++ {
		prev, cur, next := data[i-1], data[i], data[i+1]
		switch {
		case cur == prev && cur == next:
		case cur == prev || cur == next:
			idx = append(idx, i)
		case (cur > prev) != (next > cur):
			idx = append(idx, i)
		}
	}
	if n > 1 {
		idx = append(idx, n-1)
	}
	return idx
}

type extremaDecoder struct {
	format   Format
	failures atomic.Int64
}

func (d *extremaDecoder) Decode(payload []byte) []byte {
	if IsSilence(payload) {
		return SilentChunk(d.format)
	}
	chans, ok := d.parse(payload)
	if !ok {
		d.failures.Add(1)
		return SilentChunk(d.format)
	}
	return fromSamples(interleave(chans))
}

// parse walks the per-channel blocks and rejects anything that cannot be
// interpolated into exactly FrameCount samples per channel.
func (d *extremaDecoder) parse(payload []byte) ([][]int16, bool) {
	if len(payload)%2 != 0 {
		return nil, false
	}
	minPoints := 2
	if d.format.FrameCount < 2 {
		minPoints = 1
	}

	words := len(payload) / 2
	word := func(i int) int16 {
		return int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}

	chans := make([][]int16, d.format.Channels)
	pos := 0
	for ch := range chans {
		if pos >= words {
			return nil, false
		}
		count := int(word(pos))
		pos++
		if count < minPoints || count > d.format.FrameCount || pos+2*count > words {
			return nil, false
		}

		xs := make([]int, count)
		ys := make([]int16, count)
		for k := 0; k < count; k++ {
			x := int(word(pos + k))
			if x < 0 || x >= d.format.FrameCount || (k > 0 && x <= xs[k-1]) {
				return nil, false
			}
			xs[k] = x
			ys[k] = word(pos + count + k)
		}
		pos += 2 * count

		out := make([]int16, d.format.FrameCount)
		interpolate(out, xs, ys)
		chans[ch] = out
	}
	if pos != words {
		return nil, false
	}
	return chans, true
}

func (d *extremaDecoder) Reset() {}

func (d *extremaDecoder) Failures() int64 {
	return d.failures.Load()
}
