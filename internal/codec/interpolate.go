// ABOUTME: Mode 1 codec, 2:1 decimation with linear interpolation on decode
// ABOUTME: The decoder carries the last sample of each channel across chunks
package codec

import "sync/atomic"

type interpolateEncoder struct {
	format Format
}

// Encode keeps the even-indexed samples of each channel. Channels are
// written one after the other.
func (e *interpolateEncoder) Encode(raw []byte) []byte {
	samples := toSamples(fit(raw, e.format))
	if magnitude(samples) < SilenceThreshold {
		return Silence()
	}

	kept := make([]int16, 0, e.format.MaxPayload(ModeInterpolate)/2)
	for _, data := range deinterleave(samples, e.format.Channels) {
		for i := 0; i < len(data); i += 2 {
			kept = append(kept, data[i])
		}
	}
	return fromSamples(kept)
}

type interpolateDecoder struct {
	format   Format
	last     []int16
	failures atomic.Int64
}

func newInterpolateDecoder(format Format) *interpolateDecoder {
	return &interpolateDecoder{
		format: format,
		last:   make([]int16, format.Channels),
	}
}

// Decode places kept sample k of a channel at position 2k+1 and anchors
// position -1 on the last sample reconstructed for that channel.
func (d *interpolateDecoder) Decode(payload []byte) []byte {
	if IsSilence(payload) {
		for ch := range d.last {
			d.last[ch] = 0
		}
		return SilentChunk(d.format)
	}
	if len(payload) != d.format.MaxPayload(ModeInterpolate) {
		d.failures.Add(1)
		return SilentChunk(d.format)
	}

	perChannel := (d.format.FrameCount + 1) / 2
	kept := toSamples(payload)
	chans := make([][]int16, d.format.Channels)

	xs := make([]int, perChannel+1)
	ys := make([]int16, perChannel+1)
	for ch := range chans {
		xs[0] = -1
		ys[0] = d.last[ch]
		for k := 0; k < perChannel; k++ {
			xs[k+1] = 2*k + 1
			ys[k+1] = kept[ch*perChannel+k]
		}
		out := make([]int16, d.format.FrameCount)
		interpolate(out, xs, ys)
		chans[ch] = out
		d.last[ch] = out[len(out)-1]
	}
	return fromSamples(interleave(chans))
}

func (d *interpolateDecoder) Reset() {
	for ch := range d.last {
		d.last[ch] = 0
	}
}

func (d *interpolateDecoder) Failures() int64 {
	return d.failures.Load()
}
