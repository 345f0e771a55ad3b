// ABOUTME: Mode 0 codec, raw PCM passthrough
// ABOUTME: Only an all-zero chunk is replaced by the silence marker
package codec

import "sync/atomic"

type rawEncoder struct {
	format Format
}

func (e *rawEncoder) Encode(raw []byte) []byte {
	raw = fit(raw, e.format)
	for _, b := range raw {
		if b != 0 {
			return raw
		}
	}
	return Silence()
}

type rawDecoder struct {
	format   Format
	failures atomic.Int64
}

func (d *rawDecoder) Decode(payload []byte) []byte {
	if IsSilence(payload) {
		return SilentChunk(d.format)
	}
	if len(payload) != d.format.ChunkBytes() {
		d.failures.Add(1)
		return SilentChunk(d.format)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}

func (d *rawDecoder) Reset() {}

func (d *rawDecoder) Failures() int64 {
	return d.failures.Load()
}
