// ABOUTME: Tests for the chunk codecs
// ABOUTME: Covers round trips, output lengths, silence handling and malformed input
package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

var (
	monoFormat   = Format{SampleRate: 44100, FrameCount: 2048, Channels: 1}
	stereoFormat = Format{SampleRate: 48000, FrameCount: 512, Channels: 2}
)

func sineChunk(format Format, freq float64) []byte {
	samples := make([]int16, format.Samples())
	for i := 0; i < format.FrameCount; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/float64(format.SampleRate)) * 12000)
		for ch := 0; ch < format.Channels; ch++ {
			samples[i*format.Channels+ch] = v
		}
	}
	return fromSamples(samples)
}

func spikeChunk(format Format) []byte {
	samples := make([]int16, format.Samples())
	samples[format.Samples()/2] = 30000
	return fromSamples(samples)
}

func TestParseMode(t *testing.T) {
	for _, v := range []int{0, 1, 2} {
		if _, err := ParseMode(v); err != nil {
			t.Errorf("ParseMode(%d) failed: %v", v, err)
		}
	}
	if _, err := ParseMode(3); err == nil {
		t.Error("expected error for mode 3")
	}
}

func TestModeZeroIdentity(t *testing.T) {
	enc, _ := NewEncoder(ModeRaw, monoFormat)
	dec, _ := NewDecoder(ModeRaw, monoFormat)

	raw := sineChunk(monoFormat, 440)
	got := dec.Decode(enc.Encode(raw))
	if !bytes.Equal(got, raw) {
		t.Error("mode 0 round trip changed the chunk")
	}
}

func TestModeZeroSilence(t *testing.T) {
	enc, _ := NewEncoder(ModeRaw, monoFormat)
	dec, _ := NewDecoder(ModeRaw, monoFormat)

	zero := SilentChunk(monoFormat)
	payload := enc.Encode(zero)
	if !IsSilence(payload) {
		t.Fatalf("expected silence marker, got %d bytes", len(payload))
	}
	if got := dec.Decode(payload); !bytes.Equal(got, zero) {
		t.Error("silence marker did not decode to a zero chunk")
	}
}

func TestDecodedLength(t *testing.T) {
	inputs := map[string]func(Format) []byte{
		"zero":  SilentChunk,
		"spike": spikeChunk,
		"sine":  func(f Format) []byte { return sineChunk(f, 1000) },
		"short": func(f Format) []byte { return sineChunk(f, 1000)[:f.ChunkBytes()/3] },
	}

	for _, format := range []Format{monoFormat, stereoFormat} {
		for _, mode := range []Mode{ModeRaw, ModeInterpolate, ModeExtrema} {
			for name, gen := range inputs {
				t.Run(mode.String()+"/"+name, func(t *testing.T) {
					enc, err := NewEncoder(mode, format)
					if err != nil {
						t.Fatal(err)
					}
					dec, err := NewDecoder(mode, format)
					if err != nil {
						t.Fatal(err)
					}

					payload := enc.Encode(gen(format))
					if len(payload) > format.MaxPayload(mode) {
						t.Errorf("payload %d exceeds max %d", len(payload), format.MaxPayload(mode))
					}
					out := dec.Decode(payload)
					if len(out) != format.ChunkBytes() {
						t.Errorf("expected %d bytes, got %d", format.ChunkBytes(), len(out))
					}
					if dec.Failures() != 0 {
						t.Errorf("unexpected decode failures: %d", dec.Failures())
					}
				})
			}
		}
	}
}

func TestQuietChunkIsSilence(t *testing.T) {
	samples := make([]int16, monoFormat.Samples())
	samples[10] = 2
	samples[20] = -2
	quiet := fromSamples(samples)

	for _, mode := range []Mode{ModeInterpolate, ModeExtrema} {
		enc, _ := NewEncoder(mode, monoFormat)
		if !IsSilence(enc.Encode(quiet)) {
			t.Errorf("%s: expected silence marker for magnitude 4", mode)
		}
	}

	raw, _ := NewEncoder(ModeRaw, monoFormat)
	if IsSilence(raw.Encode(quiet)) {
		t.Error("raw mode must only mark all-zero chunks as silence")
	}
}

func TestInterpolateRamp(t *testing.T) {
	format := Format{SampleRate: 44100, FrameCount: 256, Channels: 1}
	enc, _ := NewEncoder(ModeInterpolate, format)
	dec, _ := NewDecoder(ModeInterpolate, format)

	next := int16(0)
	var prevLast int16
	for chunk := 0; chunk < 10; chunk++ {
		samples := make([]int16, format.Samples())
		for i := range samples {
			samples[i] = next
			next += 3
		}

		out := toSamples(dec.Decode(enc.Encode(fromSamples(samples))))
		if out[0] < prevLast {
			t.Fatalf("chunk %d: first sample %d below previous last %d", chunk, out[0], prevLast)
		}
		for i := 1; i < len(out); i++ {
			if out[i] < out[i-1] {
				t.Fatalf("chunk %d: sample %d decreased (%d < %d)", chunk, i, out[i], out[i-1])
			}
		}
		prevLast = out[len(out)-1]
	}
}

func TestInterpolateStereoChannelsIndependent(t *testing.T) {
	format := Format{SampleRate: 48000, FrameCount: 64, Channels: 2}
	samples := make([]int16, format.Samples())
	for i := 0; i < format.FrameCount; i++ {
		samples[i*2] = 1000
		samples[i*2+1] = -1000
	}

	enc, _ := NewEncoder(ModeInterpolate, format)
	dec, _ := NewDecoder(ModeInterpolate, format)
	dec.Decode(enc.Encode(fromSamples(samples)))
	out := toSamples(dec.Decode(enc.Encode(fromSamples(samples))))

	for i := 0; i < format.FrameCount; i++ {
		if out[i*2] != 1000 || out[i*2+1] != -1000 {
			t.Fatalf("frame %d: got (%d, %d)", i, out[i*2], out[i*2+1])
		}
	}
}

func TestInterpolateReset(t *testing.T) {
	format := Format{SampleRate: 44100, FrameCount: 8, Channels: 1}
	d := newInterpolateDecoder(format)
	d.last[0] = 500
	d.Reset()
	if d.last[0] != 0 {
		t.Errorf("expected last sample cleared, got %d", d.last[0])
	}
}

func TestKeyframes(t *testing.T) {
	tests := []struct {
		name string
		data []int16
		want []int
	}{
		{"single", []int16{7}, []int{0}},
		{"line", []int16{0, 1, 2, 3}, []int{0, 3}},
		{"peak", []int16{0, 5, 0}, []int{0, 1, 2}},
		{"plateau", []int16{0, 5, 5, 5, 0}, []int{0, 1, 3, 4}},
		{"valley", []int16{4, 2, 1, 2, 4}, []int{0, 2, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keyframes(tt.data)
			if len(got) != len(tt.want) {
				t.Fatalf("keyframes = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("keyframes = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestExtremaTriangleExact(t *testing.T) {
	format := Format{SampleRate: 44100, FrameCount: 64, Channels: 1}
	samples := make([]int16, format.Samples())
	for i := range samples {
		if i < 32 {
			samples[i] = int16(i * 100)
		} else {
			samples[i] = int16((63 - i) * 100)
		}
	}

	enc, _ := NewEncoder(ModeExtrema, format)
	dec, _ := NewDecoder(ModeExtrema, format)
	out := toSamples(dec.Decode(enc.Encode(fromSamples(samples))))
	for i := range samples {
		if out[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, out[i], samples[i])
		}
	}
}

func TestExtremaMalformed(t *testing.T) {
	format := Format{SampleRate: 44100, FrameCount: 16, Channels: 1}
	block := func(words ...int16) []byte {
		b := make([]byte, len(words)*2)
		for i, w := range words {
			binary.LittleEndian.PutUint16(b[i*2:], uint16(w))
		}
		return b
	}

	tests := []struct {
		name    string
		payload []byte
	}{
		{"odd length", []byte{1, 0, 0}},
		{"too few points", block(1, 0, 100)},
		{"truncated", block(3, 0, 5, 15, 100)},
		{"out of range index", block(2, 0, 16, 100, 200)},
		{"unordered indices", block(2, 5, 3, 100, 200)},
		{"trailing garbage", block(2, 0, 15, 100, 200, 9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, _ := NewDecoder(ModeExtrema, format)
			out := dec.Decode(tt.payload)
			if !bytes.Equal(out, SilentChunk(format)) {
				t.Error("expected silent chunk for malformed block")
			}
			if dec.Failures() != 1 {
				t.Errorf("expected 1 failure, got %d", dec.Failures())
			}
		})
	}
}

func TestMaxPayload(t *testing.T) {
	f := Format{SampleRate: 44100, FrameCount: 2048, Channels: 1}
	if got := f.MaxPayload(ModeRaw); got != 4096 {
		t.Errorf("raw max = %d", got)
	}
	if got := f.MaxPayload(ModeInterpolate); got != 2048 {
		t.Errorf("interpolate max = %d", got)
	}
	if got := f.MaxPayload(ModeExtrema); got != 2+2048*4 {
		t.Errorf("extrema max = %d", got)
	}
}
