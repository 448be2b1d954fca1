// Package encoder converts captured audio samples into the bytes that go
// over the wire: float samples to 16-bit PCM, PCM to a WAV container, and
// byte buffers to the base64 transport encoding used by the extraction
// endpoint. All functions are deterministic and total over numeric input.
package encoder

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	FrameSize     = 4096

	wavHeaderSize = 44
)

// PCM16FromFloat32 converts normalized float samples to signed 16-bit PCM.
// Samples outside [-1, 1] are clamped; non-finite samples become silence.
func PCM16FromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		f := float64(s)
		if math.IsNaN(f) {
			continue
		}
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		if f >= 0 {
			out[i] = int16(f * 32767)
		} else {
			out[i] = int16(f * 32768)
		}
	}
	return out
}

// WAV frames the accumulated PCM chunks as a canonical 44-byte-header
// RIFF/WAVE buffer (16 kHz mono, 16-bit integer PCM, no extensions).
func WAV(chunks [][]int16) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	buf := make([]byte, wavHeaderSize+total*2)
	writeWAVHeader(buf, total*2)
	pos := wavHeaderSize
	for _, c := range chunks {
		for _, s := range c {
			binary.LittleEndian.PutUint16(buf[pos:], uint16(s))
			pos += 2
		}
	}
	return buf
}

// WAVFromBytes frames raw little-endian 16-bit PCM bytes as WAV. Used by
// the endpoint, which receives the payload as bytes rather than samples.
// A payload that already carries a RIFF header is canonicalized rather
// than double-framed, so WAVFromBytes(WAVFromBytes(b)) == WAVFromBytes(b).
func WAVFromBytes(pcm []byte) []byte {
	if len(pcm) >= wavHeaderSize && string(pcm[0:4]) == "RIFF" && string(pcm[8:12]) == "WAVE" {
		pcm = pcm[wavHeaderSize:]
	}
	buf := make([]byte, wavHeaderSize+len(pcm))
	writeWAVHeader(buf, len(pcm))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

func writeWAVHeader(buf []byte, dataLen int) {
	le := binary.LittleEndian
	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:], 16) // PCM fmt chunk size
	le.PutUint16(buf[20:], 1)  // integer PCM
	le.PutUint16(buf[22:], Channels)
	le.PutUint32(buf[24:], SampleRate)
	le.PutUint32(buf[28:], SampleRate*Channels*BitsPerSample/8)
	le.PutUint16(buf[32:], Channels*BitsPerSample/8)
	le.PutUint16(buf[34:], BitsPerSample)
	copy(buf[36:40], "data")
	le.PutUint32(buf[40:], uint32(dataLen))
}

// EncodeTransport encodes bytes for the JSON request body.
func EncodeTransport(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeTransport reverses EncodeTransport.
func DecodeTransport(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
