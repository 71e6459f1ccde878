// Package audio holds small WAV container helpers: NewWavBuffer wraps PCM
// for the Groq and OpenAI batch STT adapters, and ExtractPCM recovers the
// raw payload from a WAV file (used by tests; the audio manager does not
// import this package).
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// NewWavBuffer wraps raw 16-bit mono PCM in a minimal WAV container.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// ErrNoDataChunk is returned by ExtractPCM when the input isn't a
// well-formed WAV container with a "data" chunk.
var ErrNoDataChunk = errors.New("audio: no data chunk found in wav buffer")

// ExtractPCM strips a WAV header by walking RIFF sub-chunks until it
// finds "data", per spec.md §4.3's background-buffer loading contract
// ("already payload-decoded; header stripped via WAV data chunk
// search"). Returns the raw PCM payload.
func ExtractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, ErrNoDataChunk
	}

	pos := 12
	for pos+8 <= len(wav) {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		dataStart := pos + 8

		if chunkID == "data" {
			end := dataStart + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[dataStart:end], nil
		}

		// chunks are word-aligned
		advance := chunkSize
		if advance%2 == 1 {
			advance++
		}
		pos = dataStart + advance
	}
	return nil, ErrNoDataChunk
}
