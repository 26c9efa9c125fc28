package audioio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrInvalidWAV is returned by DecodeWAV when the input isn't a minimal
// PCM16 mono WAV container of the shape EncodeWAV produces.
var ErrInvalidWAV = errors.New("audioio: invalid wav data")

// EncodeWAV wraps raw mono s16le PCM in a minimal WAV container, used when
// handing recordings to a single-shot recognizer that expects a file.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
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

// DecodeWAV parses a RIFF/WAVE container holding mono PCM16 data (the
// shape EncodeWAV produces) and returns the raw sample bytes and the
// stream's sample rate. The turn controller uses it to turn a
// synthesizer's encoded "wav" response back into samples the playback
// engine can enqueue.
func DecodeWAV(data []byte) (pcm []byte, sampleRate int, err error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrInvalidWAV
	}

	pos := 12
	var rate uint32
	var channels uint16
	var bitsPerSample uint16

	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		body := pos + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return nil, 0, ErrInvalidWAV
			}
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			rate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
		case "data":
			end := body + int(chunkSize)
			if end > len(data) {
				end = len(data)
			}
			pcm = data[body:end]
		}

		pos = body + int(chunkSize)
		if chunkSize%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if pcm == nil || rate == 0 {
		return nil, 0, ErrInvalidWAV
	}
	if channels != 1 || bitsPerSample != 16 {
		return nil, 0, ErrInvalidWAV
	}

	return pcm, int(rate), nil
}
