package sarvam

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// wavClip is the format and sample data of one PCM WAV file.
type wavClip struct {
	format []byte
	data   []byte
}

func parseWAV(raw []byte) (wavClip, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return wavClip{}, errors.New("not a RIFF/WAVE file")
	}
	var clip wavClip
	for pos := 12; pos+8 <= len(raw); {
		id := string(raw[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		start := pos + 8
		end := min(start+size, len(raw))
		switch id {
		case "fmt ":
			clip.format = raw[start:end]
		case "data":
			clip.data = raw[start:end]
		}
		pos = end + size%2
	}
	if clip.format == nil || clip.data == nil {
		return wavClip{}, errors.New("wav file missing fmt or data chunk")
	}
	return clip, nil
}

// JoinWAV concatenates PCM WAV files that share one format into a single
// file. A lone input is returned unchanged.
func JoinWAV(parts [][]byte) ([]byte, error) {
	switch len(parts) {
	case 0:
		return nil, errors.New("no audio to join")
	case 1:
		return parts[0], nil
	}
	var (
		format []byte
		data   bytes.Buffer
	)
	for i, part := range parts {
		clip, err := parseWAV(part)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		if format == nil {
			format = clip.format
		} else if !bytes.Equal(format, clip.format) {
			return nil, fmt.Errorf("part %d: audio format differs from part 0", i)
		}
		data.Write(clip.data)
	}

	var out bytes.Buffer
	riffSize := 4 + (8 + len(format)) + (8 + data.Len())
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(riffSize))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	_ = binary.Write(&out, binary.LittleEndian, uint32(len(format)))
	out.Write(format)
	out.WriteString("data")
	_ = binary.Write(&out, binary.LittleEndian, uint32(data.Len()))
	out.Write(data.Bytes())
	return out.Bytes(), nil
}
