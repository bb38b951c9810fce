// Package audio decodes synthesis encoding identifiers and prepares synthesized
// bytes for publishing.
package audio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Container is the audio payload type.
type Container string

const (
	ContainerMP3  Container = "mp3"
	ContainerPCM  Container = "pcm"
	ContainerWAV  Container = "wav"
	ContainerULaw Container = "ulaw"
	ContainerOpus Container = "opus"
)

// Format describes synthesized audio. BitrateKbps is zero for uncompressed output.
type Format struct {
	Encoding    string
	Container   Container
	SampleRate  int
	BitrateKbps int
}

// ParseEncoding decodes identifiers of the form <container>_<sampleRate>[_<kbps>],
// e.g. mp3_44100_128 or pcm_16000.
func ParseEncoding(id string) (Format, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(id)), "_")
	if len(parts) < 2 || len(parts) > 3 {
		return Format{}, fmt.Errorf("unsupported encoding %q", id)
	}
	f := Format{Encoding: id, Container: Container(parts[0])}
	switch f.Container {
	case ContainerMP3, ContainerPCM, ContainerULaw, ContainerOpus:
	default:
		return Format{}, fmt.Errorf("unsupported container in encoding %q", id)
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil || rate <= 0 {
		return Format{}, fmt.Errorf("invalid sample rate in encoding %q", id)
	}
	f.SampleRate = rate
	if len(parts) == 3 {
		kbps, err := strconv.Atoi(parts[2])
		if err != nil || kbps <= 0 {
			return Format{}, fmt.Errorf("invalid bitrate in encoding %q", id)
		}
		f.BitrateKbps = kbps
	}
	if f.Container == ContainerMP3 && f.BitrateKbps == 0 {
		return Format{}, fmt.Errorf("mp3 encoding %q needs a bitrate", id)
	}
	return f, nil
}

// Extension is the file extension for the format, without the dot.
func (f Format) Extension() string {
	switch f.Container {
	case ContainerPCM:
		return "wav"
	case ContainerULaw:
		return "ulaw"
	case "":
		return "bin"
	default:
		return string(f.Container)
	}
}

func (f Format) ContentType() string {
	switch f.Container {
	case ContainerMP3:
		return "audio/mpeg"
	case ContainerPCM, ContainerWAV:
		return "audio/wav"
	case ContainerOpus:
		return "audio/ogg"
	case ContainerULaw:
		return "audio/basic"
	default:
		return "application/octet-stream"
	}
}

// EstimateDuration infers playback length from payload size. PCM is assumed
// mono 16-bit, ulaw mono 8-bit. Returns zero when the format carries no rate
// information.
func EstimateDuration(f Format, size int) time.Duration {
	if size <= 0 {
		return 0
	}
	var bytesPerSecond float64
	switch {
	case f.BitrateKbps > 0:
		bytesPerSecond = float64(f.BitrateKbps) * 1000 / 8
	case f.Container == ContainerPCM && f.SampleRate > 0:
		bytesPerSecond = float64(f.SampleRate * 2)
	case f.Container == ContainerULaw && f.SampleRate > 0:
		bytesPerSecond = float64(f.SampleRate)
	default:
		return 0
	}
	return time.Duration(float64(size) / bytesPerSecond * float64(time.Second))
}

// Prepare converts raw synthesis output into a publishable payload. Raw PCM is
// wrapped in a WAV container; other formats pass through. The returned format
// describes the returned bytes.
func Prepare(data []byte, f Format) ([]byte, Format, error) {
	if f.Container != ContainerPCM {
		return data, f, nil
	}
	wav, err := EncodeWAV(data, f.SampleRate)
	if err != nil {
		return nil, Format{}, fmt.Errorf("wrap pcm: %w", err)
	}
	out := f
	out.Container = ContainerWAV
	return wav, out, nil
}
