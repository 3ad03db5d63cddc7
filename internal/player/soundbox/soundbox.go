// Package soundbox drives the local loudspeaker: it decodes a WAV media
// file and repeats it on the default playback device for a configured
// number of iterations, with a gap between each, cancelable mid-loop.
package soundbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

// Loop controls how many times a media file repeats and the gap between
// repetitions.
type Loop struct {
	Times uint32
	Gap   time.Duration
}

type Player struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Player {
	return &Player{log: log}
}

// Play decodes mediaPath and plays it on the default output device, Loop
// times times with Loop.Gap between each. Cancellation is entirely
// ctx-driven: the caller cancels ctx to stop playback mid-loop.
func (p *Player) Play(ctx context.Context, id, mediaPath string, loop Loop) error {
	pcm, format, err := decodeWAV(mediaPath)
	if err != nil {
		return fmt.Errorf("soundbox: decode %s: %w", mediaPath, err)
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) { p.log.Debug().Msg(msg) })
	if err != nil {
		return fmt.Errorf("soundbox: init audio context: %w", err)
	}
	defer malgoCtx.Uninit() //nolint:errcheck

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.channels)
	deviceConfig.SampleRate = uint32(format.sampleRate)

	var cursor int
	onSendFrames := func(outputSamples, _ []byte, frameCount uint32) {
		remaining := len(pcm) - cursor
		n := int(frameCount) * int(format.channels) * 2
		if n > remaining {
			n = remaining
		}
		if n > 0 {
			copy(outputSamples, pcm[cursor:cursor+n])
			cursor += n
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSendFrames,
	})
	if err != nil {
		return fmt.Errorf("soundbox: init playback device: %w", err)
	}
	defer device.Uninit()

	for i := uint32(0); i < loop.Times; i++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		cursor = 0
		if err := device.Start(); err != nil {
			return fmt.Errorf("soundbox: start playback device: %w", err)
		}
		if !p.waitForBuffer(ctx, &cursor, len(pcm)) {
			device.Stop() //nolint:errcheck
			return nil
		}
		device.Stop() //nolint:errcheck

		if i+1 < loop.Times {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(loop.Gap):
			}
		}
	}
	return nil
}

// waitForBuffer polls cursor until the whole buffer has been consumed or
// ctx is canceled. malgo's callback runs on its own goroutine; this just
// gives Play something to block on during playback.
func (p *Player) waitForBuffer(ctx context.Context, cursor *int, total int) bool {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if *cursor >= total {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

type pcmFormat struct {
	channels   int
	sampleRate int
}

func decodeWAV(path string) ([]byte, pcmFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pcmFormat{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, pcmFormat{}, err
	}

	pcm := make([]byte, 0, len(buf.Data)*2)
	for _, sample := range buf.Data {
		s := int16(sample)
		pcm = append(pcm, byte(s), byte(s>>8))
	}

	return pcm, pcmFormat{channels: buf.Format.NumChannels, sampleRate: buf.Format.SampleRate}, nil
}
