// Package recorder captures the default audio input device to a WAV file
// for the duration of a playback, optionally symlinking it into a
// secondary directory.
package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

type Recorder struct {
	storagePath string
	linkPath    string
	log         zerolog.Logger

	mu     sync.Mutex
	active *recording
}

type recording struct {
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	file    *os.File
	encoder *wav.Encoder
}

func New(storagePath, linkPath string, log zerolog.Logger) *Recorder {
	return &Recorder{storagePath: storagePath, linkPath: linkPath, log: log}
}

// fallbackChannels/fallbackSampleRate are used when the default capture
// device cannot be enumerated, matching common farm-site hardware.
const (
	fallbackChannels   = 1
	fallbackSampleRate = 44100
)

// probeDefaultCaptureFormat queries the system's default capture device for
// its native channel count and sample rate, falling back to a conservative
// mono/44.1kHz default if enumeration fails. The capture format itself stays
// pinned to S16 (see deviceConfig.Capture.Format in Start): miniaudio
// resamples/converts transparently, and the WAV encoder only writes 16-bit
// PCM.
func probeDefaultCaptureFormat(ctx *malgo.AllocatedContext, log zerolog.Logger) (channels, sampleRate uint32) {
	channels, sampleRate = fallbackChannels, fallbackSampleRate

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil || len(infos) == 0 {
		log.Warn().Err(err).Msg("recorder: failed to enumerate capture devices, using fallback format")
		return
	}

	id := infos[0].ID
	for _, info := range infos {
		if info.IsDefault > 0 {
			id = info.ID
			break
		}
	}

	full, err := ctx.DeviceInfo(malgo.Capture, id, malgo.Shared)
	if err != nil {
		log.Warn().Err(err).Msg("recorder: failed to query default capture device info, using fallback format")
		return
	}
	if full.MinChannels > 0 {
		channels = uint32(full.MinChannels)
	}
	if full.MinSampleRate > 0 {
		sampleRate = uint32(full.MinSampleRate)
	}
	return
}

// Start begins capturing the default input device to "<storagePath>/<id>.wav".
// A symlink is additionally created under linkPath when configured.
func (r *Recorder) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return fmt.Errorf("recorder: a recording is already active")
	}

	filename := id + ".wav"
	path := filepath.Join(r.storagePath, filename)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recorder: create %s: %w", path, err)
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) { r.log.Debug().Msg(msg) })
	if err != nil {
		f.Close()
		return fmt.Errorf("recorder: init audio context: %w", err)
	}

	channels, sampleRate := probeDefaultCaptureFormat(malgoCtx, r.log)
	enc := wav.NewEncoder(f, int(sampleRate), 16, int(channels), 1)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = sampleRate

	onRecvFrames := func(_ []byte, inputSamples []byte, frameCount uint32) {
		ints := make([]int, len(inputSamples)/2)
		for i := range ints {
			lo := int16(inputSamples[2*i])
			hi := int16(inputSamples[2*i+1])
			ints[i] = int(lo | hi<<8)
		}
		_ = enc.Write(&audio.IntBuffer{
			Format:         &audio.Format{NumChannels: int(channels), SampleRate: int(sampleRate)},
			Data:           ints,
			SourceBitDepth: 16,
		})
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		malgoCtx.Uninit() //nolint:errcheck
		f.Close()
		return fmt.Errorf("recorder: init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit() //nolint:errcheck
		f.Close()
		return fmt.Errorf("recorder: start capture device: %w", err)
	}

	r.active = &recording{ctx: malgoCtx, device: device, file: f, encoder: enc}

	if r.linkPath != "" {
		linkTarget := filepath.Join(r.linkPath, filename)
		if err := os.Symlink(path, linkTarget); err != nil {
			r.log.Warn().Err(err).Str("link", linkTarget).Msg("recorder: failed to create symlink")
		}
	}

	return nil
}

// Stop finalizes and closes the active recording, if any. Safe to call
// when no recording is active.
func (r *Recorder) Stop(_ context.Context) error {
	r.mu.Lock()
	rec := r.active
	r.active = nil
	r.mu.Unlock()

	if rec == nil {
		return nil
	}

	rec.device.Stop() //nolint:errcheck
	rec.device.Uninit()
	rec.ctx.Uninit() //nolint:errcheck

	err := rec.encoder.Close()
	if closeErr := rec.file.Close(); err == nil {
		err = closeErr
	}
	return err
}
