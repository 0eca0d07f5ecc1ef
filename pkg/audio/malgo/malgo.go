// Package malgo provides an audio.CaptureDevice backed by miniaudio through
// the malgo CGO bindings.
//
// miniaudio delivers periods of whatever size the backend prefers. The device
// re-chunks them into fixed frames of CaptureConfig.FrameSamples samples so
// that downstream VAD always sees frames of the configured length.
package malgo

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/kaiwa/pkg/audio"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Compile-time assertion that Device satisfies audio.CaptureDevice.
var _ audio.CaptureDevice = (*Device)(nil)

// Device is a 16-bit mono capture stream on one input device.
type Device struct {
	cfg    audio.CaptureConfig
	log    *slog.Logger
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	running atomic.Bool
	handler atomic.Pointer[audio.FrameHandler]

	// mu guards pending and frames against the capture thread.
	mu      sync.Mutex
	pending []byte
	frames  int64

	closeOnce sync.Once
}

// Option is a functional option for configuring a Device.
type Option func(*Device)

// WithLogger sets the logger used for miniaudio diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.log = l }
}

// Open initialises miniaudio and the selected capture device. The stream is
// not started until Start is called.
func Open(cfg audio.CaptureConfig, opts ...Option) (*Device, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSamples <= 0 {
		return nil, fmt.Errorf("malgo: invalid capture config: %d Hz, %d samples per frame",
			cfg.SampleRate, cfg.FrameSamples)
	}
	d := &Device{cfg: cfg, log: slog.Default()}
	for _, o := range opts {
		o(d)
	}

	ctxCfg := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
	mctx, err := malgo.InitContext(nil, ctxCfg, func(msg string) {
		d.log.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	d.ctx = mctx

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.SampleRate = uint32(cfg.SampleRate)
	devCfg.PeriodSizeInFrames = uint32(cfg.FrameSamples)
	devCfg.Alsa.NoMMap = 1

	if cfg.DeviceID != "" {
		info, err := findDevice(mctx, cfg.DeviceID)
		if err != nil {
			d.freeContext()
			return nil, err
		}
		devCfg.Capture.DeviceID = info.ID.Pointer()
	}

	dev, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{Data: d.onData})
	if err != nil {
		d.freeContext()
		return nil, fmt.Errorf("malgo: init capture device %q: %w", cfg.DeviceID, err)
	}
	d.device = dev
	return d, nil
}

// OnFrame implements audio.CaptureDevice.
func (d *Device) OnFrame(h audio.FrameHandler) {
	d.handler.Store(&h)
}

// Start implements audio.CaptureDevice.
func (d *Device) Start() error {
	if d.device == nil {
		return audio.ErrDeviceClosed
	}
	d.running.Store(true)
	if err := d.device.Start(); err != nil {
		d.running.Store(false)
		return fmt.Errorf("malgo: start capture: %w", err)
	}
	return nil
}

// Stop implements audio.CaptureDevice. A partially filled frame is discarded
// so that stale audio from before the pause never reaches the handler.
func (d *Device) Stop() error {
	if d.device == nil {
		return audio.ErrDeviceClosed
	}
	d.running.Store(false)
	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("malgo: stop capture: %w", err)
	}
	d.mu.Lock()
	d.pending = d.pending[:0]
	d.mu.Unlock()
	return nil
}

// Close implements audio.CaptureDevice.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.running.Store(false)
		if d.device != nil {
			d.device.Uninit()
			d.device = nil
		}
		d.freeContext()
	})
	return nil
}

// onData runs on the miniaudio capture thread.
func (d *Device) onData(_, in []byte, _ uint32) {
	if !d.running.Load() {
		return
	}
	hp := d.handler.Load()
	if hp == nil {
		return
	}
	h := *hp
	frameBytes := d.cfg.FrameBytes()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, in...)
	for len(d.pending) >= frameBytes {
		data := make([]byte, frameBytes)
		copy(data, d.pending[:frameBytes])
		d.pending = d.pending[frameBytes:]
		h(types.AudioFrame{
			Data:       data,
			SampleRate: d.cfg.SampleRate,
			Timestamp:  time.Duration(d.frames) * d.cfg.FrameDuration(),
		})
		d.frames++
	}
	// Compact so pending does not grow across callbacks.
	if cap(d.pending) > 4*frameBytes {
		d.pending = append([]byte(nil), d.pending...)
	}
}

func (d *Device) freeContext() {
	if d.ctx == nil {
		return
	}
	_ = d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
}

// ListInputDevices enumerates capture devices. The returned IDs are the
// indexes accepted by CaptureConfig.DeviceID. Output-only devices are not
// reported.
func ListInputDevices() ([]audio.DeviceInfo, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo: list capture devices: %w", err)
	}
	out := make([]audio.DeviceInfo, 0, len(infos))
	for i, info := range infos {
		out = append(out, audio.DeviceInfo{
			ID:        strconv.Itoa(i),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return out, nil
}

func findDevice(mctx *malgo.AllocatedContext, id string) (malgo.DeviceInfo, error) {
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 0 {
		return malgo.DeviceInfo{}, fmt.Errorf("malgo: device id %q is not a device index", id)
	}
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceInfo{}, fmt.Errorf("malgo: list capture devices: %w", err)
	}
	if idx >= len(infos) {
		return malgo.DeviceInfo{}, fmt.Errorf("malgo: device index %d out of range (%d input devices)", idx, len(infos))
	}
	return infos[idx], nil
}
