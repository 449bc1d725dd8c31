package capture

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Device is a microphone stream. onData receives S16LE frames on the
// device's own thread and must not block or retain the slice.
type Device interface {
	Start(onData func(frame []byte)) error
	Stop() error
	// Close releases the device handle. It is safe after a failed Start.
	Close() error
}

// DeviceFactory opens a capture device for format.
type DeviceFactory func(format Format) (Device, error)

// MalgoDevice captures from the default input through miniaudio.
type MalgoDevice struct {
	format Format

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// NewMalgoDevice initializes a miniaudio context for the default backend.
func NewMalgoDevice(format Format) (Device, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoDevice{format: format, ctx: ctx}, nil
}

func (d *MalgoDevice) Start(onData func(frame []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return fmt.Errorf("audio context closed")
	}
	if d.device != nil {
		return fmt.Errorf("device already started")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(d.format.Channels)
	deviceConfig.SampleRate = uint32(d.format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			onData(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(d.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}
	d.device = device
	return nil
}

func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return nil
	}
	return d.device.Stop()
}

func (d *MalgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	return err
}
