package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"camrig/pkg/types"
)

// V4L2 control ids (videodev2.h). go4vl takes raw ids here, the same
// values the kernel headers use.
const (
	cidBrightness       v4l2.CtrlID = 0x00980900
	cidContrast         v4l2.CtrlID = 0x00980901
	cidAutoWhiteBalance v4l2.CtrlID = 0x0098090c
	cidAutoGain         v4l2.CtrlID = 0x00980912
	cidGain             v4l2.CtrlID = 0x00980913
	cidWBTemperature    v4l2.CtrlID = 0x0098091a
	cidExposureAuto     v4l2.CtrlID = 0x009a0901
	cidExposureAbsolute v4l2.CtrlID = 0x009a0902
)

// exposureAuto menu values.
const (
	exposureManual           = 1
	exposureAperturePriority = 3
)

type v4lDevice struct {
	dev    *device.Device
	cancel context.CancelFunc
	frames <-chan []byte

	width  int
	height int
	fps    float64
}

// OpenV4L opens /dev/video<id> in JPEG format. The returned device
// reports the format the driver actually selected, which may differ from
// the request.
func OpenV4L(id, width, height int, fps float64) (Device, error) {
	path := fmt.Sprintf("/dev/video%d", id)
	dev, err := device.Open(
		path,
		device.WithBufferSize(1),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtJPEG,
			Width:       uint32(width),
			Height:      uint32(height),
		}),
		device.WithFPS(uint32(fps)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %s", ErrDeviceUnavailable, path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		_ = dev.Close()
		return nil, fmt.Errorf("%w: start %s: %s", ErrDeviceUnavailable, path, err)
	}

	d := &v4lDevice{
		dev:    dev,
		cancel: cancel,
		frames: dev.GetOutput(),
		width:  width,
		height: height,
		fps:    fps,
	}
	d.readBackFormat()
	logger.Infof("opened %s as %d*%d@%.1f", path, d.width, d.height, d.fps)

	return d, nil
}

func (d *v4lDevice) readBackFormat() {
	if pf, err := d.dev.GetPixFormat(); err == nil {
		d.width = int(pf.Width)
		d.height = int(pf.Height)
	} else {
		logger.Warnf("read pix format: %s", err)
	}
	if rate, err := d.dev.GetFrameRate(); err == nil && rate > 0 {
		d.fps = float64(rate)
	} else if err != nil {
		logger.Warnf("read frame rate: %s", err)
	}
}

func (d *v4lDevice) ReadFrame(ctx context.Context) (types.Frame, error) {
	select {
	case data, ok := <-d.frames:
		if !ok {
			return types.Frame{}, ErrEndOfStream
		}
		// go4vl recycles its buffers, keep our own copy.
		frame := types.Frame{
			Data:       append([]byte(nil), data...),
			Width:      d.width,
			Height:     d.height,
			CapturedAt: time.Now(),
		}
		return frame, nil
	case <-ctx.Done():
		return types.Frame{}, ctx.Err()
	}
}

func (d *v4lDevice) SetControl(name types.ControlName, ctrl types.Control) error {
	switch name {
	case types.CtrlExposure:
		if ctrl.Auto {
			return v4l2.SetControlValue(d.dev.Fd(), cidExposureAuto, exposureAperturePriority)
		}
		if err := v4l2.SetControlValue(d.dev.Fd(), cidExposureAuto, exposureManual); err != nil {
			return err
		}
		return v4l2.SetControlValue(d.dev.Fd(), cidExposureAbsolute, v4l2.CtrlValue(ctrl.Value))
	case types.CtrlGain:
		if ctrl.Auto {
			return v4l2.SetControlValue(d.dev.Fd(), cidAutoGain, 1)
		}
		if err := v4l2.SetControlValue(d.dev.Fd(), cidAutoGain, 0); err != nil {
			logger.Warnf("disable auto gain: %s", err)
		}
		return v4l2.SetControlValue(d.dev.Fd(), cidGain, v4l2.CtrlValue(ctrl.Value))
	case types.CtrlWhiteBalance:
		if ctrl.Auto {
			return v4l2.SetControlValue(d.dev.Fd(), cidAutoWhiteBalance, 1)
		}
		if err := v4l2.SetControlValue(d.dev.Fd(), cidAutoWhiteBalance, 0); err != nil {
			return err
		}
		return v4l2.SetControlValue(d.dev.Fd(), cidWBTemperature, v4l2.CtrlValue(ctrl.Value))
	case types.CtrlBrightness:
		return v4l2.SetControlValue(d.dev.Fd(), cidBrightness, v4l2.CtrlValue(ctrl.Value))
	case types.CtrlContrast:
		return v4l2.SetControlValue(d.dev.Fd(), cidContrast, v4l2.CtrlValue(ctrl.Value))
	default:
		return fmt.Errorf("unknown control %q", name)
	}
}

func (d *v4lDevice) Negotiated() (int, int, float64) {
	return d.width, d.height, d.fps
}

func (d *v4lDevice) Release() error {
	d.cancel()
	// let the go4vl stream goroutine observe the cancel before Close
	time.Sleep(100 * time.Millisecond)
	return d.dev.Close()
}
