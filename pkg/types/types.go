package types

import (
	"time"
)

// Frame is one acquired image, already JPEG-compressed by the device.
type Frame struct {
	Data   []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	CapturedAt time.Time `json:"capturedAt"`
}

func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// ControlName identifies a device parameter tunable at runtime.
type ControlName string

const (
	CtrlExposure     ControlName = "exposure"
	CtrlGain         ControlName = "gain"
	CtrlWhiteBalance ControlName = "white_balance"
	CtrlBrightness   ControlName = "brightness"
	CtrlContrast     ControlName = "contrast"
)

// Control is a tagged auto-or-manual parameter value.
// Value is ignored when Auto is set.
type Control struct {
	Auto  bool  `json:"auto"`
	Value int32 `json:"value"`
}

func Manual(v int32) Control {
	return Control{Value: v}
}

func Auto() Control {
	return Control{Auto: true}
}

// Status describes one session as negotiated with the hardware.
type Status struct {
	Key       int     `json:"key"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FPS       float64 `json:"fps"`
	Recording bool    `json:"isRecording"`
	Alive     bool    `json:"isAlive"`
}

type File struct {
	Name    string    `json:"name"`
	Size    string    `json:"size"`
	ModTime time.Time `json:"modTime"`
}
