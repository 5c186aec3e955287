package camera

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"camrig/pkg/types"
	"camrig/pkg/utils"
)

var (
	// ErrDeviceUnavailable reports that a device could not be opened or
	// failed to negotiate a format.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrEndOfStream reports that a device stopped delivering frames.
	// The acquisition loop treats it as normal termination.
	ErrEndOfStream = errors.New("end of stream")
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Device is one opened capture source. Frames are delivered on demand,
// at whatever rate the hardware sustains.
type Device interface {
	// ReadFrame blocks until the next frame is available. It returns
	// ErrEndOfStream (or the context error) once the device stops
	// producing; any error is terminal for the stream.
	ReadFrame(ctx context.Context) (types.Frame, error)

	// SetControl forwards a parameter change to the hardware. There is
	// no guarantee the device honors the requested value.
	SetControl(name types.ControlName, ctrl types.Control) error

	// Negotiated reports the actual width, height and frame rate the
	// device settled on. Requested values are advisory only.
	Negotiated() (width, height int, fps float64)

	Release() error
}

// Opener opens the device with the given logical id, requesting the given
// format. Implementations wrap ErrDeviceUnavailable on failure.
type Opener func(id, width, height int, fps float64) (Device, error)
