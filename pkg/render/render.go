package render

import (
	"image"
	"time"
)

// Renderer displays composited preview images and reports input events.
// It is owned and driven by exactly one compositor loop at a time.
type Renderer interface {
	// Show replaces the displayed image.
	Show(img image.Image) error

	// PollEvent returns a pending input event code, waiting at most
	// timeout. A zero timeout makes it a non-blocking check.
	PollEvent(timeout time.Duration) (int, bool)

	Close() error
}
