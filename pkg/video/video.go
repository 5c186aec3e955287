package video

import (
	"errors"
	"fmt"
	"sync"

	"github.com/icza/mjpeg"
)

// ErrEncoderUnavailable reports that a recording sink could not be
// created. It is fatal to that recording attempt only.
var ErrEncoderUnavailable = errors.New("encoder unavailable")

// Sink accepts JPEG frames for one recording.
type Sink interface {
	Add(frame []byte) error
	Close() error
}

// NewSinkFunc opens a sink at path for the given format. Sessions take a
// factory so tests can substitute a counting sink.
type NewSinkFunc func(path string, width, height int, fps float64) (Sink, error)

// Writer persists JPEG frames to an MJPEG AVI file.
type Writer struct {
	width  int
	height int
	fps    float64

	mu  sync.Mutex
	cnt int
	aw  mjpeg.AviWriter
}

func NewWriter(path string, width, height int, fps float64) (Sink, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps+0.5))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrEncoderUnavailable, path, err)
	}

	return &Writer{
		width:  width,
		height: height,
		fps:    fps,
		aw:     aw,
	}, nil
}

func (w *Writer) Add(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.aw.AddFrame(frame); err != nil {
		return err
	}
	w.cnt++

	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aw.Close()
}

func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cnt
}
