package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
	"time"

	"camrig/pkg/types"
)

var palette = []color.RGBA{
	{R: 0xff, A: 0xff},
	{G: 0xff, A: 0xff},
	{B: 0xff, A: 0xff},
	{R: 0xff, G: 0xff, A: 0xff},
	{R: 0xff, B: 0xff, A: 0xff},
	{G: 0xff, B: 0xff, A: 0xff},
}

// Synthetic is a clocked source of solid-color JPEG frames. It stands in
// for real hardware in tests and in rig dry runs.
type Synthetic struct {
	id     int
	width  int
	height int
	fps    float64
	period time.Duration

	frame []byte
	color color.RGBA

	mu       sync.Mutex
	next     time.Time
	controls map[types.ControlName]types.Control
	produced int
	limit    int

	released chan struct{}
	relOnce  sync.Once
}

// OpenSynthetic implements Opener. The frame color is picked from a fixed
// palette by id.
func OpenSynthetic(id, width, height int, fps float64) (Device, error) {
	return NewSynthetic(id, width, height, fps, 0)
}

// NewSynthetic builds a synthetic device. limit > 0 makes the stream end
// after that many frames.
func NewSynthetic(id, width, height int, fps float64, limit int) (*Synthetic, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("%w: bad synthetic format %d*%d@%.1f", ErrDeviceUnavailable, width, height, fps)
	}
	c := palette[((id%len(palette))+len(palette))%len(palette)]

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("%w: encode synthetic frame: %s", ErrDeviceUnavailable, err)
	}

	return &Synthetic{
		id:       id,
		width:    width,
		height:   height,
		fps:      fps,
		period:   time.Duration(float64(time.Second) / fps),
		frame:    buf.Bytes(),
		color:    c,
		controls: make(map[types.ControlName]types.Control),
		limit:    limit,
		released: make(chan struct{}),
	}, nil
}

func (s *Synthetic) ReadFrame(ctx context.Context) (types.Frame, error) {
	s.mu.Lock()
	if s.limit > 0 && s.produced >= s.limit {
		s.mu.Unlock()
		return types.Frame{}, ErrEndOfStream
	}
	now := time.Now()
	if s.next.IsZero() || s.next.Before(now.Add(-s.period)) {
		s.next = now
	}
	deadline := s.next
	s.next = s.next.Add(s.period)
	s.mu.Unlock()

	if wait := time.Until(deadline); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.released:
			return types.Frame{}, ErrEndOfStream
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		}
	} else {
		select {
		case <-s.released:
			return types.Frame{}, ErrEndOfStream
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	s.produced++
	s.mu.Unlock()

	return types.Frame{
		Data:       s.frame,
		Width:      s.width,
		Height:     s.height,
		CapturedAt: time.Now(),
	}, nil
}

func (s *Synthetic) SetControl(name types.ControlName, ctrl types.Control) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls[name] = ctrl
	return nil
}

// Control reports the last value set for name, for inspection in tests.
func (s *Synthetic) Control(name types.ControlName) (types.Control, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.controls[name]
	return c, ok
}

// Color reports the solid fill of every produced frame.
func (s *Synthetic) Color() color.RGBA {
	return s.color
}

// Produced reports how many frames have been read so far.
func (s *Synthetic) Produced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.produced
}

func (s *Synthetic) Negotiated() (int, int, float64) {
	return s.width, s.height, s.fps
}

func (s *Synthetic) Release() error {
	s.relOnce.Do(func() {
		close(s.released)
	})
	return nil
}
