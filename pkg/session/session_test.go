package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"camrig/pkg/camera"
	"camrig/pkg/types"
	"camrig/pkg/video"
)

func synthOpener(limit int) camera.Opener {
	return func(id, width, height int, fps float64) (camera.Device, error) {
		return camera.NewSynthetic(id, width, height, fps, limit)
	}
}

type countingSink struct {
	mu     sync.Mutex
	frames int
	closes int
}

func (s *countingSink) Add(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(frame) == 0 {
		return errors.New("empty frame")
	}
	s.frames++
	return nil
}

func (s *countingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *countingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.closes
}

func TestOpenProducesFirstFrame(t *testing.T) {
	s, err := Open(0, synthOpener(0), 64, 48, 30)
	require.NoError(t, err)
	defer s.Close()

	frame, ok := s.Latest()
	require.True(t, ok)
	require.False(t, frame.Empty())
	require.Equal(t, 64, frame.Width)
	require.Equal(t, 48, frame.Height)

	st := s.Status()
	require.True(t, st.Alive)
	require.False(t, st.Recording)
	require.Equal(t, 30.0, st.FPS)
}

func TestOpenFailure(t *testing.T) {
	failing := func(id, width, height int, fps float64) (camera.Device, error) {
		return nil, fmt.Errorf("%w: no such device", camera.ErrDeviceUnavailable)
	}
	_, err := Open(7, failing, 64, 48, 30)
	require.ErrorIs(t, err, camera.ErrDeviceUnavailable)
}

func TestLatestNeverTorn(t *testing.T) {
	s, err := Open(1, synthOpener(0), 32, 24, 60)
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	deadline := time.Now().Add(300 * time.Millisecond)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				frame, ok := s.Latest()
				if !ok {
					t.Error("slot went empty while running")
					return
				}
				// A torn frame would not decode as a complete JPEG;
				// check the SOI/EOI markers instead of decoding in a
				// hot loop.
				if frame.Data[0] != 0xff || frame.Data[1] != 0xd8 {
					t.Error("frame missing JPEG SOI marker")
					return
				}
				end := frame.Data[len(frame.Data)-2:]
				if end[0] != 0xff || end[1] != 0xd9 {
					t.Error("frame missing JPEG EOI marker")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestEndOfStreamStopsSessionOnly(t *testing.T) {
	s, err := Open(2, synthOpener(3), 32, 24, 100)
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return !s.Alive() },
		2*time.Second, 10*time.Millisecond)

	// The last acquired frame stays readable; controls are rejected.
	_, ok := s.Latest()
	require.True(t, ok)
	err = s.SetControl(types.CtrlBrightness, types.Manual(10))
	require.ErrorIs(t, err, ErrNotActive)
}

func TestRecordingSamplesAtActualRate(t *testing.T) {
	s, err := Open(0, synthOpener(0), 32, 24, 20)
	require.NoError(t, err)
	defer s.Close()

	sink := &countingSink{}
	s.SetSinkFactory(func(path string, width, height int, fps float64) (video.Sink, error) {
		require.Equal(t, 32, width)
		require.Equal(t, 24, height)
		require.Equal(t, 20.0, fps)
		return sink, nil
	})

	require.NoError(t, s.StartRecording("ignored.avi"))
	require.True(t, s.Recording())
	time.Sleep(time.Second)
	s.StopRecording()

	frames, closes := sink.counts()
	require.Equal(t, 1, closes)
	// 20 fps over one second, with slack for scheduling jitter.
	require.InDelta(t, 20, frames, 4)
}

func TestStopRecordingIdempotent(t *testing.T) {
	s, err := Open(0, synthOpener(0), 32, 24, 30)
	require.NoError(t, err)
	defer s.Close()

	sink := &countingSink{}
	s.SetSinkFactory(func(string, int, int, float64) (video.Sink, error) {
		return sink, nil
	})

	require.NoError(t, s.StartRecording("ignored.avi"))
	time.Sleep(100 * time.Millisecond)
	s.StopRecording()
	s.StopRecording()

	_, closes := sink.counts()
	require.Equal(t, 1, closes)
	require.False(t, s.Recording())
}

func TestStartRecordingTwice(t *testing.T) {
	s, err := Open(0, synthOpener(0), 32, 24, 30)
	require.NoError(t, err)
	defer s.Close()

	s.SetSinkFactory(func(string, int, int, float64) (video.Sink, error) {
		return &countingSink{}, nil
	})
	require.NoError(t, s.StartRecording("a.avi"))
	require.ErrorIs(t, s.StartRecording("b.avi"), ErrRecording)
	s.StopRecording()
}

func TestEncoderUnavailable(t *testing.T) {
	s, err := Open(0, synthOpener(0), 32, 24, 30)
	require.NoError(t, err)
	defer s.Close()

	s.SetSinkFactory(func(string, int, int, float64) (video.Sink, error) {
		return nil, fmt.Errorf("%w: disk full", video.ErrEncoderUnavailable)
	})
	err = s.StartRecording("a.avi")
	require.ErrorIs(t, err, video.ErrEncoderUnavailable)

	// The failed attempt must not take the session down.
	require.True(t, s.Alive())
	require.False(t, s.Recording())
}

type failingSink struct {
	mu     sync.Mutex
	after  int
	frames int
	closes int
}

func (s *failingSink) Add([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames >= s.after {
		return errors.New("sink write failed")
	}
	s.frames++
	return nil
}

func (s *failingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func TestSinkFailureEndsRecording(t *testing.T) {
	s, err := Open(0, synthOpener(0), 32, 24, 100)
	require.NoError(t, err)
	defer s.Close()

	sink := &failingSink{after: 2}
	s.SetSinkFactory(func(string, int, int, float64) (video.Sink, error) {
		return sink, nil
	})
	require.NoError(t, s.StartRecording("a.avi"))

	// The loop dies on the failed write and must stop reporting as a
	// recording.
	require.Eventually(t, func() bool { return !s.Recording() },
		2*time.Second, 10*time.Millisecond)
	require.False(t, s.Status().Recording)

	sink.mu.Lock()
	closes := sink.closes
	sink.mu.Unlock()
	require.Equal(t, 1, closes)

	// The session itself keeps running and can start a fresh recording.
	require.True(t, s.Alive())
	ok := &countingSink{}
	s.SetSinkFactory(func(string, int, int, float64) (video.Sink, error) {
		return ok, nil
	})
	require.NoError(t, s.StartRecording("b.avi"))
	require.True(t, s.Recording())
	s.StopRecording()
}

// stuckDevice yields one frame, then blocks forever ignoring
// cancellation, like hardware wedged inside a driver call.
type stuckDevice struct {
	dev   camera.Device
	first bool
	mu    sync.Mutex
}

func (d *stuckDevice) ReadFrame(ctx context.Context) (types.Frame, error) {
	d.mu.Lock()
	if !d.first {
		d.first = true
		d.mu.Unlock()
		return d.dev.ReadFrame(ctx)
	}
	d.mu.Unlock()
	select {}
}

func (d *stuckDevice) SetControl(name types.ControlName, c types.Control) error {
	return d.dev.SetControl(name, c)
}

func (d *stuckDevice) Negotiated() (int, int, float64) {
	return d.dev.Negotiated()
}

func (d *stuckDevice) Release() error {
	return d.dev.Release()
}

func TestCloseShutdownTimeout(t *testing.T) {
	old := joinTimeout
	joinTimeout = 100 * time.Millisecond
	defer func() { joinTimeout = old }()

	open := func(id, width, height int, fps float64) (camera.Device, error) {
		dev, err := camera.NewSynthetic(id, width, height, fps, 0)
		if err != nil {
			return nil, err
		}
		return &stuckDevice{dev: dev}, nil
	}
	s, err := Open(0, open, 32, 24, 30)
	require.NoError(t, err)

	err = s.Close()
	require.ErrorIs(t, err, ErrShutdownTimeout)
}

func TestCloseIdempotent(t *testing.T) {
	s, err := Open(0, synthOpener(0), 32, 24, 30)
	require.NoError(t, err)

	sink := &countingSink{}
	s.SetSinkFactory(func(string, int, int, float64) (video.Sink, error) {
		return sink, nil
	})
	require.NoError(t, s.StartRecording("a.avi"))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, closes := sink.counts()
	require.Equal(t, 1, closes)
	require.False(t, s.Alive())
	_, ok := s.Latest()
	require.False(t, ok)
}
