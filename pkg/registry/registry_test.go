package registry

import (
	"bytes"
	"fmt"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"camrig/pkg/camera"
	"camrig/pkg/video"
)

func synthOpener() camera.Opener {
	return func(id, width, height int, fps float64) (camera.Device, error) {
		return camera.NewSynthetic(id, width, height, fps, 0)
	}
}

func failingOpener(bad int) camera.Opener {
	return func(id, width, height int, fps float64) (camera.Device, error) {
		if id == bad {
			return nil, fmt.Errorf("%w: device %d", camera.ErrDeviceUnavailable, id)
		}
		return camera.NewSynthetic(id, width, height, fps, 0)
	}
}

func TestInitAllPartialFailure(t *testing.T) {
	r := New()
	defer r.CloseAll()

	opened := r.InitAll(failingOpener(1), []int{0, 1, 2}, 32, 24, 30)
	require.Equal(t, []int{0, 2}, opened)

	status := r.StatusAll()
	require.Len(t, status, 2)
	require.Contains(t, status, 0)
	require.Contains(t, status, 2)

	_, ok := r.Get(1)
	require.False(t, ok)
}

func TestSnapshotStableOrder(t *testing.T) {
	r := New()
	defer r.CloseAll()

	r.InitAll(synthOpener(), []int{3, 1, 2}, 32, 24, 30)

	for i := 0; i < 5; i++ {
		snap := r.Snapshot()
		require.Len(t, snap, 3)
		require.Equal(t, 1, snap[0].Key)
		require.Equal(t, 2, snap[1].Key)
		require.Equal(t, 3, snap[2].Key)
		require.Equal(t, 3, snap.Present())
	}
}

func TestBulkRecordingWritesFiles(t *testing.T) {
	r := New()
	defer r.CloseAll()

	r.InitAll(failingOpener(1), []int{0, 1, 2}, 32, 24, 10)

	dir := filepath.Join(t.TempDir(), "take-1")
	require.NoError(t, r.StartRecordingAll(dir))
	for _, st := range r.StatusAll() {
		require.True(t, st.Recording)
	}

	time.Sleep(500 * time.Millisecond)
	r.StopRecordingAll()
	r.StopRecordingAll() // idempotent

	for _, key := range []int{0, 2} {
		info, err := os.Stat(filepath.Join(dir, fmt.Sprintf("%02d.avi", key)))
		require.NoError(t, err, "missing recording for key %d", key)
		require.Greater(t, info.Size(), int64(0))
	}
	_, err := os.Stat(filepath.Join(dir, "01.avi"))
	require.True(t, os.IsNotExist(err))
}

type countingSink struct {
	mu     sync.Mutex
	frames int
	last   []byte
}

func (s *countingSink) Add(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.last = append(s.last[:0], frame...)
	return nil
}

func (s *countingSink) Close() error { return nil }

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *countingSink) lastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}

// requireColor decodes a JPEG frame and checks its center pixel against
// the expected color, within JPEG compression tolerance.
func requireColor(t *testing.T, frame []byte, want color.RGBA) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(frame))
	require.NoError(t, err)
	b := img.Bounds()
	got := color.RGBAModel.Convert(img.At(b.Dx()/2, b.Dy()/2)).(color.RGBA)
	const tol = 40
	require.InDelta(t, want.R, got.R, tol)
	require.InDelta(t, want.G, got.G, tol)
	require.InDelta(t, want.B, got.B, tol)
}

// Two independently clocked devices recorded for two seconds should each
// yield close to fps*2 samples, at their own rates.
func TestRecordingFollowsPerDeviceRate(t *testing.T) {
	if testing.Short() {
		t.Skip("two second capture")
	}

	r := New()
	defer r.CloseAll()

	devs := make(map[int]*camera.Synthetic)
	open := func(id, width, height int, fps float64) (camera.Device, error) {
		rate := 10.0
		if id == 1 {
			rate = 15.0
		}
		dev, err := camera.NewSynthetic(id, width, height, rate, 0)
		if err != nil {
			return nil, err
		}
		devs[id] = dev
		return dev, nil
	}
	opened := r.InitAll(open, []int{0, 1}, 32, 24, 30)
	require.Len(t, opened, 2)

	sinks := make(map[int]*countingSink)
	for _, key := range opened {
		s, _ := r.Get(key)
		sink := &countingSink{}
		sinks[key] = sink
		s.SetSinkFactory(func(string, int, int, float64) (video.Sink, error) {
			return sink, nil
		})
	}

	require.NoError(t, r.StartRecordingAll(t.TempDir()))
	time.Sleep(2 * time.Second)
	r.StopRecordingAll()

	require.InDelta(t, 20, sinks[0].count(), 3)
	require.InDelta(t, 30, sinks[1].count(), 4)

	// Each sink must have captured its own device, not a neighbor.
	for _, key := range opened {
		requireColor(t, sinks[key].lastFrame(), devs[key].Color())
	}
}

func TestSaveFramesAll(t *testing.T) {
	r := New()
	defer r.CloseAll()

	r.InitAll(synthOpener(), []int{0, 1}, 32, 24, 30)

	dir := t.TempDir()
	r.SaveFramesAll(dir, "snap", "jpg")

	for _, key := range []int{0, 1} {
		path := filepath.Join(dir, fmt.Sprintf("%02d", key), "snap.jpg")
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Greater(t, info.Size(), int64(0))
	}
}

func TestCloseAllEmptiesRegistry(t *testing.T) {
	r := New()
	r.InitAll(synthOpener(), []int{0, 1}, 32, 24, 30)

	require.NoError(t, r.CloseAll())
	require.Empty(t, r.StatusAll())
	require.Empty(t, r.Keys())
	require.Empty(t, r.Snapshot())
}
