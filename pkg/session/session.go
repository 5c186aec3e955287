package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"camrig/pkg/camera"
	"camrig/pkg/types"
	"camrig/pkg/utils"
	imageutil "camrig/pkg/utils/image"
	"camrig/pkg/video"
)

var (
	// ErrNotActive reports an operation on a session that was never
	// opened or has been closed.
	ErrNotActive = errors.New("session not active")

	// ErrRecording reports a recording start while one is running.
	ErrRecording = errors.New("already recording")

	// ErrShutdownTimeout reports that a cooperative stop did not
	// complete within the bounded join.
	ErrShutdownTimeout = errors.New("shutdown timeout")
)

const firstFrameTimeout = 5 * time.Second

// joinTimeout bounds the wait for the acquisition loop on close.
// Variable so tests can tighten it.
var joinTimeout = 5 * time.Second

// Session owns one capture device. A background acquisition loop keeps a
// single-slot latest-frame buffer fresh; readers always observe the most
// recently completed write, never a backlog.
type Session struct {
	key    int
	dev    camera.Device
	width  int
	height int
	fps    float64

	// frameMu guards only the latest slot. It is the one primitive
	// shared between the acquisition loop and readers.
	frameMu sync.Mutex
	latest  types.Frame

	stateMu sync.Mutex
	closed  bool
	rec     *recorder
	newSink video.NewSinkFunc

	cancel     context.CancelFunc
	done       chan struct{}
	firstFrame chan struct{}
	firstOnce  sync.Once

	logger *zap.SugaredLogger
}

// Open opens the device behind key and starts the acquisition loop. It
// does not return before the loop produced its first frame, bounded by
// firstFrameTimeout; a device that opens but never yields is released and
// reported as unavailable.
func Open(key int, open camera.Opener, width, height int, fps float64) (*Session, error) {
	dev, err := open(key, width, height, fps)
	if err != nil {
		return nil, err
	}

	aw, ah, afps := dev.Negotiated()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		key:        key,
		dev:        dev,
		width:      aw,
		height:     ah,
		fps:        afps,
		newSink:    video.NewWriter,
		cancel:     cancel,
		done:       make(chan struct{}),
		firstFrame: make(chan struct{}),
		logger:     utils.GetLogger().Named(fmt.Sprintf("session-%d", key)),
	}

	go s.acquire(ctx)

	select {
	case <-s.firstFrame:
	case <-s.done:
		_ = s.Close()
		return nil, fmt.Errorf("%w: key %d stream ended before first frame", camera.ErrDeviceUnavailable, key)
	case <-time.After(firstFrameTimeout):
		_ = s.Close()
		return nil, fmt.Errorf("%w: key %d produced no frame within %s", camera.ErrDeviceUnavailable, key, firstFrameTimeout)
	}

	s.logger.Infof("opened %d*%d@%.1f", aw, ah, afps)
	return s, nil
}

// acquire keeps overwriting the latest slot until the device ends its
// stream or the session is closed.
func (s *Session) acquire(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := s.dev.ReadFrame(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Infof("acquisition ended: %s", err)
			}
			return
		}

		s.frameMu.Lock()
		s.latest = frame
		s.frameMu.Unlock()
		s.firstOnce.Do(func() { close(s.firstFrame) })
	}
}

// Key reports the logical device key.
func (s *Session) Key() int {
	return s.key
}

// Latest returns the current contents of the latest-frame slot. It never
// blocks on acquisition activity.
func (s *Session) Latest() (types.Frame, bool) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.latest, !s.latest.Empty()
}

// Alive reports whether the acquisition loop is still running.
func (s *Session) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// SetControl forwards a parameter change to the device. The hardware may
// clamp or ignore the requested value.
func (s *Session) SetControl(name types.ControlName, ctrl types.Control) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.closed || !s.Alive() {
		return fmt.Errorf("%w: key %d", ErrNotActive, s.key)
	}
	return s.dev.SetControl(name, ctrl)
}

// StartRecording opens a sink at path sized to the negotiated format and
// starts the sampling loop. The sampling period derives from the actual
// frame rate, not the requested one.
func (s *Session) StartRecording(path string) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.closed || !s.Alive() {
		return fmt.Errorf("%w: key %d", ErrNotActive, s.key)
	}
	if s.rec != nil {
		// A loop that died on a sink write already closed its sink;
		// reap it so a new recording can start.
		if !s.rec.finished() {
			return fmt.Errorf("%w: key %d", ErrRecording, s.key)
		}
		s.rec.stop()
		s.rec = nil
	}

	sink, err := s.newSink(path, s.width, s.height, s.fps)
	if err != nil {
		return err
	}

	rec := newRecorder(s, sink, utils.PeriodFromFPS(s.fps), s.logger)
	s.rec = rec
	go rec.run()
	s.logger.Infof("recording to %s", path)

	return nil
}

// StopRecording stops the sampling loop and closes the sink. Safe to call
// repeatedly and while not recording.
func (s *Session) StopRecording() {
	s.stateMu.Lock()
	rec := s.rec
	s.rec = nil
	s.stateMu.Unlock()

	if rec != nil {
		rec.stop()
		s.logger.Infof("recording stopped after %d frames", rec.written())
	}
}

// Recording reports whether a sampling loop is running. A loop that died
// on a sink failure no longer counts.
func (s *Session) Recording() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.rec != nil && !s.rec.finished()
}

// SaveFrame writes the latest frame into dir as base.ext. Formats other
// than jpg are transcoded from the JPEG frame.
func (s *Session) SaveFrame(dir, base, ext string) error {
	frame, ok := s.Latest()
	if !ok {
		return fmt.Errorf("key %d has no frame yet", s.key)
	}
	if err := utils.MkdirAll(dir); err != nil {
		return err
	}

	return imageutil.WriteFrame(frame.Data, filepath.Join(dir, base+"."+ext), ext)
}

// Status reports the negotiated format and lifecycle flags.
func (s *Session) Status() types.Status {
	return types.Status{
		Key:       s.key,
		Width:     s.width,
		Height:    s.height,
		FPS:       s.fps,
		Recording: s.Recording(),
		Alive:     s.Alive(),
	}
}

// Close stops recording, terminates the acquisition loop, releases the
// device and clears the latest slot. Idempotent; the join on the loop is
// bounded by joinTimeout.
func (s *Session) Close() error {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return nil
	}
	s.closed = true
	rec := s.rec
	s.rec = nil
	s.stateMu.Unlock()

	if rec != nil {
		rec.stop()
	}

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(joinTimeout):
		return fmt.Errorf("%w: acquisition loop of key %d", ErrShutdownTimeout, s.key)
	}

	err := s.dev.Release()
	s.frameMu.Lock()
	s.latest = types.Frame{}
	s.frameMu.Unlock()
	s.logger.Info("closed")

	return err
}

// SetSinkFactory replaces the recording sink constructor, for tests.
func (s *Session) SetSinkFactory(f video.NewSinkFunc) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.newSink = f
}
