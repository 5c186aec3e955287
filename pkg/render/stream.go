package render

import (
	"bytes"
	"image"
	"sync"
	"time"

	imageutil "camrig/pkg/utils/image"
)

// Stream renders by handing JPEG-encoded composites to HTTP subscribers,
// the multipart MJPEG transport the control API serves. Input events come
// in over the API and queue up for the compositor's poll.
type Stream struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}

	events chan int
}

func NewStream() *Stream {
	return &Stream{
		subs:   make(map[chan []byte]struct{}),
		events: make(chan int, 16),
	}
}

func (s *Stream) Show(img image.Image) error {
	var buf bytes.Buffer
	if err := imageutil.EncodeJPEG(img, &buf); err != nil {
		return err
	}
	data := buf.Bytes()

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		// Overwrite the pending image for slow subscribers; a viewer
		// always gets the freshest composite, never a backlog.
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}

	return nil
}

// Subscribe registers a viewer. The returned cancel must be called when
// the viewer goes away.
func (s *Stream) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}

	return ch, cancel
}

// PushEvent queues an input event code for the compositor. Events beyond
// the queue capacity are dropped.
func (s *Stream) PushEvent(code int) {
	select {
	case s.events <- code:
	default:
	}
}

func (s *Stream) PollEvent(timeout time.Duration) (int, bool) {
	if timeout <= 0 {
		select {
		case code := <-s.events:
			return code, true
		default:
			return 0, false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case code := <-s.events:
		return code, true
	case <-t.C:
		return 0, false
	}
}

// Close drops all current subscribers. The stream stays usable so a
// stopped preview can be started again; viewers simply reconnect.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}

	return nil
}
