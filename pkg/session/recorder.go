package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"camrig/pkg/video"
)

// sleepMargin is shaved off each wait so the loop re-checks slightly
// before the deadline instead of overshooting it.
const sleepMargin = time.Millisecond

// recorder samples the session's latest frame on a fixed-period schedule
// and forwards it to the sink. The target time for sample k is
// start + k*period; missed ticks do not accumulate drift.
type recorder struct {
	sess   *Session
	sink   video.Sink
	period time.Duration

	mu  sync.Mutex
	cnt int

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	logger *zap.SugaredLogger
}

func newRecorder(sess *Session, sink video.Sink, period time.Duration, logger *zap.SugaredLogger) *recorder {
	return &recorder{
		sess:   sess,
		sink:   sink,
		period: period,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
}

func (r *recorder) run() {
	defer close(r.doneCh)
	defer func() {
		if err := r.sink.Close(); err != nil {
			r.logger.Warnf("close sink: %s", err)
		}
	}()

	target := time.Now()
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		now := time.Now()
		if now.Before(target) {
			r.sleep(target.Sub(now) - sleepMargin)
			continue
		}

		// An empty slot means the session is not producing yet; the
		// tick is dropped rather than padded with a stale frame.
		if frame, ok := r.sess.Latest(); ok {
			if err := r.sink.Add(frame.Data); err != nil {
				r.logger.Errorf("write frame: %s", err)
				return
			}
			r.mu.Lock()
			r.cnt++
			r.mu.Unlock()
		}
		target = target.Add(r.period)
	}
}

func (r *recorder) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.stopCh:
	}
}

// stop requests termination and waits for the loop to finish its current
// iteration and close the sink. Idempotent.
func (r *recorder) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// finished reports whether the loop has exited, whether stopped or
// failed on a sink write.
func (r *recorder) finished() bool {
	select {
	case <-r.doneCh:
		return true
	default:
		return false
	}
}

func (r *recorder) written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cnt
}
