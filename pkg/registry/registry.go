package registry

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"camrig/pkg/camera"
	"camrig/pkg/session"
	"camrig/pkg/storage"
	"camrig/pkg/types"
	"camrig/pkg/utils"
)

// Registry owns all live sessions, keyed by logical device id. Bulk
// operations apply per session independently; one failing device never
// aborts its siblings.
type Registry struct {
	mu       sync.Mutex
	sessions map[int]*session.Session

	logger *zap.SugaredLogger
}

func New() *Registry {
	return &Registry{
		sessions: make(map[int]*session.Session),
		logger:   utils.GetLogger().Named("registry"),
	}
}

// InitAll opens every requested device with the same format request. A
// device that fails to open is logged and skipped; the registry proceeds
// with whatever subset came up. Returns the keys that opened.
func (r *Registry) InitAll(open camera.Opener, ids []int, width, height int, fps float64) []int {
	var opened []int
	for _, id := range ids {
		s, err := session.Open(id, open, width, height, fps)
		if err != nil {
			r.logger.Warnf("device %d skipped: %s", id, err)
			continue
		}
		r.mu.Lock()
		r.sessions[id] = s
		r.mu.Unlock()
		opened = append(opened, id)
	}
	r.logger.Infof("%d of %d devices up", len(opened), len(ids))

	return opened
}

// Get returns the session for key, if registered.
func (r *Registry) Get(key int) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Keys lists registered keys in ascending order.
func (r *Registry) Keys() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]int, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	return keys
}

func (r *Registry) ordered() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]int, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]*session.Session, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.sessions[k])
	}

	return out
}

// StartRecordingAll starts one recording per session, writing
// <dir>/<key, zero-padded>.avi. Sessions that cannot start are logged and
// left running without a recording.
func (r *Registry) StartRecordingAll(dir string) error {
	if err := utils.MkdirAll(dir); err != nil {
		return err
	}
	for _, s := range r.ordered() {
		path := filepath.Join(dir, storage.RecordingName(s.Key()))
		if err := s.StartRecording(path); err != nil {
			r.logger.Warnf("start recording %d: %s", s.Key(), err)
		}
	}

	return nil
}

// StopRecordingAll stops every active recording. Idempotent.
func (r *Registry) StopRecordingAll() {
	for _, s := range r.ordered() {
		s.StopRecording()
	}
}

// SaveFramesAll writes every session's latest frame as
// <dir>/<key, zero-padded>/<base>.<ext>.
func (r *Registry) SaveFramesAll(dir, base, ext string) {
	for _, s := range r.ordered() {
		sub := filepath.Join(dir, storage.StillDirName(s.Key()))
		if err := s.SaveFrame(sub, base, ext); err != nil {
			r.logger.Warnf("save frame %d: %s", s.Key(), err)
		}
	}
}

// StatusAll reports the status of every registered session.
func (r *Registry) StatusAll() map[int]types.Status {
	out := make(map[int]types.Status)
	for _, s := range r.ordered() {
		out[s.Key()] = s.Status()
	}

	return out
}

// CloseAll closes every session and empties the registry.
func (r *Registry) CloseAll() error {
	var errs []error
	for _, s := range r.ordered() {
		if err := s.Close(); err != nil {
			r.logger.Warnf("close %d: %s", s.Key(), err)
			errs = append(errs, err)
		}
	}
	r.mu.Lock()
	r.sessions = make(map[int]*session.Session)
	r.mu.Unlock()
	r.logger.Info("all devices closed")

	return errors.Join(errs...)
}
