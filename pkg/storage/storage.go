package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"camrig/pkg/types"
	"camrig/pkg/utils"
)

const (
	recordingsDir = "recordings"
	stillsDir     = "stills"
	manifestName  = "manifest.json"
)

// RecordingName is the per-device video file name inside a take folder.
func RecordingName(key int) string {
	return fmt.Sprintf("%02d.avi", key)
}

// StillDirName is the per-device subfolder for saved stills.
func StillDirName(key int) string {
	return fmt.Sprintf("%02d", key)
}

// Store lays out recorded artifacts under one root directory.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root can not be empty")
	}
	if err := utils.MkdirAll(root); err != nil {
		return nil, err
	}

	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

// RecordingDir is the folder holding one take's per-device files.
func (s *Store) RecordingDir(folder string) string {
	return filepath.Join(s.root, recordingsDir, folder)
}

func (s *Store) StillsDir() string {
	return filepath.Join(s.root, stillsDir)
}

// ListRecordings lists the files of one take with human-readable sizes.
func (s *Store) ListRecordings(folder string) ([]types.File, error) {
	entries, err := os.ReadDir(s.RecordingDir(folder))
	if err != nil {
		return nil, err
	}

	var files []types.File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, types.File{
			Name:    e.Name(),
			Size:    humanize.IBytes(uint64(info.Size())),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return files, nil
}

// Manifest records what one take covered.
type Manifest struct {
	Folder    string    `json:"folder"`
	Keys      []int     `json:"keys"`
	StartedAt time.Time `json:"startedAt"`
	StoppedAt time.Time `json:"stoppedAt,omitempty"`
}

func (s *Store) WriteManifest(m Manifest) error {
	dir := s.RecordingDir(m.Folder)
	if err := utils.MkdirAll(dir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, manifestName), data, 0644)
}

func (s *Store) ReadManifest(folder string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.RecordingDir(folder), manifestName))
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err = json.Unmarshal(data, m); err != nil {
		return nil, err
	}

	return m, nil
}
