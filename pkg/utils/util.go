package utils

import (
	"fmt"
	"os"
	"time"
)

// MkdirAll creates path and all missing ancestors. Idempotent.
func MkdirAll(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists and is not a directory", path)
	}

	return os.MkdirAll(path, 0750)
}

// PeriodFromFPS converts a frame rate to the sampling period between frames.
func PeriodFromFPS(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
