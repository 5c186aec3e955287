package main

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

type previewConfig struct {
	Scale float64 `toml:"scale"`
	Rows  int     `toml:"rows"`
	Cols  int     `toml:"cols"`
}

type config struct {
	Devices   []int   `toml:"devices"`
	Width     int     `toml:"width"`
	Height    int     `toml:"height"`
	FPS       float64 `toml:"fps"`
	Dir       string  `toml:"dir"`
	Port      int     `toml:"port"`
	Synthetic bool    `toml:"synthetic"`
	NTPServer string  `toml:"ntpServer"`

	Preview previewConfig `toml:"preview"`
}

func defaultConfig() config {
	return config{
		Devices: []int{0},
		Width:   1280,
		Height:  720,
		FPS:     30,
		Dir:     "./camrig-data",
		Port:    9999,
		Preview: previewConfig{Scale: 0.5},
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err = toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
