package main

import (
	"flag"

	"github.com/beevik/ntp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"camrig/pkg/camera"
	"camrig/pkg/preview"
	"camrig/pkg/registry"
	"camrig/pkg/render"
	"camrig/pkg/storage"
	"camrig/pkg/utils"
)

var (
	configPath = flag.String("config", "", "toml config path")
	port       = flag.Int("port", 0, "override api port")
	storageDir = flag.String("dir", "", "override storage dir")

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
	flag.Parse()
}

func main() {
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %s", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *storageDir != "" {
		cfg.Dir = *storageDir
	}

	// Snapshot timestamps are wall-clock, best-effort across rigs; log
	// the host clock offset so operators can reason about alignment.
	if cfg.NTPServer != "" {
		if resp, err := ntp.Query(cfg.NTPServer); err != nil {
			logger.Warnf("ntp probe %s: %s", cfg.NTPServer, err)
		} else {
			logger.Infof("clock offset vs %s: %s", cfg.NTPServer, resp.ClockOffset)
		}
	}

	store, err := storage.New(cfg.Dir)
	if err != nil {
		logger.Fatal(err)
	}

	open := camera.OpenV4L
	if cfg.Synthetic {
		open = camera.OpenSynthetic
		logger.Info("using synthetic devices")
	}

	reg := registry.New()
	opened := reg.InitAll(open, cfg.Devices, cfg.Width, cfg.Height, cfg.FPS)
	if len(opened) == 0 {
		logger.Warn("no devices available; serving status api only")
	}
	defer func() {
		if err := reg.CloseAll(); err != nil {
			logger.Warnf("close all: %s", err)
		}
	}()

	streamRenderer := render.NewStream()
	comp := preview.New(reg, streamRenderer)
	comp.Start(previewOptions(cfg))
	defer comp.Stop()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.Cors())

	srv := &apiServer{
		cfg:      cfg,
		store:    store,
		reg:      reg,
		comp:     comp,
		renderer: streamRenderer,
	}
	srv.register(r)

	utils.ListenAndServe(r, cfg.Port)
}

func previewOptions(cfg config) preview.Options {
	opts := preview.Options{
		Scale:      cfg.Preview.Scale,
		BaseWidth:  cfg.Width,
		BaseHeight: cfg.Height,
		OnEvent: func(code int) {
			logger.Infof("preview key event: %d", code)
		},
	}
	if cfg.Preview.Rows > 0 && cfg.Preview.Cols > 0 {
		opts.Layout = &preview.Grid{Rows: cfg.Preview.Rows, Cols: cfg.Preview.Cols}
	}

	return opts
}
