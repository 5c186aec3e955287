package preview

import (
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"camrig/pkg/registry"
	"camrig/pkg/render"
	"camrig/pkg/utils"
	imageutil "camrig/pkg/utils/image"
)

const defaultScale = 0.5

// Options tune one preview run. A nil Layout selects the near-square
// heuristic per snapshot; BaseWidth/BaseHeight default to each frame's own
// dimensions.
type Options struct {
	Layout     *Grid
	Scale      float64
	BaseWidth  int
	BaseHeight int

	// OnEvent is invoked synchronously with each input event code.
	OnEvent func(code int)
}

// Compositor repeatedly aggregates the registry's latest frames, tiles
// them into one image and hands it to the renderer. It holds only a
// reference to the registry and owns its own loop and composite cache.
// Device and recording failures never surface here; a dead session just
// contributes an absent entry and the grid shrinks.
type Compositor struct {
	reg      *registry.Registry
	renderer render.Renderer

	mu      sync.Mutex
	running bool
	opts    Options
	stopCh  chan struct{}
	doneCh  chan struct{}

	cacheMu  sync.Mutex
	last     image.Image
	lastSnap registry.Snapshot

	logger *zap.SugaredLogger
}

func New(reg *registry.Registry, renderer render.Renderer) *Compositor {
	return &Compositor{
		reg:      reg,
		renderer: renderer,
		logger:   utils.GetLogger().Named("preview"),
	}
}

// Start launches the preview loop. A second Start while running is a
// no-op.
func (c *Compositor) Start(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	if opts.Scale <= 0 {
		opts.Scale = defaultScale
	}
	c.opts = opts
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.loop(c.stopCh, c.doneCh)
	c.logger.Info("preview started")
}

// Stop terminates the loop, waits for it and releases the renderer.
// Idempotent.
func (c *Compositor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := c.renderer.Close(); err != nil {
		c.logger.Warnf("close renderer: %s", err)
	}
	c.logger.Info("preview stopped")
}

func (c *Compositor) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetLayout overrides the grid for subsequent iterations. nil restores
// the heuristic.
func (c *Compositor) SetLayout(g *Grid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Layout = g
}

func (c *Compositor) SetScale(scale float64) {
	if scale <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Scale = scale
}

// LastComposite returns the most recently rendered image, if any.
func (c *Compositor) LastComposite() (image.Image, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return c.last, c.last != nil
}

// Frames returns the snapshot of the current iteration while running,
// otherwise a fresh one.
func (c *Compositor) Frames() registry.Snapshot {
	if c.Running() {
		c.cacheMu.Lock()
		defer c.cacheMu.Unlock()
		return c.lastSnap
	}

	return c.reg.Snapshot()
}

func (c *Compositor) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	frames := 0
	lastLog := time.Now()
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		snap := c.reg.Snapshot()
		c.cacheMu.Lock()
		c.lastSnap = snap
		c.cacheMu.Unlock()

		c.mu.Lock()
		opts := c.opts
		c.mu.Unlock()

		cells := c.resizeAll(snap, opts)
		if len(cells) == 0 {
			// Transient all-empty snapshot during startup; nothing to
			// show yet, poll again.
			continue
		}

		grid := AutoLayout(len(cells))
		if opts.Layout != nil && opts.Layout.Valid() {
			grid = *opts.Layout
		}

		cellB := cells[0].Bounds()
		combined := tile(cells, grid, cellB.Dx(), cellB.Dy())
		c.cacheMu.Lock()
		c.last = combined
		c.cacheMu.Unlock()

		if err := c.renderer.Show(combined); err != nil {
			c.logger.Warnf("show composite: %s", err)
		}

		if code, ok := c.renderer.PollEvent(0); ok && opts.OnEvent != nil {
			opts.OnEvent(code)
		}

		frames++
		if now := time.Now(); now.Sub(lastLog) >= time.Second {
			c.logger.Debugf("composited %.1f fps", float64(frames)/now.Sub(lastLog).Seconds())
			frames = 0
			lastLog = now
		}
	}
}

// resizeAll decodes and scales the present frames; absent or undecodable
// frames are skipped, not padded. Every cell is scaled to the same size:
// BaseWidth/BaseHeight when set, otherwise the dimensions of the first
// decodable frame, so mixed-resolution devices still tile evenly.
func (c *Compositor) resizeAll(snap registry.Snapshot, opts Options) []*image.RGBA {
	var cells []*image.RGBA
	w, h := opts.BaseWidth, opts.BaseHeight
	for _, e := range snap {
		if !e.OK {
			continue
		}
		img, err := imageutil.DecodeJPEG(e.Frame.Data)
		if err != nil {
			c.logger.Warnf("decode frame of %d: %s", e.Key, err)
			continue
		}
		if w <= 0 || h <= 0 {
			w, h = e.Frame.Width, e.Frame.Height
		}
		cells = append(cells, resize(img, int(float64(w)*opts.Scale), int(float64(h)*opts.Scale)))
	}

	return cells
}
