package main

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"

	"camrig/pkg/preview"
	"camrig/pkg/registry"
	"camrig/pkg/render"
	"camrig/pkg/session"
	"camrig/pkg/storage"
	"camrig/pkg/types"
	"camrig/pkg/utils/ps"
)

type apiServer struct {
	cfg      config
	store    *storage.Store
	reg      *registry.Registry
	comp     *preview.Compositor
	renderer *render.Stream

	recMu     sync.Mutex
	recFolder string
}

func (s *apiServer) register(r *gin.Engine) {
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})

	api := r.Group("/api")

	api.GET("/status", s.statusAll)
	api.GET("/status/:key", s.statusOne)

	api.POST("/recording/start", s.startRecording)
	api.POST("/recording/stop", s.stopRecording)
	api.GET("/recordings/:folder", s.listRecordings)

	api.POST("/stills", s.saveStills)

	api.PUT("/control/:key", s.setControl)

	api.GET("/preview", s.previewStream)
	api.POST("/preview/start", s.startPreview)
	api.POST("/preview/stop", s.stopPreview)
	api.POST("/preview/key", s.previewKey)
	api.PUT("/preview/layout", s.previewLayout)

	api.GET("/system", s.systemStatus)
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}

func (s *apiServer) statusAll(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(s.reg.StatusAll()))
}

func (s *apiServer) statusOne(c *gin.Context) {
	key, err := strconv.Atoi(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("bad key"))
		return
	}
	sess, ok := s.reg.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("unknown device key"))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(sess.Status()))
}

type recordingRequest struct {
	Folder string `json:"folder"`
}

func (s *apiServer) startRecording(c *gin.Context) {
	req := recordingRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return
		}
	}
	if req.Folder == "" {
		req.Folder = time.Now().Format("20060102-150405")
	}

	s.recMu.Lock()
	defer s.recMu.Unlock()
	if s.recFolder != "" {
		c.JSON(http.StatusConflict, jsend.SimpleErr(fmt.Sprintf("already recording into %s", s.recFolder)))
		return
	}

	if err := s.reg.StartRecordingAll(s.store.RecordingDir(req.Folder)); err != nil {
		internalErr(c, err)
		return
	}
	s.recFolder = req.Folder

	if err := s.store.WriteManifest(storage.Manifest{
		Folder:    req.Folder,
		Keys:      s.reg.Keys(),
		StartedAt: time.Now(),
	}); err != nil {
		logger.Warnf("write manifest: %s", err)
	}

	c.JSON(http.StatusOK, jsend.Success(req.Folder))
}

func (s *apiServer) stopRecording(c *gin.Context) {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	s.reg.StopRecordingAll()
	folder := s.recFolder
	s.recFolder = ""

	if folder != "" {
		if m, err := s.store.ReadManifest(folder); err == nil {
			m.StoppedAt = time.Now()
			if err = s.store.WriteManifest(*m); err != nil {
				logger.Warnf("write manifest: %s", err)
			}
		}
	}

	c.JSON(http.StatusOK, jsend.Success(folder))
}

func (s *apiServer) listRecordings(c *gin.Context) {
	folder := c.Param("folder")
	files, err := s.store.ListRecordings(folder)
	if err != nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(files))
}

type stillsRequest struct {
	Base   string `json:"base"`
	Format string `json:"format"`
}

func (s *apiServer) saveStills(c *gin.Context) {
	req := stillsRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return
		}
	}
	if req.Base == "" {
		req.Base = time.Now().Format("20060102-150405")
	}
	if req.Format == "" {
		req.Format = "jpg"
	}

	s.reg.SaveFramesAll(s.store.StillsDir(), req.Base, req.Format)
	c.JSON(http.StatusOK, jsend.Success(req.Base))
}

type controlRequest struct {
	Name  string `json:"name" binding:"required"`
	Auto  bool   `json:"auto"`
	Value int32  `json:"value"`
}

func (s *apiServer) setControl(c *gin.Context) {
	key, err := strconv.Atoi(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("bad key"))
		return
	}
	var req controlRequest
	if err := c.Bind(&req); err != nil {
		return
	}
	sess, ok := s.reg.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("unknown device key"))
		return
	}

	err = sess.SetControl(types.ControlName(req.Name), types.Control{Auto: req.Auto, Value: req.Value})
	switch {
	case errors.Is(err, session.ErrNotActive):
		c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
	case err != nil:
		internalErr(c, err)
	default:
		c.JSON(http.StatusOK, jsend.Success("ok"))
	}
}

// previewStream serves the composited preview as a multipart MJPEG
// stream, one part per composite.
func (s *apiServer) previewStream(c *gin.Context) {
	frames, cancel := s.renderer.Subscribe()
	defer cancel()

	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			partWriter, err := mimeWriter.CreatePart(partHeader)
			if err != nil {
				logger.Warnf("create multipart part: %s", err)
				return
			}
			if _, err = partWriter.Write(frame); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (s *apiServer) startPreview(c *gin.Context) {
	s.comp.Start(previewOptions(s.cfg))
	c.JSON(http.StatusOK, jsend.Success("running"))
}

func (s *apiServer) stopPreview(c *gin.Context) {
	s.comp.Stop()
	c.JSON(http.StatusOK, jsend.Success("stopped"))
}

type keyRequest struct {
	Code int `json:"code" binding:"required"`
}

func (s *apiServer) previewKey(c *gin.Context) {
	var req keyRequest
	if err := c.Bind(&req); err != nil {
		return
	}
	s.renderer.PushEvent(req.Code)
	c.JSON(http.StatusOK, jsend.Success("ok"))
}

type layoutRequest struct {
	Rows  int     `json:"rows"`
	Cols  int     `json:"cols"`
	Scale float64 `json:"scale"`
}

func (s *apiServer) previewLayout(c *gin.Context) {
	var req layoutRequest
	if err := c.Bind(&req); err != nil {
		return
	}
	if req.Rows > 0 && req.Cols > 0 {
		s.comp.SetLayout(&preview.Grid{Rows: req.Rows, Cols: req.Cols})
	}
	if req.Scale > 0 {
		s.comp.SetScale(req.Scale)
	}

	c.JSON(http.StatusOK, jsend.Success("ok"))
}

type systemStatus struct {
	CPU    ps.CPU    `json:"cpu"`
	Memory ps.Memory `json:"memory"`
	Disk   ps.Disk   `json:"disk"`
}

func (s *apiServer) systemStatus(c *gin.Context) {
	cpu, err := ps.CPUStatus()
	if err != nil {
		internalErr(c, err)
		return
	}
	memory, err := ps.MemoryStatus()
	if err != nil {
		internalErr(c, err)
		return
	}
	disk, err := ps.DiskStatus(s.store.Root())
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(systemStatus{CPU: cpu, Memory: memory, Disk: disk}))
}
