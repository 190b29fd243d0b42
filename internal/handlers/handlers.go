package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/swinvox-api/internal/glb"
	"github.com/Brownie44l1/swinvox-api/internal/model"
	"github.com/Brownie44l1/swinvox-api/internal/pipeline"
	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/store"
	"github.com/Brownie44l1/swinvox-api/internal/voxel"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	// maxGridSize bounds grids posted to /voxels.
	maxGridSize = 128
)

// Options tune request limits.
type Options struct {
	MaxViews       int
	MaxUploadBytes int64
}

type Handler struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	reporter Reporter
	opts     Options
}

// NewHandler wires the HTTP surface. A nil store disables persistence and
// a nil reporter disables error reporting.
func NewHandler(p *pipeline.Pipeline, s store.Store, r Reporter, opts Options) *Handler {
	if r == nil {
		r = NopReporter{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Handler{pipeline: p, store: s, reporter: r, opts: opts}
}

// Router returns a gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), enableCORS())

	router.OPTIONS("/*path", func(c *gin.Context) {
		c.JSON(http.StatusOK, struct{}{})
	})
	router.GET("/health", h.Health)
	router.POST("/upload", h.Upload)
	router.POST("/voxels", h.Voxels)
	router.GET("/models", h.ListModels)
	router.GET("/models/:id", h.GetModel)
	router.GET("/models/:id/stl", h.GetModelSTL)
	router.DELETE("/models/:id", h.DeleteModel)
	return router
}

func enableCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With, X-File-Name, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Model-ID, X-Request-ID, Content-Disposition")
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		start := time.Now()

		c.Next()

		log.WithFields(log.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Debug("[Handler] Request served")
	}
}

// Health reports whether reconstructions can be served.
func (h *Handler) Health(c *gin.Context) {
	status := "healthy"
	if !model.Available(h.pipeline.Backend()) {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"grid_size":   h.pipeline.Backend().Contract().GridSize,
		"persistence": h.store != nil,
	})
}

// Upload reconstructs a mesh from the multipart field images[] and returns
// it as GLB.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Upload exceeds %d bytes", h.opts.MaxUploadBytes)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No images uploaded"})
		return
	}
	files := form.File["images[]"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No images uploaded"})
		return
	}
	if h.opts.MaxViews > 0 && len(files) > h.opts.MaxViews {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("At most %d images per request", h.opts.MaxViews)})
		return
	}
	save := c.PostForm("save") == "true"
	if save && h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is disabled"})
		return
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}
	log.WithField("files", names).Info("[Handler] Received images")

	images := make([][]byte, len(files))
	for i, f := range files {
		images[i], err = readPart(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Couldn't read uploaded image", "kind": reconerr.InvalidImage.String(), "index": i})
			return
		}
	}

	res, err := h.pipeline.Reconstruct(images)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondMesh(c, res, save, c.PostForm("filename"))
}

func readPart(f *multipart.FileHeader) ([]byte, error) {
	file, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

type voxelRequest struct {
	Occupancy [][][]float32 `json:"occupancy" binding:"required"`
	Threshold *float32      `json:"threshold"`
	Save      bool          `json:"save"`
	Filename  string        `json:"filename"`
}

// Voxels meshes an occupancy grid posted as JSON, skipping the network.
func (h *Handler) Voxels(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)

	var req voxelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: " + err.Error()})
		return
	}
	if len(req.Occupancy) > maxGridSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Grid size is limited to %d", maxGridSize)})
		return
	}
	if req.Save && h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is disabled"})
		return
	}
	occ, err := voxel.OccupancyFromNested(req.Occupancy)
	if err != nil {
		h.fail(c, reconerr.Wrap(reconerr.InvalidOccupancy, "voxels", err))
		return
	}

	var res *pipeline.Result
	if req.Threshold != nil {
		res, err = h.pipeline.MeshFromOccupancyAt(occ, *req.Threshold)
	} else {
		res, err = h.pipeline.MeshFromOccupancy(occ)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondMesh(c, res, req.Save, req.Filename)
}

func (h *Handler) respondMesh(c *gin.Context, res *pipeline.Result, save bool, filename string) {
	if filename == "" {
		filename = fmt.Sprintf("model_%s.glb", time.Now().UTC().Format("20060102_150405"))
	}
	if save {
		m := &store.Model{
			Filename:  filename,
			Data:      res.GLB,
			Views:     res.Views,
			Vertices:  res.Vertices,
			Triangles: res.Triangles,
		}
		if err := h.store.Save(m); err != nil {
			log.Error("[Handler] Couldn't save model: ", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't save model - please try again later"})
			return
		}
		c.Writer.Header().Set("X-Model-ID", m.ID)
		log.WithFields(log.Fields{"id": m.ID, "filename": filename}).Info("[Handler] Saved model")
	}

	c.Writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Writer.Header().Set("X-Vertex-Count", strconv.Itoa(res.Vertices))
	c.Writer.Header().Set("X-Triangle-Count", strconv.Itoa(res.Triangles))
	c.Writer.Header().Set("X-Voxel-Count", strconv.Itoa(res.Occupied))
	c.Data(http.StatusOK, glb.MIMEType, res.GLB)
}

// fail maps a pipeline error to a response. Input errors are the caller's
// fault; fatal kinds are reported.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := reconerr.KindOf(err)
	body := gin.H{"error": err.Error(), "kind": kind.String()}
	if idx := reconerr.IndexOf(err); idx >= 0 {
		body["index"] = idx
	}

	switch {
	case kind == reconerr.CapabilityUnavailable:
		log.Error("[Handler] Reconstruction backend unavailable: ", err.Error())
		h.reporter.Report(err, reportTags(c, kind))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Reconstruction is unavailable", "kind": kind.String()})
	case kind.Fatal(), kind == reconerr.Unknown:
		log.Error("[Handler] Reconstruction failed: ", err.Error())
		h.reporter.Report(err, reportTags(c, kind))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reconstruction failed", "kind": kind.String()})
	default:
		log.Debug("[Handler] Rejected request: ", err.Error())
		c.JSON(http.StatusBadRequest, body)
	}
}

func reportTags(c *gin.Context, kind reconerr.Kind) map[string]string {
	return map[string]string{
		"kind":       kind.String(),
		"path":       c.Request.URL.Path,
		"request_id": c.GetString("request_id"),
	}
}

func (h *Handler) requireStore(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is disabled"})
		return false
	}
	return true
}

func (h *Handler) loadModel(c *gin.Context) (*store.Model, bool) {
	if !h.requireStore(c) {
		return nil, false
	}
	m, err := h.store.Get(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
		return nil, false
	}
	if err != nil {
		log.Error("[Handler] Couldn't load model: ", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't load model - please try again later"})
		return nil, false
	}
	return m, true
}

func (h *Handler) ListModels(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	models, err := h.store.List(limit, offset)
	if err != nil {
		log.Error("[Handler] Couldn't list models: ", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't list models - please try again later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models, "count": len(models)})
}

func (h *Handler) GetModel(c *gin.Context) {
	m, ok := h.loadModel(c)
	if !ok {
		return
	}
	c.Writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", m.Filename))
	c.Data(http.StatusOK, glb.MIMEType, m.Data)
}

// GetModelSTL converts a stored model to binary STL.
func (h *Handler) GetModelSTL(c *gin.Context) {
	m, ok := h.loadModel(c)
	if !ok {
		return
	}
	decoded, err := glb.Decode(m.Data)
	if err != nil {
		log.Error("[Handler] Stored model is not valid GLB: ", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stored model is corrupt"})
		return
	}
	c.Writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stlName(m.Filename)))
	c.Data(http.StatusOK, "model/stl", decoded.EncodeSTL())
}

func stlName(filename string) string {
	return strings.TrimSuffix(filename, ".glb") + ".stl"
}

func (h *Handler) DeleteModel(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	id := c.Param("id")
	err := h.store.Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
		return
	}
	if err != nil {
		log.Error("[Handler] Couldn't delete model: ", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't delete model - please try again later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
