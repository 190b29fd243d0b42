package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/swinvox-api/internal/config"
	"github.com/Brownie44l1/swinvox-api/internal/glb"
	"github.com/Brownie44l1/swinvox-api/internal/mesh"
	"github.com/Brownie44l1/swinvox-api/internal/model"
	"github.com/Brownie44l1/swinvox-api/internal/pipeline"
	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/store"
	"github.com/Brownie44l1/swinvox-api/internal/tensor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []map[string]string
}

func (r *recordingReporter) Report(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, tags)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ImgHeight, cfg.ImgWidth = 8, 8
	cfg.GridSize = 2
	cfg.MaxViews = 3
	return cfg
}

// cornerBackend marks the origin voxel as occupied.
func cornerBackend(cfg *config.Config) model.Reconstructor {
	return model.Func{
		C: pipeline.ContractFor(cfg),
		Fn: func(*tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
			d := cfg.GridSize
			out, err := tensor.New[float32](1, 1, d, d, d)
			if err != nil {
				return nil, err
			}
			out.Set(0.9, 0, 0, 0, 0, 0)
			return out, nil
		},
	}
}

type fixture struct {
	router   *gin.Engine
	store    store.Store
	reporter *recordingReporter
}

func newFixture(t *testing.T, backend func(*config.Config) model.Reconstructor, persist bool) *fixture {
	t.Helper()
	cfg := testConfig()
	p, err := pipeline.New(cfg, backend(cfg))
	require.NoError(t, err)

	var s store.Store
	if persist {
		sq, err := store.OpenSQLite(filepath.Join(t.TempDir(), "models.db"))
		require.NoError(t, err)
		t.Cleanup(func() { sq.Close() })
		s = sq
	}
	rep := &recordingReporter{}
	h := NewHandler(p, s, rep, Options{MaxViews: cfg.MaxViews, MaxUploadBytes: 1 << 20})
	return &fixture{router: h.Router(), store: s, reporter: rep}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 20), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, files [][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for i, f := range files {
		part, err := w.CreateFormFile("images[]", "view"+string(rune('a'+i))+".png")
		require.NoError(t, err)
		_, err = part.Write(f)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(f *fixture, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, cornerBackend, false)
	rec := serve(f, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(2), body["grid_size"])
	assert.Equal(t, false, body["persistence"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	down := newFixture(t, func(cfg *config.Config) model.Reconstructor {
		return model.Unavailable{C: pipeline.ContractFor(cfg), Err: errors.New("no weights")}
	}, false)
	rec = serve(down, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "degraded", decodeJSON(t, rec)["status"])
}

func TestPreflight(t *testing.T) {
	f := newFixture(t, cornerBackend, false)
	rec := serve(f, httptest.NewRequest(http.MethodOptions, "/upload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestUpload_NoImages(t *testing.T) {
	f := newFixture(t, cornerBackend, false)

	rec := serve(f, uploadRequest(t, nil, map[string]string{"save": "false"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No images uploaded", decodeJSON(t, rec)["error"])

	rec = serve(f, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No images uploaded", decodeJSON(t, rec)["error"])
}

func TestUpload_ReturnsGLB(t *testing.T) {
	f := newFixture(t, cornerBackend, false)

	rec := serve(f, uploadRequest(t, [][]byte{pngBytes(t, 12, 9), pngBytes(t, 8, 8)}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, glb.MIMEType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "8", rec.Header().Get("X-Vertex-Count"))
	assert.Equal(t, "12", rec.Header().Get("X-Triangle-Count"))
	assert.Equal(t, "1", rec.Header().Get("X-Voxel-Count"))
	assert.Empty(t, rec.Header().Get("X-Model-ID"))

	m, err := glb.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 8)
	assert.Len(t, m.Triangles, 12)
}

func TestUpload_InputErrors(t *testing.T) {
	f := newFixture(t, cornerBackend, false)

	rec := serve(f, uploadRequest(t, [][]byte{pngBytes(t, 8, 8), []byte("garbage")}, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, reconerr.InvalidImage.String(), body["kind"])
	assert.Equal(t, float64(1), body["index"])

	img := pngBytes(t, 8, 8)
	rec = serve(f, uploadRequest(t, [][]byte{img, img, img, img}, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "At most 3")

	rec = serve(f, uploadRequest(t, [][]byte{img}, map[string]string{"save": "true"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, f.reporter.count())
}

func TestUpload_FatalErrorsAreReported(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) model.Reconstructor {
			return model.Unavailable{C: pipeline.ContractFor(cfg), Err: errors.New("no weights")}
		}, false)
		rec := serve(f, uploadRequest(t, [][]byte{pngBytes(t, 8, 8)}, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, reconerr.CapabilityUnavailable.String(), decodeJSON(t, rec)["kind"])
		require.Equal(t, 1, f.reporter.count())
		assert.Equal(t, "/upload", f.reporter.reports[0]["path"])
	})

	t.Run("contract violation", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) model.Reconstructor {
			return model.Func{
				C: pipeline.ContractFor(cfg),
				Fn: func(*tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
					return tensor.New[float32](1, 1, 3, 3, 3)
				},
			}
		}, false)
		rec := serve(f, uploadRequest(t, [][]byte{pngBytes(t, 8, 8)}, nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, reconerr.ContractViolation.String(), decodeJSON(t, rec)["kind"])
		assert.Equal(t, 1, f.reporter.count())
	})
}

func postVoxels(f *fixture, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/voxels", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(f, req)
}

func TestVoxels(t *testing.T) {
	f := newFixture(t, cornerBackend, true)

	rec := postVoxels(f, `{"occupancy": [[[0.6]]]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "8", rec.Header().Get("X-Vertex-Count"))

	rec = postVoxels(f, `{"occupancy": [[[0.6]]], "threshold": 0.7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-Vertex-Count"))
	m, err := glb.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, m.Empty())

	rec = postVoxels(f, `{"occupancy": [[[1,0],[0,1]],[[0,0],[1,1]]], "save": true, "filename": "grid.glb"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get("X-Model-ID")
	require.NotEmpty(t, id)
	saved, err := f.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "grid.glb", saved.Filename)
	assert.Equal(t, 32, saved.Vertices)
}

func TestVoxels_Errors(t *testing.T) {
	f := newFixture(t, cornerBackend, false)

	tests := []struct {
		name string
		body string
		kind string
	}{
		{"not json", `{"occupancy":`, ""},
		{"missing grid", `{}`, ""},
		{"ragged grid", `{"occupancy": [[[1,0]],[[0,1]]]}`, reconerr.InvalidOccupancy.String()},
		{"empty grid", `{"occupancy": []}`, reconerr.InvalidOccupancy.String()},
		{"threshold out of range", `{"occupancy": [[[0.5]]], "threshold": 1.5}`, reconerr.InvalidOccupancy.String()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postVoxels(f, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			if tc.kind != "" {
				assert.Equal(t, tc.kind, decodeJSON(t, rec)["kind"])
			}
		})
	}
	assert.Equal(t, 0, f.reporter.count())
}

func TestModels_Lifecycle(t *testing.T) {
	f := newFixture(t, cornerBackend, true)

	rec := serve(f, uploadRequest(t, [][]byte{pngBytes(t, 8, 8)}, map[string]string{"save": "true", "filename": "mug.glb"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := rec.Header().Get("X-Model-ID")
	require.NotEmpty(t, id)
	uploaded := rec.Body.Bytes()

	rec = serve(f, httptest.NewRequest(http.MethodGet, "/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Models []store.Model `json:"models"`
		Count  int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, id, list.Models[0].ID)
	assert.Equal(t, "mug.glb", list.Models[0].Filename)
	assert.Equal(t, 1, list.Models[0].Views)

	rec = serve(f, httptest.NewRequest(http.MethodGet, "/models/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uploaded, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "mug.glb")

	rec = serve(f, httptest.NewRequest(http.MethodGet, "/models/"+id+"/stl", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "model/stl", rec.Header().Get("Content-Type"))
	assert.Len(t, rec.Body.Bytes(), 80+4+50*12)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "mug.stl")

	rec = serve(f, httptest.NewRequest(http.MethodDelete, "/models/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(f, httptest.NewRequest(http.MethodGet, "/models/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(f, httptest.NewRequest(http.MethodDelete, "/models/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModels_BadQuery(t *testing.T) {
	f := newFixture(t, cornerBackend, true)
	for _, q := range []string{"?limit=0", "?limit=abc", "?offset=-1"} {
		rec := serve(f, httptest.NewRequest(http.MethodGet, "/models"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestModels_PersistenceDisabled(t *testing.T) {
	f := newFixture(t, cornerBackend, false)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/models", nil),
		httptest.NewRequest(http.MethodGet, "/models/abc", nil),
		httptest.NewRequest(http.MethodGet, "/models/abc/stl", nil),
		httptest.NewRequest(http.MethodDelete, "/models/abc", nil),
	} {
		rec := serve(f, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, req.URL.Path)
	}
}

func TestServer_EndToEndWithResty(t *testing.T) {
	f := newFixture(t, cornerBackend, true)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	client := resty.New().SetBaseURL(srv.URL)
	img := pngBytes(t, 10, 6)
	resp, err := client.R().
		SetFileReader("images[]", "front.png", bytes.NewReader(img)).
		SetFileReader("images[]", "side.png", bytes.NewReader(img)).
		SetFormData(map[string]string{
			"save": "true",
		}).Post("/upload")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())
	id := resp.Header().Get("X-Model-ID")
	require.NotEmpty(t, id)

	m, err := glb.Decode(resp.Body())
	require.NoError(t, err)
	assert.Len(t, m.Triangles, 12)

	var health map[string]interface{}
	resp, err = client.R().SetResult(&health).Get("/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "healthy", health["status"])

	resp, err = client.R().Get("/models/" + id)
	require.NoError(t, err)
	assert.Equal(t, m.Vertices, mustDecode(t, resp.Body()).Vertices)
}

func mustDecode(t *testing.T, data []byte) *mesh.Mesh {
	t.Helper()
	m, err := glb.Decode(data)
	require.NoError(t, err)
	return m
}
