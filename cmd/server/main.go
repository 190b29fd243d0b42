package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/swinvox-api/internal/config"
	"github.com/Brownie44l1/swinvox-api/internal/handlers"
	"github.com/Brownie44l1/swinvox-api/internal/model"
	"github.com/Brownie44l1/swinvox-api/internal/pipeline"
	"github.com/Brownie44l1/swinvox-api/internal/store"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "Path to a JSON config file")
	port := flag.Int("port", 0, "Port to listen on (overrides config and PORT)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	releaseMode := flag.Bool("release", false, "Run gin in release mode")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("[Main] Couldn't load config: ", err.Error())
		}
		cfg = loaded
	}
	if env := os.Getenv("PORT"); env != "" {
		p, err := strconv.Atoi(env)
		if err != nil {
			log.Fatalf("[Main] Invalid PORT %q", env)
		}
		cfg.Port = p
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *releaseMode {
		cfg.Release = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("[Main] Invalid configuration: ", err.Error())
	}
	log.SetLevel(cfg.Level())

	if cfg.Release {
		log.Info("[Main] Starting gin in release mode!")
		gin.SetMode(gin.ReleaseMode)
	}

	root, err := projectRoot()
	if err != nil {
		log.Fatal("[Main] Couldn't get working directory: ", err.Error())
	}
	modelPath := resolve(root, cfg.ModelPath)
	metadataPath := resolve(root, cfg.MetadataPath)

	var closers []io.Closer
	fatal := func(msg string, err error) {
		closeAll(closers)
		log.Fatal(msg, err.Error())
	}

	log.Info("[Main] Loading model from: ", modelPath)
	var backend model.Reconstructor
	onnx, err := model.NewONNXReconstructor(modelPath, metadataPath, cfg.OnnxLibraryPath)
	if err != nil {
		log.Warn("[Main] Reconstruction disabled: ", err.Error())
		backend = model.Unavailable{C: pipeline.ContractFor(cfg), Err: err}
	} else {
		closers = append(closers, onnx)
		backend = onnx
	}

	p, err := pipeline.New(cfg, backend)
	if err != nil {
		fatal("[Main] Couldn't build pipeline: ", err)
	}

	s, err := openStore(cfg, root)
	if err != nil {
		fatal("[Main] Couldn't open store: ", err)
	}
	if s != nil {
		closers = append(closers, s)
	}

	reporter, err := handlers.NewSentryReporter(cfg.SentryDSN, version)
	if err != nil {
		fatal("[Main] Couldn't set up Sentry: ", err)
	}

	h := handlers.NewHandler(p, s, reporter, handlers.Options{
		MaxViews:       cfg.MaxViews,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	router := h.Router()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithFields(log.Fields{
		"port":      cfg.Port,
		"grid_size": cfg.GridSize,
		"resize":    cfg.ResizePolicy,
		"healthy":   model.Available(backend),
	}).Info("[Main] Server starting")
	log.Info("[Main] Endpoints:")
	log.Info("  GET    /health          - Health check")
	log.Info("  POST   /upload          - Reconstruct a mesh from images[]")
	log.Info("  POST   /voxels          - Mesh an occupancy grid")
	log.Info("  GET    /models          - List saved models")
	log.Info("  GET    /models/:id      - Download a saved model (GLB)")
	log.Info("  GET    /models/:id/stl  - Download a saved model (STL)")
	log.Info("  DELETE /models/:id      - Delete a saved model")
	log.Infof("[Main] Upload test: curl -X POST -F \"images[]=@front.png\" -F \"images[]=@side.png\" http://localhost:%d/upload -o model.glb", cfg.Port)

	if err := router.Run(addr); err != nil {
		fatal("[Main] Server failed: ", err)
	}
}

// projectRoot is the working directory, or the repository root when run
// from cmd/server.
func projectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if filepath.Base(wd) == "server" {
		wd = filepath.Join(wd, "../..")
	}
	return wd, nil
}

func resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// closeAll closes resources in reverse order of acquisition. log.Fatal
// skips deferred calls, so fatal exits go through here.
func closeAll(closers []io.Closer) int {
	failed := 0
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.Warn("[Main] Couldn't release resource: ", err.Error())
			failed++
		}
	}
	return failed
}

// openStore returns nil when persistence is disabled by an empty db_path.
func openStore(cfg *config.Config, root string) (store.Store, error) {
	if cfg.DBPath == "" {
		log.Info("[Main] Persistence disabled")
		return nil, nil
	}
	sq, err := store.OpenSQLite(resolve(root, cfg.DBPath))
	if err != nil {
		return nil, err
	}
	if cfg.RedisAddress == "" {
		return sq, nil
	}
	log.Info("[Main] Caching models in redis at ", cfg.RedisAddress)
	pool := store.NewRedisPool(cfg.RedisAddress, 10)
	return store.NewRedisCache(sq, pool, time.Duration(cfg.RedisTTLSeconds)*time.Second), nil
}
