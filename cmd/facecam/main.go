// cmd/facecam/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AlverezYari/facecam/internal/config"
	"github.com/AlverezYari/facecam/internal/control"
	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/imaging"
	"github.com/AlverezYari/facecam/internal/logging"
	"github.com/AlverezYari/facecam/internal/pipeline"
	"github.com/AlverezYari/facecam/internal/recognition"
	"github.com/AlverezYari/facecam/internal/server"
	"github.com/AlverezYari/facecam/pkg/camera"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/facecam/config.json)")
	flag.Parse()

	// Load the configuration
	var (
		cfg *config.AppConfig
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, ring, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, ring); err != nil {
		logger.Error("facecam stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger *zap.Logger, ring *logging.Ring) error {
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	cam, err := openCamera(cfg.Camera, logger)
	if err != nil {
		return fmt.Errorf("opening camera: %w", err)
	}
	source := camera.NewExclusive(cam.source)
	defer source.Close()

	pool := imaging.NewPool()
	conv := imaging.NewConverter(pool, cam.codec)

	backend, err := openDetector(cfg.Detection)
	if err != nil {
		return fmt.Errorf("loading detector: %w", err)
	}
	detector, err := detect.NewEngine(backend, cfg.DetectConfig(), logger.Named("detect"))
	if err != nil {
		backend.Close()
		return fmt.Errorf("configuring detector: %w", err)
	}
	defer detector.Close()

	aligner, closeAligner, err := openAligner(cfg.Recognition)
	if err != nil {
		return fmt.Errorf("loading recognizer: %w", err)
	}
	defer closeAligner()

	state := control.NewState(control.Toggles{})
	gallery := recognition.NewGallery(cfg.Recognition.Capacity)
	recognizer := recognition.NewEngine(gallery, aligner, state, recognition.Options{
		ConfirmTimes:   cfg.Recognition.ConfirmTimes,
		MatchThreshold: cfg.Recognition.MatchThreshold,
	}, logger.Named("recognition"))

	opts := pipeline.DefaultOptions()
	opts.MaxDetectWidth = cfg.Detection.MaxDetectWidth
	opts.MaxFPS = cfg.Stream.MaxFPS
	pipe := pipeline.New(source, conv, detector, recognizer, state, opts, logger.Named("pipeline"))

	link, err := openRobot(cfg.Robot, logger.Named("robot"))
	if err != nil {
		return fmt.Errorf("opening robot link: %w", err)
	}
	defer link.Close()

	srv := server.New(server.Options{
		IP:              cfg.Server.IP,
		Port:            cfg.Server.Port,
		DetectOnConnect: cfg.Stream.DetectOnConnect,
		WriteTimeout:    time.Duration(cfg.Stream.WriteTimeoutMS) * time.Millisecond,
	}, server.Deps{
		Pipeline: pipe,
		Control:  control.NewSurface(state, cam.sensor, logger.Named("control")),
		Gallery:  gallery,
		Robot:    link,
		Camera:   source,
		Pool:     pool,
		Logs:     ring,
	}, logger.Named("server"))

	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("facecam ready",
		zap.String("camera", cfg.Camera.Driver),
		zap.String("detector", cfg.Detection.Backend),
		zap.String("recognizer", cfg.Recognition.Backend),
		zap.Int("port", cfg.Server.Port),
		zap.Int("stream_port", cfg.StreamPort()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return srv.Stop()
}
