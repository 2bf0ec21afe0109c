package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/AlverezYari/facecam/internal/config"
	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/detect/cvdetect"
	"github.com/AlverezYari/facecam/internal/imaging"
	"github.com/AlverezYari/facecam/internal/recognition"
	"github.com/AlverezYari/facecam/internal/recognition/dlib"
	"github.com/AlverezYari/facecam/internal/robot"
	"github.com/AlverezYari/facecam/pkg/camera"
	"github.com/AlverezYari/facecam/pkg/camera/cvcam"
	"github.com/AlverezYari/facecam/pkg/camera/mjpegsrc"
)

type openedCamera struct {
	source camera.FrameSource
	sensor camera.Sensor
	codec  imaging.Codec
}

func openCamera(cfg config.CameraConfig, logger *zap.Logger) (openedCamera, error) {
	format, err := camera.ParsePixelFormat(cfg.PixelFormat)
	if err != nil {
		return openedCamera{}, err
	}
	width, height, err := config.ParseResolution(cfg.Resolution)
	if err != nil {
		return openedCamera{}, err
	}
	stream := camera.StreamConfig{Width: width, Height: height, Framerate: cfg.FPS, PixelFormat: format}

	switch cfg.Driver {
	case "pattern":
		sensor := camera.NewSimulatedSensor(format)
		sensor.SetFrameSize(camera.NearestFrameSize(width, height))
		return openedCamera{source: camera.NewPatternSource(sensor, cfg.FPS), sensor: sensor}, nil

	case "opencv":
		if devices, err := cvcam.ScanDevices(); err == nil {
			for _, d := range devices {
				logger.Info("found camera", zap.String("id", d.ID), zap.String("name", d.Name))
			}
		}
		src, err := cvcam.Open(cfg.DeviceID, stream)
		if err != nil {
			return openedCamera{}, err
		}
		return openedCamera{source: src, sensor: src.Sensor(), codec: cvcam.Codec{}}, nil

	case "v4l2":
		return openV4L(cfg.DeviceID, stream)

	case "mjpeg":
		src := mjpegsrc.New(cfg.URL, nil)
		return openedCamera{source: src, sensor: src.Sensor()}, nil
	}
	return openedCamera{}, fmt.Errorf("unknown camera driver %q", cfg.Driver)
}

func openDetector(cfg config.DetectionConfig) (detect.Backend, error) {
	switch cfg.Backend {
	case "pigo":
		if cfg.CascadePath == "" {
			b, err := detect.DefaultPigoBackend()
			if err != nil {
				return nil, err
			}
			return b, nil
		}
		b, err := detect.LoadPigoBackend(cfg.CascadePath)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "opencv":
		b, err := cvdetect.New(cfg.CascadePath)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return detect.NopBackend{}, nil
}

func openAligner(cfg config.RecognitionConfig) (recognition.Aligner, func(), error) {
	if cfg.Backend == "dlib" {
		a, err := dlib.New(cfg.ModelDir)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	}
	return recognition.NewLandmarkAligner(), func() {}, nil
}

func openRobot(cfg config.RobotConfig, logger *zap.Logger) (robot.Link, error) {
	if cfg.Device == "" {
		return robot.NewLogLink(logger), nil
	}
	return robot.OpenSerial(cfg.Device, cfg.Baud, logger)
}
