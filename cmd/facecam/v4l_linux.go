package main

import (
	"strings"

	"github.com/AlverezYari/facecam/pkg/camera"
	"github.com/AlverezYari/facecam/pkg/camera/v4l"
)

// openV4L accepts a device path or a bare index such as "0".
func openV4L(device string, cfg camera.StreamConfig) (openedCamera, error) {
	path := device
	if !strings.HasPrefix(path, "/") {
		path = "/dev/video" + device
	}
	src, err := v4l.Open(path, cfg)
	if err != nil {
		return openedCamera{}, err
	}
	return openedCamera{source: src, sensor: src.Sensor()}, nil
}
