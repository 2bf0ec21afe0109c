//go:build !linux

package main

import (
	"fmt"

	"github.com/AlverezYari/facecam/pkg/camera"
)

func openV4L(string, camera.StreamConfig) (openedCamera, error) {
	return openedCamera{}, fmt.Errorf("v4l2 driver is only available on linux: %w", camera.ErrCameraUnavailable)
}
