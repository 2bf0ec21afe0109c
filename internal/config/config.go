package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/AlverezYari/facecam/internal/detect"
)

type ServerConfig struct {
	IP string `json:"ip"`
	// Port serves the control API; the stream listens on Port+1.
	Port int `json:"port" validate:"min=1,max=65534"`
}

type CameraConfig struct {
	Driver      string `json:"driver" validate:"oneof=pattern opencv v4l2 mjpeg"`
	DeviceName  string `json:"device_name"`
	DeviceID    string `json:"device_id"`
	URL         string `json:"url" validate:"required_if=Driver mjpeg,omitempty,url"`
	PixelFormat string `json:"pixel_format" validate:"oneof=jpeg rgb565 yuv422 grayscale rgb888"`
	Resolution  string `json:"resolution" validate:"required"`
	FPS         int    `json:"fps" validate:"min=0,max=120"`
}

type StageConfig struct {
	ScoreThreshold float64 `json:"score_threshold" validate:"gte=0,lte=1"`
	NMSThreshold   float64 `json:"nms_threshold" validate:"gte=0,lte=1"`
	MaxCandidates  int     `json:"max_candidates" validate:"min=1"`
}

// DetectionConfig selects the face detector. CascadePath is required for
// opencv; for pigo it replaces the embedded facefinder cascade.
type DetectionConfig struct {
	Backend        string        `json:"backend" validate:"oneof=pigo opencv none"`
	CascadePath    string        `json:"cascade_path" validate:"required_if=Backend opencv"`
	MinFaceSize    int           `json:"min_face_size" validate:"min=1"`
	PyramidScale   float64       `json:"pyramid_scale" validate:"gt=0,lt=1"`
	PyramidLevels  int           `json:"pyramid_levels" validate:"min=1"`
	Stages         []StageConfig `json:"stages" validate:"len=3,dive"`
	MaxDetectWidth int           `json:"max_detect_width" validate:"min=1"`
}

type RecognitionConfig struct {
	Backend        string  `json:"backend" validate:"oneof=landmark dlib"`
	ModelDir       string  `json:"model_dir" validate:"required_if=Backend dlib"`
	Capacity       int     `json:"capacity" validate:"min=1"`
	ConfirmTimes   int     `json:"confirm_times" validate:"min=1"`
	MatchThreshold float64 `json:"match_threshold" validate:"gte=0,lte=1"`
}

type StreamConfig struct {
	MaxFPS float64 `json:"max_fps" validate:"gte=0"`
	// DetectOnConnect turns detection on whenever a stream opens.
	DetectOnConnect bool `json:"detect_on_connect"`
	WriteTimeoutMS  int  `json:"write_timeout_ms" validate:"min=0"`
}

type RobotConfig struct {
	// Device is a serial device path. Empty logs commands instead.
	Device string `json:"device"`
	Baud   int    `json:"baud" validate:"oneof=9600 19200 38400 57600 115200 230400 460800 921600"`
}

type LogConfig struct {
	Level       string `json:"level" validate:"oneof=debug info warn error"`
	File        string `json:"file"`
	Development bool   `json:"development"`
}

type AppConfig struct {
	Server      ServerConfig      `json:"server"`
	Camera      CameraConfig      `json:"camera"`
	Detection   DetectionConfig   `json:"detection"`
	Recognition RecognitionConfig `json:"recognition"`
	Stream      StreamConfig      `json:"stream"`
	Robot       RobotConfig       `json:"robot"`
	Log         LogConfig         `json:"log"`
}

// Default config
func defaultConfig() *AppConfig {
	d := detect.DefaultConfig()
	stages := make([]StageConfig, len(d.Stages))
	for i, s := range d.Stages {
		stages[i] = StageConfig{ScoreThreshold: s.ScoreThreshold, NMSThreshold: s.NMSThreshold, MaxCandidates: s.MaxCandidates}
	}

	return &AppConfig{
		Server: ServerConfig{IP: "0.0.0.0", Port: 8080},
		Camera: CameraConfig{
			Driver:      "pattern",
			DeviceName:  "No Camera Configured",
			DeviceID:    "0",
			PixelFormat: "jpeg",
			Resolution:  "320x240",
			FPS:         25,
		},
		Detection: DetectionConfig{
			Backend:        "pigo",
			MinFaceSize:    d.Proposal().MinFaceSize,
			PyramidScale:   d.Proposal().PyramidScale,
			PyramidLevels:  d.Proposal().PyramidLevels,
			Stages:         stages,
			MaxDetectWidth: 400,
		},
		Recognition: RecognitionConfig{
			Backend:        "landmark",
			Capacity:       7,
			ConfirmTimes:   5,
			MatchThreshold: 0.55,
		},
		Stream: StreamConfig{WriteTimeoutMS: 5000},
		Robot:  RobotConfig{Baud: 115200},
		Log:    LogConfig{Level: "info", File: "facecam.log"},
	}
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return defaultConfig()
}

// Path returns ~/.config/facecam/config.json, creating the directory.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "facecam")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}
	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the config file from ~/.config/facecam, applies .env and
// FACECAM_* overrides and validates the result.
func Load() (*AppConfig, error) {
	configPath, err := Path()
	if err != nil {
		return nil, fmt.Errorf("error getting config path: %w", err)
	}
	return LoadFrom(configPath)
}

// LoadFrom is Load with an explicit file. A missing file yields defaults.
func LoadFrom(configPath string) (*AppConfig, error) {
	config := defaultConfig()

	configFile, err := os.Open(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("error opening config file: %w", err)
	default:
		defer configFile.Close()
		data, err := io.ReadAll(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Unmarshal over the defaults to fill in missing fields.
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error unmarshalling config file: %w", err)
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()
	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(c *AppConfig) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("FACECAM_IP", &c.Server.IP)
	str("FACECAM_CAMERA_DRIVER", &c.Camera.Driver)
	str("FACECAM_CAMERA_DEVICE", &c.Camera.DeviceID)
	str("FACECAM_CAMERA_URL", &c.Camera.URL)
	str("FACECAM_PIXEL_FORMAT", &c.Camera.PixelFormat)
	str("FACECAM_DETECTOR", &c.Detection.Backend)
	str("FACECAM_CASCADE", &c.Detection.CascadePath)
	str("FACECAM_RECOGNIZER", &c.Recognition.Backend)
	str("FACECAM_MODEL_DIR", &c.Recognition.ModelDir)
	str("FACECAM_ROBOT_DEVICE", &c.Robot.Device)
	str("FACECAM_LOG_LEVEL", &c.Log.Level)
	str("FACECAM_LOG_FILE", &c.Log.File)

	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", key, v, err)
		}
		*dst = n
		return nil
	}
	if err := num("FACECAM_PORT", &c.Server.Port); err != nil {
		return err
	}
	return num("FACECAM_ROBOT_BAUD", &c.Robot.Baud)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field rules.
func Validate(c *AppConfig) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, _, err := ParseResolution(c.Camera.Resolution); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the config to ~/.config/facecam.
func Save(config *AppConfig) error {
	configPath, err := Path()
	if err != nil {
		return fmt.Errorf("error getting config path: %w", err)
	}
	return SaveTo(configPath, config)
}

func SaveTo(configPath string, config *AppConfig) error {
	configBytes, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}
	if err := os.WriteFile(configPath, configBytes, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// ParseResolution splits "WIDTHxHEIGHT".
func ParseResolution(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("resolution %q is not WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("resolution %q has bad width", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("resolution %q has bad height", s)
	}
	return width, height, nil
}

// StreamPort is the port the multipart stream listens on.
func (c *AppConfig) StreamPort() int {
	return c.Server.Port + 1
}

// DetectConfig builds the detection engine configuration.
func (c *AppConfig) DetectConfig() detect.Config {
	var out detect.Config
	names := [3]string{"proposal", "refine", "output"}
	for i := range out.Stages {
		s := c.Detection.Stages[i]
		out.Stages[i] = detect.Stage{
			Name:           names[i],
			MinFaceSize:    c.Detection.MinFaceSize,
			PyramidScale:   c.Detection.PyramidScale,
			PyramidLevels:  c.Detection.PyramidLevels,
			ScoreThreshold: s.ScoreThreshold,
			NMSThreshold:   s.NMSThreshold,
			MaxCandidates:  s.MaxCandidates,
		}
	}
	return out
}
