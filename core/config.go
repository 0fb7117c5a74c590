package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "250ms" or "2s" in config files.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(b))
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Config struct {
	Window     WindowConfig    `toml:"window" yaml:"window"`
	Swapchain  SwapchainConfig `toml:"swapchain" yaml:"swapchain"`
	Loop       LoopConfig      `toml:"loop" yaml:"loop"`
	Shaders    ShadersConfig   `toml:"shaders" yaml:"shaders"`
	Log        LogConfig       `toml:"log" yaml:"log"`
	GPU        GPUConfig       `toml:"gpu" yaml:"gpu"`
	ClearColor Color           `toml:"clear_color" yaml:"clear_color"`
	Scene      string          `toml:"scene" yaml:"scene"`
}

type WindowConfig struct {
	Title     string `toml:"title" yaml:"title"`
	Width     int    `toml:"width" yaml:"width"`
	Height    int    `toml:"height" yaml:"height"`
	Resizable bool   `toml:"resizable" yaml:"resizable"`
}

type SwapchainConfig struct {
	ImageCount     uint32   `toml:"image_count" yaml:"image_count"`
	LowLatency     bool     `toml:"low_latency" yaml:"low_latency"`
	AcquireTimeout Duration `toml:"acquire_timeout" yaml:"acquire_timeout"`
}

type LoopConfig struct {
	// HandshakeTimeout bounds each wait of the render goroutine before it
	// re-checks for shutdown.
	HandshakeTimeout Duration `toml:"handshake_timeout" yaml:"handshake_timeout"`
	// FenceTimeout bounds each fence wait of the frame cycle.
	FenceTimeout Duration `toml:"fence_timeout" yaml:"fence_timeout"`
	// DynamicPushConstants re-records push constants for every frame.
	DynamicPushConstants bool `toml:"dynamic_push_constants" yaml:"dynamic_push_constants"`
}

type ShadersConfig struct {
	Dir   string `toml:"dir" yaml:"dir"`
	Watch bool   `toml:"watch" yaml:"watch"`
}

// GPUConfig selects the backend. "auto" tries Vulkan and falls back to
// OpenGL when the device or renderer cannot be initialized.
type GPUConfig struct {
	Backend    string `toml:"backend" yaml:"backend"`
	Validation bool   `toml:"validation" yaml:"validation"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{
			Title:     "Frame Engine",
			Width:     1280,
			Height:    720,
			Resizable: true,
		},
		Swapchain: SwapchainConfig{
			ImageCount:     3,
			AcquireTimeout: Duration(10 * time.Second),
		},
		Loop: LoopConfig{
			HandshakeTimeout: Duration(100 * time.Millisecond),
			FenceTimeout:     Duration(time.Second),
		},
		Shaders: ShadersConfig{
			Dir: "shaders",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		GPU: GPUConfig{
			Backend: "auto",
		},
		ClearColor: Color{0.1, 0.1, 0.12, 1},
	}
}

// LoadConfig reads path over DefaultConfig. Files ending in .yaml or .yml
// are YAML, anything else is TOML. An empty path or a missing file yields
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = toml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Errorf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Swapchain.AcquireTimeout <= 0 {
		return errors.New("swapchain.acquire_timeout must be positive")
	}
	if c.Loop.HandshakeTimeout <= 0 {
		return errors.New("loop.handshake_timeout must be positive")
	}
	if c.Loop.FenceTimeout <= 0 {
		return errors.New("loop.fence_timeout must be positive")
	}
	switch c.GPU.Backend {
	case "auto", "vulkan", "opengl":
	default:
		return errors.Errorf("unknown gpu.backend %q", c.GPU.Backend)
	}
	return nil
}
