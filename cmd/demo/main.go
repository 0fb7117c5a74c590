// Command demo renders a spinning cube, or a glTF or OBJ scene, through the
// frame loop. It falls back to OpenGL when no Vulkan device can be set up.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/renderer"
	"frame-engine/scene"
)

func main() {
	configPath := flag.String("config", "engine.toml", "TOML or YAML config file")
	scenePath := flag.String("scene", "", "glTF or OBJ scene to load instead of the config's")
	backend := flag.String("backend", "", "auto, vulkan or opengl")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}
	if *scenePath != "" {
		cfg.Scene = *scenePath
	}
	if *backend != "" {
		cfg.GPU.Backend = *backend
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "demo: %v\n", err)
			os.Exit(1)
		}
	}

	logger, err := core.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}
	core.SetLogger(logger)

	if err := run(cfg); err != nil {
		core.Logger().Error("demo failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg core.Config) error {
	if cfg.GPU.Backend == "opengl" {
		return runOpenGL(cfg)
	}

	app, err := newVulkanApp(cfg)
	if err != nil {
		if cfg.GPU.Backend == "vulkan" {
			return err
		}
		core.Logger().Warn("vulkan unavailable, falling back to OpenGL", "err", err)
		return runOpenGL(cfg)
	}
	defer app.destroy()
	return app.run()
}

// loadScene builds the meshes from cfg.Scene, or a cube when no scene is
// configured, and a camera framing them.
func loadScene(cfg core.Config, prog renderer.ShaderProgram) (*scene.Camera, []*scene.Mesh, error) {
	aspect := float32(cfg.Window.Width) / float32(cfg.Window.Height)
	camera := scene.NewCamera(mgl32.DegToRad(60), aspect, 0.1, 100)
	camera.Orbit = 0.005

	if cfg.Scene == "" {
		cube := scene.CreateCube(1.5, prog, camera)
		cube.Spin = 0.01
		camera.LookAt(mgl32.Vec3{3, 2, 3}, mgl32.Vec3{})
		return camera, []*scene.Mesh{cube}, nil
	}

	load := scene.LoadGLTF
	if strings.EqualFold(filepath.Ext(cfg.Scene), ".obj") {
		load = scene.LoadOBJ
	}
	meshes, err := load(cfg.Scene, prog, camera)
	if err != nil {
		return nil, nil, err
	}
	if len(meshes) == 0 {
		return nil, nil, errors.Errorf("scene %s has no drawable meshes", cfg.Scene)
	}

	lo, hi := meshes[0].Bounds().Min, meshes[0].Bounds().Max
	for _, m := range meshes[1:] {
		b := m.Bounds()
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], b.Min[i])
			hi[i] = max(hi[i], b.Max[i])
		}
	}
	center := lo.Add(hi).Mul(0.5)
	radius := max(hi.Sub(lo).Len(), 1)
	camera.LookAt(center.Add(mgl32.Vec3{radius, radius * 0.6, radius}), center)
	return camera, meshes, nil
}

var clearColors = []core.Color{
	{R: 0.1, G: 0.1, B: 0.12, A: 1},
	{R: 0.02, G: 0.05, B: 0.15, A: 1},
	{R: 0.2, G: 0.2, B: 0.2, A: 1},
	core.ColorBlack,
}

// nextClearColor returns the color after c in clearColors.
func nextClearColor(c core.Color) core.Color {
	for i, cc := range clearColors {
		if cc == c {
			return clearColors[(i+1)%len(clearColors)]
		}
	}
	return clearColors[0]
}

func isQuitKey(key glfw.Key) bool {
	return key == glfw.KeyEscape || key == glfw.KeyQ
}
