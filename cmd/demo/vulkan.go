package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/engine"
	"frame-engine/internal/vkdev"
	"frame-engine/renderer"
	"frame-engine/scene"
	"frame-engine/shaders"
	"frame-engine/vulkan"
	"frame-engine/window"
)

const programName = "mesh"

type vulkanApp struct {
	cfg core.Config

	win     *window.Window
	dev     *vkdev.Device
	pools   *vulkan.CommandPoolRegistry
	swap    *vulkan.SwapchainManager
	prog    *shaders.Program
	camera  *scene.Camera
	meshes  []*scene.Mesh
	unit    *renderer.Unit
	loop    *engine.Loop
	watcher *shaders.Watcher

	clear core.Color
}

// newVulkanApp brings up the window, device, swapchain and renderer and
// registers the renderer with a new loop. On error everything created so
// far is released again.
func newVulkanApp(cfg core.Config) (app *vulkanApp, err error) {
	a := &vulkanApp{cfg: cfg, clear: cfg.ClearColor}
	defer func() {
		if err != nil {
			a.destroy()
		}
	}()

	if a.win, err = window.New(cfg.Window, window.APIVulkan); err != nil {
		return nil, err
	}
	a.dev, err = vkdev.New(a.win, vkdev.Options{
		AppName:    cfg.Window.Title,
		Validation: cfg.GPU.Validation,
	})
	if err != nil {
		return nil, err
	}

	a.pools = vulkan.NewCommandPoolRegistry()
	a.swap = vulkan.NewSwapchainManager(a.pools, vulkan.SwapchainOptions{
		ImageCount: cfg.Swapchain.ImageCount,
		LowLatency: cfg.Swapchain.LowLatency,
	})
	if err = a.swap.Init(a.dev, a.win); err != nil {
		return nil, err
	}

	if err = shaders.WriteDefault(context.Background(), cfg.Shaders.Dir, programName); err != nil {
		return nil, err
	}
	a.prog, err = shaders.Load(cfg.Shaders.Dir, programName, shaders.Options{
		Layout:       scene.VertexLayout,
		PushConstant: scene.PushConstantRange,
	})
	if err != nil {
		return nil, err
	}

	if a.camera, a.meshes, err = loadScene(cfg, a.prog); err != nil {
		return nil, err
	}
	extent := a.swap.Extent()
	a.camera.UpdateAspectRatio(float32(extent.Width), float32(extent.Height))
	for _, m := range a.meshes {
		if err = m.Upload(a.dev); err != nil {
			return nil, err
		}
	}

	a.unit = renderer.NewUnit(a.dev, a.swap, renderer.Options{
		Name:                 "scene",
		DepthTest:            true,
		DynamicPushConstants: cfg.Loop.DynamicPushConstants,
	})
	a.unit.SetClearColor(a.clear)
	for _, m := range a.meshes {
		a.unit.Add(m)
	}

	a.loop = engine.New(a.dev, a.swap, a.pools, engine.OptionsFromConfig(cfg))
	if err = a.loop.AddRenderer(a.unit); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *vulkanApp) run() error {
	a.win.OnResize(func(e vulkan.Extent2D) {
		a.camera.UpdateAspectRatio(float32(e.Width), float32(e.Height))
		if err := a.loop.Resize(a.win); err != nil {
			core.Logger().Error("resize failed", "err", err)
		}
	})
	a.win.SetKeyCallback(a.key)

	if a.cfg.Shaders.Watch {
		w, err := shaders.NewWatcher(200*time.Millisecond, func(reloaded []*shaders.Program) {
			core.Logger().Info("shaders reloaded", "programs", len(reloaded))
			if err := a.loop.Rebuild(); err != nil {
				core.Logger().Error("rebuild after shader reload failed", "err", err)
			}
		}, a.prog)
		if err != nil {
			return err
		}
		a.watcher = w
	}

	if err := a.loop.Start(); err != nil {
		return err
	}

	last, lastFrames := time.Now(), uint64(0)
	for !a.win.ShouldClose() {
		a.win.WaitEvents(50 * time.Millisecond)
		a.win.WaitWhileMinimized()

		if err := a.restartIfOutOfDate(); err != nil {
			return err
		}

		if now := time.Now(); now.Sub(last) >= time.Second {
			frames := a.loop.RenderedFrames()
			fps := float64(frames-lastFrames) / now.Sub(last).Seconds()
			a.win.SetTitle(fmt.Sprintf("%s - %s - %.0f fps", a.cfg.Window.Title, a.dev.Name(), fps))
			last, lastFrames = now, frames
		}
	}
	return nil
}

// restartIfOutOfDate restarts the loop after the frame cycle ended on an out of date
// swapchain. Any other failure is returned.
func (a *vulkanApp) restartIfOutOfDate() error {
	err := a.loop.Err()
	if err == nil || a.loop.State() != engine.StateStopping {
		return nil
	}
	if !errors.Is(err, vulkan.ErrOutOfDate) {
		return err
	}
	core.Logger().Info("swapchain out of date, recreating")
	if err := a.loop.Stop(); err != nil {
		return err
	}
	if err := a.loop.Resize(a.win); err != nil {
		return err
	}
	return a.loop.Start()
}

func (a *vulkanApp) key(key glfw.Key) {
	switch {
	case isQuitKey(key):
		a.win.SetShouldClose(true)
	case key == glfw.KeySpace:
		var err error
		if a.loop.Running() {
			err = a.loop.Stop()
		} else {
			err = a.loop.Start()
		}
		if err != nil {
			core.Logger().Warn("pause toggle failed", "err", err)
		}
	case key == glfw.KeyC:
		a.clear = nextClearColor(a.clear)
		a.loop.SetClearColor(a.clear)
	case key == glfw.KeyR:
		if err := a.loop.Rebuild(); err != nil {
			core.Logger().Error("rebuild failed", "err", err)
		}
	}
}

// destroy releases everything in reverse order of creation. It is safe on
// a partially built app.
func (a *vulkanApp) destroy() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.loop != nil {
		a.loop.Close()
	}
	if a.dev != nil {
		if err := a.dev.WaitIdle(); err != nil {
			core.Logger().Warn("wait idle failed", "err", err)
		}
		if a.unit != nil {
			a.unit.Destroy()
		}
		for _, m := range a.meshes {
			m.Destroy()
		}
		if a.swap != nil && a.swap.Ready() {
			a.swap.Destroy()
		}
		a.pools.Cleanup(a.dev)
		a.dev.Destroy()
	}
	if a.win != nil {
		a.win.Destroy()
	}
}
