// Package shaders loads SPIR-V shader programs from disk and reloads them
// when their files change.
package shaders

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/vulkan"
)

const spirvMagic = 0x07230203

var ErrInvalidSPIRV = errors.New("shaders: invalid SPIR-V module")

// Options are the fixed inputs of a program that the SPIR-V does not carry.
type Options struct {
	Layout       vulkan.VertexLayout
	PushConstant vulkan.PushConstantRange
	Descriptors  []vulkan.DescriptorBinding
}

// Program is a vertex and fragment module pair read from
// <dir>/<name>.vert.spv and <dir>/<name>.frag.spv.
type Program struct {
	name string
	dir  string
	opts Options

	mu       sync.RWMutex
	vertex   []byte
	fragment []byte

	resMu    sync.Mutex
	reserved bool
	frame    uint64
}

// Load reads the program name from dir.
func Load(dir, name string, opts Options) (*Program, error) {
	p := &Program{name: name, dir: dir, opts: opts}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload reads both modules again. On error the previous code is kept.
func (p *Program) Reload() error {
	vertPath, fragPath := p.Paths()
	vert, err := readModule(vertPath)
	if err != nil {
		return err
	}
	frag, err := readModule(fragPath)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.vertex, p.fragment = vert, frag
	p.mu.Unlock()
	core.Logger().Debug("shader program loaded", "program", p.name,
		"vertex", len(vert), "fragment", len(frag))
	return nil
}

func readModule(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read shader module")
	}
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, errors.Wrapf(ErrInvalidSPIRV, "%s: %d bytes", path, len(data))
	}
	if binary.LittleEndian.Uint32(data) != spirvMagic {
		return nil, errors.Wrapf(ErrInvalidSPIRV, "%s: bad magic", path)
	}
	return data, nil
}

// Paths returns the vertex and fragment module paths.
func (p *Program) Paths() (vertex, fragment string) {
	return filepath.Join(p.dir, p.name+".vert.spv"), filepath.Join(p.dir, p.name+".frag.spv")
}

func (p *Program) Name() string { return p.name }

func (p *Program) Code() (vertex, fragment []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vertex, p.fragment
}

func (p *Program) VertexLayout() vulkan.VertexLayout { return p.opts.Layout }

func (p *Program) PushConstantRange() vulkan.PushConstantRange { return p.opts.PushConstant }

func (p *Program) Descriptors() []vulkan.DescriptorBinding { return p.opts.Descriptors }

// TryReserveUniform gives the program's uniform slot to the first caller
// of each frame.
func (p *Program) TryReserveUniform(frame uint64) bool {
	p.resMu.Lock()
	defer p.resMu.Unlock()
	if p.reserved && p.frame == frame {
		return false
	}
	p.reserved = true
	p.frame = frame
	return true
}

func (p *Program) ClearReservations() {
	p.resMu.Lock()
	defer p.resMu.Unlock()
	p.reserved = false
	p.frame = 0
}
