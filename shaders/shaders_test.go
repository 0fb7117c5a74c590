package shaders_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frame-engine/renderer"
	"frame-engine/shaders"
	"frame-engine/vulkan"
)

var _ renderer.ShaderProgram = (*shaders.Program)(nil)

// module returns a minimal SPIR-V header followed by tag.
func module(tag uint32) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint32(b[0:], 0x07230203)
	binary.LittleEndian.PutUint32(b[4:], 0x00010000)
	binary.LittleEndian.PutUint32(b[20:], tag)
	return b
}

func writeProgram(t *testing.T, dir, name string, vert, frag []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".vert.spv"), vert, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".frag.spv"), frag, 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeProgram(t, dir, "mesh", module(1), module(2))

	opts := shaders.Options{
		Layout: vulkan.VertexLayout{Stride: 24, Attributes: []vulkan.VertexAttribute{
			{Location: 0, Format: vulkan.FormatR32G32B32Sfloat},
		}},
		PushConstant: vulkan.PushConstantRange{Stages: vulkan.ShaderStageVertex, Size: 64},
	}
	p, err := shaders.Load(dir, "mesh", opts)
	require.NoError(t, err)

	vert, frag := p.Code()
	assert.Equal(t, module(1), vert)
	assert.Equal(t, module(2), frag)
	assert.Equal(t, "mesh", p.Name())
	assert.Equal(t, opts.Layout, p.VertexLayout())
	assert.Equal(t, opts.PushConstant, p.PushConstantRange())
	assert.Empty(t, p.Descriptors())
}

func TestLoadRejectsInvalidModules(t *testing.T) {
	dir := t.TempDir()

	_, err := shaders.Load(dir, "missing", shaders.Options{})
	assert.ErrorContains(t, err, "failed to read shader module")

	writeProgram(t, dir, "short", module(1), []byte{3, 2, 35, 7})
	_, err = shaders.Load(dir, "short", shaders.Options{})
	assert.ErrorIs(t, err, shaders.ErrInvalidSPIRV)

	bad := module(1)
	bad[0] = 0
	writeProgram(t, dir, "magic", bad, module(2))
	_, err = shaders.Load(dir, "magic", shaders.Options{})
	assert.ErrorIs(t, err, shaders.ErrInvalidSPIRV)
}

func TestReloadKeepsCodeOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeProgram(t, dir, "mesh", module(1), module(2))
	p, err := shaders.Load(dir, "mesh", shaders.Options{})
	require.NoError(t, err)

	writeProgram(t, dir, "mesh", module(3), module(4))
	require.NoError(t, p.Reload())
	vert, frag := p.Code()
	assert.Equal(t, module(3), vert)
	assert.Equal(t, module(4), frag)

	writeProgram(t, dir, "mesh", module(5), []byte("not spirv"))
	assert.Error(t, p.Reload())
	vert, _ = p.Code()
	assert.Equal(t, module(3), vert)
}

func TestUniformReservation(t *testing.T) {
	dir := t.TempDir()
	writeProgram(t, dir, "mesh", module(1), module(2))
	p, err := shaders.Load(dir, "mesh", shaders.Options{})
	require.NoError(t, err)

	assert.True(t, p.TryReserveUniform(1))
	assert.False(t, p.TryReserveUniform(1))
	assert.True(t, p.TryReserveUniform(2))
	assert.False(t, p.TryReserveUniform(2))

	p.ClearReservations()
	assert.True(t, p.TryReserveUniform(2))
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	writeProgram(t, dir, "mesh", module(1), module(2))
	writeProgram(t, dir, "other", module(7), module(8))
	mesh, err := shaders.Load(dir, "mesh", shaders.Options{})
	require.NoError(t, err)
	other, err := shaders.Load(dir, "other", shaders.Options{})
	require.NoError(t, err)

	reloads := make(chan []*shaders.Program, 4)
	w, err := shaders.NewWatcher(20*time.Millisecond, func(ps []*shaders.Program) {
		reloads <- ps
	}, mesh, other)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	writeProgram(t, dir, "mesh", module(3), module(4))

	select {
	case ps := <-reloads:
		assert.Equal(t, []*shaders.Program{mesh}, ps)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
	vert, frag := mesh.Code()
	assert.Equal(t, module(3), vert)
	assert.Equal(t, module(4), frag)
	vert, _ = other.Code()
	assert.Equal(t, module(7), vert)

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	select {
	case ps := <-reloads:
		t.Fatalf("unexpected reload of %d programs", len(ps))
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestCompileWithoutCompiler(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	dir := t.TempDir()

	err := shaders.Compile(t.Context(), filepath.Join(dir, "a.vert"), filepath.Join(dir, "a.vert.spv"))
	assert.ErrorIs(t, err, shaders.ErrNoCompiler)

	assert.ErrorIs(t, shaders.WriteDefault(t.Context(), dir, "mesh"), shaders.ErrNoCompiler)
	src, err := os.ReadFile(filepath.Join(dir, "mesh.vert"))
	require.NoError(t, err)
	assert.Equal(t, shaders.DefaultVertexGLSL, string(src))

	// Existing modules are not compiled again.
	writeProgram(t, dir, "ready", module(1), module(2))
	assert.NoError(t, shaders.WriteDefault(t.Context(), dir, "ready"))
}
