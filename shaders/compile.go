package shaders

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"frame-engine/core"
)

var ErrNoCompiler = errors.New("shaders: no shader compiler found (glslc or glslangValidator)")

// Compile compiles the GLSL file src to the SPIR-V file dst. The stage is
// taken from the extension of src (.vert, .frag). glslc is preferred over
// glslangValidator.
func Compile(ctx context.Context, src, dst string) error {
	var cmd *exec.Cmd
	if path, err := exec.LookPath("glslc"); err == nil {
		cmd = exec.CommandContext(ctx, path, src, "-o", dst, "-O")
	} else if path, err := exec.LookPath("glslangValidator"); err == nil {
		cmd = exec.CommandContext(ctx, path, "-V", src, "-o", dst)
	} else {
		return ErrNoCompiler
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "shader compilation failed for %s: %s", src, output)
	}
	return nil
}

// WriteDefault writes the built-in mesh program's GLSL sources to dir and
// compiles them to a program named name, unless the SPIR-V modules exist
// already.
func WriteDefault(ctx context.Context, dir, name string) error {
	vertSpv := filepath.Join(dir, name+".vert.spv")
	fragSpv := filepath.Join(dir, name+".frag.spv")
	if exists(vertSpv) && exists(fragSpv) {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create shader dir")
	}

	for _, s := range []struct {
		src, dst, code string
	}{
		{filepath.Join(dir, name+".vert"), vertSpv, DefaultVertexGLSL},
		{filepath.Join(dir, name+".frag"), fragSpv, DefaultFragmentGLSL},
	} {
		if err := os.WriteFile(s.src, []byte(s.code), 0o644); err != nil {
			return errors.Wrap(err, "failed to write shader source")
		}
		if err := Compile(ctx, s.src, s.dst); err != nil {
			return err
		}
	}
	core.Logger().Info("default shaders compiled", "dir", dir, "program", name)
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DefaultVertexGLSL transforms position and color vertices by a model-view-
// projection matrix passed as a push constant.
const DefaultVertexGLSL = `#version 450

layout(push_constant) uniform Push {
    mat4 mvp;
} push;

layout(location = 0) in vec3 inPosition;
layout(location = 1) in vec3 inColor;

layout(location = 0) out vec3 fragColor;

void main() {
    gl_Position = push.mvp * vec4(inPosition, 1.0);
    fragColor = inColor;
}
`

const DefaultFragmentGLSL = `#version 450

layout(location = 0) in vec3 fragColor;
layout(location = 0) out vec4 outColor;

void main() {
    outColor = vec4(fragColor, 1.0);
}
`
