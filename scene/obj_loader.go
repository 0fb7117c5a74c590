package scene

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/renderer"
)

var defaultOBJColor = mgl32.Vec3{0.8, 0.8, 0.8}

// LoadOBJ parses a Wavefront .obj file into one mesh per object or group.
// Faces are fan triangulated. Vertex colors come from the diffuse color
// (Kd) of the active material in the referenced .mtl files.
func LoadOBJ(path string, prog renderer.ShaderProgram, camera *Camera) ([]*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open OBJ file")
	}
	defer f.Close()

	type group struct {
		name     string
		vertices []Vertex
		indices  []uint32
		seen     map[string]uint32
	}
	newGroup := func(name string) *group {
		return &group{name: name, seen: make(map[string]uint32)}
	}

	var (
		positions []mgl32.Vec3
		groups    []*group
		materials = make(map[string]mgl32.Vec3)
		color     = defaultOBJColor
		material  string
	)
	cur := newGroup(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 || strings.HasPrefix(parts[0], "#") {
			continue
		}

		switch parts[0] {
		case "v":
			p, err := parseVec3(parts[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", path, line)
			}
			positions = append(positions, p)

		case "f":
			if len(parts) < 4 {
				return nil, errors.Errorf("%s:%d: face with %d vertices", path, line, len(parts)-1)
			}
			face := make([]uint32, 0, len(parts)-1)
			for _, corner := range parts[1:] {
				key := material + " " + corner
				if idx, ok := cur.seen[key]; ok {
					face = append(face, idx)
					continue
				}
				pos, err := facePosition(corner, positions)
				if err != nil {
					return nil, errors.Wrapf(err, "%s:%d", path, line)
				}
				idx := uint32(len(cur.vertices))
				cur.vertices = append(cur.vertices, Vertex{Position: pos, Color: color})
				cur.seen[key] = idx
				face = append(face, idx)
			}
			for i := 2; i < len(face); i++ {
				cur.indices = append(cur.indices, face[0], face[i-1], face[i])
			}

		case "o", "g":
			if len(cur.vertices) > 0 {
				groups = append(groups, cur)
			}
			name := "unnamed"
			if len(parts) > 1 {
				name = parts[1]
			}
			cur = newGroup(name)

		case "usemtl":
			if len(parts) > 1 {
				material = parts[1]
				color = defaultOBJColor
				if c, ok := materials[material]; ok {
					color = c
				}
			}

		case "mtllib":
			for _, name := range parts[1:] {
				mtlPath := filepath.Join(filepath.Dir(path), name)
				mtls, err := loadMTL(mtlPath)
				if err != nil {
					core.Logger().Warn("mtl file skipped", "path", mtlPath, "err", err)
					continue
				}
				for k, v := range mtls {
					materials[k] = v
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	if len(cur.vertices) > 0 {
		groups = append(groups, cur)
	}
	if len(groups) == 0 {
		return nil, errors.Errorf("no faces in OBJ file %s", path)
	}

	meshes := make([]*Mesh, len(groups))
	for i, g := range groups {
		meshes[i] = NewMesh(g.name, g.vertices, g.indices, prog, camera)
	}
	return meshes, nil
}

// loadMTL returns the diffuse color of every material in an .mtl file.
func loadMTL(path string) (map[string]mgl32.Vec3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]mgl32.Vec3)
	current := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		switch parts[0] {
		case "newmtl":
			current = parts[1]
			out[current] = defaultOBJColor
		case "Kd":
			if current == "" {
				continue
			}
			kd, err := parseVec3(parts[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "material %s", current)
			}
			out[current] = kd
		}
	}
	return out, scanner.Err()
}

func parseVec3(fields []string) (mgl32.Vec3, error) {
	var v mgl32.Vec3
	if len(fields) < 3 {
		return v, errors.Errorf("expected 3 components, got %d", len(fields))
	}
	for i := range 3 {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return v, errors.Wrapf(err, "component %d", i)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// facePosition resolves the position index of a "v/vt/vn" face vertex.
// Negative indices count back from the last position.
func facePosition(corner string, positions []mgl32.Vec3) (mgl32.Vec3, error) {
	ref, _, _ := strings.Cut(corner, "/")
	idx, err := strconv.Atoi(ref)
	if err != nil {
		return mgl32.Vec3{}, errors.Wrapf(err, "bad face vertex %q", corner)
	}
	if idx < 0 {
		idx = len(positions) + idx + 1
	}
	if idx < 1 || idx > len(positions) {
		return mgl32.Vec3{}, errors.Errorf("face vertex %q out of range", corner)
	}
	return positions[idx-1], nil
}
