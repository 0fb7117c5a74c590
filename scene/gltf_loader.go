package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"frame-engine/core"
	"frame-engine/renderer"
)

// LoadGLTF opens a .glb or .gltf file and returns one mesh per primitive
// instance of the default scene, each with its node's world transform.
// Vertex colors come from COLOR_0, or else from the material's base color.
func LoadGLTF(path string, prog renderer.ShaderProgram, camera *Camera) ([]*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "gltf open %q", path)
	}

	// Vertex data is shared by every node that instances the same mesh.
	type primitive struct {
		name     string
		vertices []Vertex
		indices  []uint32
	}
	prims := make([][]primitive, len(doc.Meshes))
	for mi, gm := range doc.Meshes {
		for pi, prim := range gm.Primitives {
			vertices, indices, err := loadGLTFPrimitive(doc, prim)
			if err != nil {
				core.Logger().Warn("gltf primitive skipped", "mesh", mi, "primitive", pi, "err", err)
				continue
			}
			name := fmt.Sprintf("%s_p%d", gm.Name, pi)
			if gm.Name == "" {
				name = fmt.Sprintf("mesh%d_p%d", mi, pi)
			}
			prims[mi] = append(prims[mi], primitive{name, vertices, indices})
		}
	}

	var meshes []*Mesh
	var visit func(idx int, parent mgl32.Mat4, depth int)
	visit = func(idx int, parent mgl32.Mat4, depth int) {
		if idx < 0 || idx >= len(doc.Nodes) || depth > len(doc.Nodes) {
			return
		}
		gn := doc.Nodes[idx]
		world := parent.Mul4(localTransform(gn))
		if gn.Mesh != nil && *gn.Mesh < len(prims) {
			for _, p := range prims[*gn.Mesh] {
				m := NewMesh(p.name, p.vertices, p.indices, prog, camera)
				m.SetTransform(world)
				meshes = append(meshes, m)
			}
		}
		for _, child := range gn.Children {
			visit(child, world, depth+1)
		}
	}
	for _, root := range rootNodes(doc) {
		visit(root, mgl32.Ident4(), 0)
	}
	if len(meshes) == 0 {
		return nil, errors.Errorf("gltf %q has no drawable meshes", path)
	}
	core.Logger().Info("gltf loaded", "path", path, "meshes", len(meshes))
	return meshes, nil
}

// rootNodes returns the nodes of the default scene, or every parentless
// node when the file has none.
func rootNodes(doc *gltf.Document) []int {
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene].Nodes
	}
	hasParent := make([]bool, len(doc.Nodes))
	for _, gn := range doc.Nodes {
		for _, c := range gn.Children {
			if c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !hasParent[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func localTransform(gn *gltf.Node) mgl32.Mat4 {
	t := gn.TranslationOrDefault()
	r := gn.RotationOrDefault() // [x, y, z, w]
	s := gn.ScaleOrDefault()
	rot := mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
	return mgl32.Translate3D(float32(t[0]), float32(t[1]), float32(t[2])).
		Mul4(rot.Mat4()).
		Mul4(mgl32.Scale3D(float32(s[0]), float32(s[1]), float32(s[2])))
}

func loadGLTFPrimitive(doc *gltf.Document, prim *gltf.Primitive) ([]Vertex, []uint32, error) {
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return nil, nil, errors.New("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "positions")
	}

	base := mgl32.Vec3{1, 1, 1}
	if prim.Material != nil && *prim.Material < len(doc.Materials) {
		if pbr := doc.Materials[*prim.Material].PBRMetallicRoughness; pbr != nil {
			cf := pbr.BaseColorFactorOrDefault()
			base = mgl32.Vec3{float32(cf[0]), float32(cf[1]), float32(cf[2])}
		}
	}
	var colors []mgl32.Vec3
	if idx, ok := prim.Attributes["COLOR_0"]; ok {
		if colors, err = readColors(doc, doc.Accessors[idx]); err != nil {
			return nil, nil, errors.Wrap(err, "colors")
		}
	}

	vertices := make([]Vertex, len(positions))
	for i, p := range positions {
		vertices[i] = Vertex{Position: mgl32.Vec3{p[0], p[1], p[2]}, Color: base}
		if i < len(colors) {
			vertices[i].Color = colors[i]
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, nil, errors.Wrap(err, "indices")
		}
	}
	return vertices, indices, nil
}

// readColors reads COLOR_0 in any of the encodings glTF allows.
func readColors(doc *gltf.Document, acc *gltf.Accessor) ([]mgl32.Vec3, error) {
	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		return nil, err
	}
	var out []mgl32.Vec3
	switch c := data.(type) {
	case [][3]float32:
		for _, v := range c {
			out = append(out, mgl32.Vec3{v[0], v[1], v[2]})
		}
	case [][4]float32:
		for _, v := range c {
			out = append(out, mgl32.Vec3{v[0], v[1], v[2]})
		}
	case [][3]uint8:
		for _, v := range c {
			out = append(out, mgl32.Vec3{float32(v[0]) / 255, float32(v[1]) / 255, float32(v[2]) / 255})
		}
	case [][4]uint8:
		for _, v := range c {
			out = append(out, mgl32.Vec3{float32(v[0]) / 255, float32(v[1]) / 255, float32(v[2]) / 255})
		}
	case [][3]uint16:
		for _, v := range c {
			out = append(out, mgl32.Vec3{float32(v[0]) / 65535, float32(v[1]) / 65535, float32(v[2]) / 65535})
		}
	case [][4]uint16:
		for _, v := range c {
			out = append(out, mgl32.Vec3{float32(v[0]) / 65535, float32(v[1]) / 65535, float32(v[2]) / 65535})
		}
	default:
		return nil, errors.Errorf("unsupported color type %T", data)
	}
	return out, nil
}
