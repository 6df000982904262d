package export

import (
	"errors"
	"strings"

	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/chazu/floorplan3d/pkg/tessellate"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// Part colours follow the plan viewer: light gray walls, green stairs.
var (
	wallColor  = mustHex("#d3d3d3")
	stairColor = mustHex("#008000")
)

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func partColor(name string) colorful.Color {
	if strings.HasPrefix(name, tessellate.StairPrefix) {
		return stairColor
	}
	return wallColor
}

// writeGLTF writes one node and mesh per part. binary selects GLB.
func writeGLTF(path string, parts []*kernel.Mesh, binary bool) error {
	op := "gltf"
	if binary {
		op = "glb"
	}
	doc, err := Document(parts)
	if err != nil {
		return &Error{Path: path, Op: op, Err: err}
	}
	if binary {
		err = gltf.SaveBinary(doc, path)
	} else {
		err = gltf.Save(doc, path)
	}
	if err != nil {
		return &Error{Path: path, Op: op, Err: err}
	}
	return nil
}

// Document builds the glTF scene for parts.
func Document(parts []*kernel.Mesh) (*gltf.Document, error) {
	doc := gltf.NewDocument()
	materials := map[colorful.Color]int{}

	for _, m := range parts {
		if m.IsEmpty() {
			continue
		}
		positions := make([][3]float32, m.VertexCount())
		normals := make([][3]float32, m.VertexCount())
		for i := range positions {
			positions[i] = [3]float32{m.Vertices[i*3], m.Vertices[i*3+1], m.Vertices[i*3+2]}
			if len(m.Normals) == len(m.Vertices) {
				normals[i] = [3]float32{m.Normals[i*3], m.Normals[i*3+1], m.Normals[i*3+2]}
			}
		}

		col := partColor(m.PartName)
		mat, ok := materials[col]
		if !ok {
			r, g, b := col.LinearRgb()
			doc.Materials = append(doc.Materials, &gltf.Material{
				Name: col.Hex(),
				PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
					BaseColorFactor: &[4]float64{r, g, b, 1},
					MetallicFactor:  gltf.Float(0),
					RoughnessFactor: gltf.Float(0.9),
				},
			})
			mat = len(doc.Materials) - 1
			materials[col] = mat
		}

		attrs := map[string]int{
			"POSITION": modeler.WritePosition(doc, positions),
			"NORMAL":   modeler.WriteNormal(doc, normals),
		}
		doc.Meshes = append(doc.Meshes, &gltf.Mesh{
			Name: m.PartName,
			Primitives: []*gltf.Primitive{{
				Indices:    gltf.Index(modeler.WriteIndices(doc, m.Indices)),
				Attributes: attrs,
				Material:   gltf.Index(mat),
			}},
		})
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: m.PartName, Mesh: gltf.Index(len(doc.Meshes) - 1)})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	}
	if len(doc.Meshes) == 0 {
		return nil, errors.New("no meshes to write")
	}
	return doc, nil
}
