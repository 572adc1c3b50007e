package scene

import (
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
)

// CloneMap records the original → clone identity of every material and texture
// produced by Clone.
type CloneMap struct {
	Materials map[material.Material]material.Material
	Textures  map[texture.Texture]texture.Texture
}

// Clone deep-copies a set of scenes. Materials and textures are cloned once each,
// so objects shared in the originals stay shared among the clones, and clone
// materials are rebound to the clone textures.
//
// Parameters:
//   - scenes: the scenes to copy
//
// Returns:
//   - []Scene: the copies, in the same order
//   - *CloneMap: the original → clone mapping
func Clone(scenes []Scene) ([]Scene, *CloneMap) {
	cm := &CloneMap{
		Materials: make(map[material.Material]material.Material),
		Textures:  make(map[texture.Texture]texture.Texture),
	}

	result := make([]Scene, len(scenes))
	for i, s := range scenes {
		if s == nil {
			continue
		}
		roots := s.Nodes()
		cloned := make([]*Node, len(roots))
		for j, root := range roots {
			cloned[j] = cm.cloneNode(root)
		}
		result[i] = NewScene(WithName(s.Name()), WithNodes(cloned...))
	}
	return result, cm
}

func (cm *CloneMap) cloneNode(node *Node) *Node {
	if node == nil {
		return nil
	}
	out := &Node{Name: node.Name}
	if node.Mesh != nil {
		mesh := &Mesh{Name: node.Mesh.Name, Materials: make([]material.Material, len(node.Mesh.Materials))}
		for i, m := range node.Mesh.Materials {
			mesh.Materials[i] = cm.material(m)
		}
		out.Mesh = mesh
	}
	for _, child := range node.Children {
		out.Children = append(out.Children, cm.cloneNode(child))
	}
	return out
}

func (cm *CloneMap) material(m material.Material) material.Material {
	if m == nil {
		return nil
	}
	if existing, ok := cm.Materials[m]; ok {
		return existing
	}
	clone := m.Clone()
	for _, slot := range material.Slots {
		if tex := m.Map(slot); tex != nil {
			_ = clone.SetMap(slot, cm.texture(tex))
		}
	}
	cm.Materials[m] = clone
	return clone
}

func (cm *CloneMap) texture(t texture.Texture) texture.Texture {
	if existing, ok := cm.Textures[t]; ok {
		return existing
	}
	clone := t.Clone()
	cm.Textures[t] = clone
	return clone
}
