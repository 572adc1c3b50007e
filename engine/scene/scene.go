package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
)

// Mesh is a renderable object with one material per primitive.
type Mesh struct {
	// Name is the mesh name.
	Name string

	// Materials holds the material of each primitive, in primitive order.
	Materials []material.Material
}

// Node is a node of the renderer scene graph.
type Node struct {
	// Name is the node name.
	Name string

	// Mesh is the mesh attached to this node, or nil.
	Mesh *Mesh

	// Children are the child nodes.
	Children []*Node
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu    sync.RWMutex
	name  string
	nodes []*Node
}

// Scene is a renderer-native scene graph produced by a loader: a forest of nodes
// whose meshes reference materials. Materials and textures may be shared between
// meshes (and between scenes of the same asset).
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Nodes returns the root nodes of the scene.
	//
	// Returns:
	//   - []*Node: the root nodes
	Nodes() []*Node

	// Add appends root nodes to the scene.
	//
	// Parameters:
	//   - nodes: the nodes to add
	Add(nodes ...*Node)

	// Traverse calls fn for every node in pre-order, depth-first order.
	//
	// Parameters:
	//   - fn: the callback invoked for each node
	Traverse(fn func(node *Node))

	// Materials returns the distinct materials referenced by the scene, in traversal order.
	//
	// Returns:
	//   - []material.Material: the distinct materials
	Materials() []material.Material

	// Textures returns the distinct textures bound to the scene's materials, in traversal order.
	//
	// Returns:
	//   - []texture.Texture: the distinct textures
	Textures() []texture.Texture
}

var _ Scene = &scene{}

// NewScene creates a new Scene with the provided options applied.
//
// Parameters:
//   - options: a variadic list of SceneBuilderOption functions
//
// Returns:
//   - Scene: the new scene
func NewScene(options ...SceneBuilderOption) Scene {
	s := &scene{}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Node(nil), s.nodes...)
}

func (s *scene) Add(nodes ...*Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, nodes...)
}

func (s *scene) Traverse(fn func(node *Node)) {
	for _, node := range s.Nodes() {
		traverseNode(node, fn)
	}
}

func (s *scene) Materials() []material.Material {
	seen := make(map[material.Material]struct{})
	var result []material.Material
	s.Traverse(func(node *Node) {
		if node.Mesh == nil {
			return
		}
		for _, m := range node.Mesh.Materials {
			if m == nil {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			result = append(result, m)
		}
	})
	return result
}

func (s *scene) Textures() []texture.Texture {
	seen := make(map[texture.Texture]struct{})
	var result []texture.Texture
	for _, m := range s.Materials() {
		for _, tex := range m.Textures() {
			if _, ok := seen[tex]; ok {
				continue
			}
			seen[tex] = struct{}{}
			result = append(result, tex)
		}
	}
	return result
}

func traverseNode(node *Node, fn func(node *Node)) {
	if node == nil {
		return
	}
	fn(node)
	for _, child := range node.Children {
		traverseNode(child, fn)
	}
}
