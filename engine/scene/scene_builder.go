package scene

// SceneBuilderOption is a functional option for configuring a Scene via NewScene.
type SceneBuilderOption func(*scene)

// WithName is an option builder that sets the scene's identifier.
//
// Parameters:
//   - name: the scene name
//
// Returns:
//   - SceneBuilderOption: a function that applies the name option to a scene
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
	}
}

// WithNodes is an option builder that sets the root nodes of the scene.
//
// Parameters:
//   - nodes: the root nodes
//
// Returns:
//   - SceneBuilderOption: a function that applies the nodes option to a scene
func WithNodes(nodes ...*Node) SceneBuilderOption {
	return func(s *scene) {
		s.nodes = append(s.nodes, nodes...)
	}
}
