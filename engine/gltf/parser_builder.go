package gltf

// ParserBuilderOption is a functional option for configuring a Parser via NewParser.
type ParserBuilderOption func(*parser)

// WithBaseDir is an option builder that sets the directory relative URIs are resolved against
// by the default filesystem resource reader.
//
// Parameters:
//   - dir: the base directory
//
// Returns:
//   - ParserBuilderOption: a function that applies the base directory option to a parser
func WithBaseDir(dir string) ParserBuilderOption {
	return func(p *parser) {
		p.baseDir = dir
	}
}

// WithResourceReader is an option builder that replaces the resource reader used for external URIs.
//
// Parameters:
//   - reader: the resource reader
//
// Returns:
//   - ParserBuilderOption: a function that applies the resource reader option to a parser
func WithResourceReader(reader ResourceReader) ParserBuilderOption {
	return func(p *parser) {
		p.reader = reader
	}
}
