// FILE: lixenwraith/config/io.go
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Supported file formats.
const (
	FormatTOML = "toml"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatAuto = "auto"
)

// SecurityOptions restricts which configuration files may be read.
type SecurityOptions struct {
	// PreventPathTraversal rejects relative paths that escape the working directory.
	PreventPathTraversal bool
	// MaxFileSize rejects larger files. Zero means no limit.
	MaxFileSize int64
	// EnforceFileOwnership rejects files not owned by the effective user (Unix only).
	EnforceFileOwnership bool
}

// fileSource reads one configuration file.
type fileSource struct {
	path     string
	format   string
	optional bool
	security *SecurityOptions
	log      Logger
}

// FileSource reads the file at path. An empty or "auto" format is detected
// from the extension, then from the content.
func FileSource(path, format string, security *SecurityOptions) Source {
	return &fileSource{path: path, format: format, security: security}
}

// OptionalFileSource is like FileSource, but a missing file yields an empty tree.
func OptionalFileSource(path, format string, security *SecurityOptions) Source {
	return &fileSource{path: path, format: format, optional: true, security: security}
}

func (s *fileSource) Name() string { return s.path }

func (s *fileSource) Tree() (*Node, error) {
	data, err := readConfigFile(s.path, s.security)
	if err != nil {
		if s.optional && errors.Is(err, ErrConfigNotFound) {
			if s.log != nil {
				s.log.Warn("optional config file not found", "path", s.path)
			}
			return NewMapping(), nil
		}
		return nil, &SourceError{Source: s.path, Err: err}
	}

	format := s.format
	if format == "" || format == FormatAuto {
		format = detectFileFormat(s.path)
		if format == "" {
			format = detectFormatFromContent(data)
		}
	}

	tree, err := parseFormat(format, data)
	if err != nil {
		return nil, &SourceError{Source: s.path, Err: err}
	}
	return tree, nil
}

// bytesSource parses an in-memory document.
type bytesSource struct {
	name   string
	format string
	data   []byte
}

// BytesSource parses data in the given format, or detects it from content
// when format is empty or "auto".
func BytesSource(name, format string, data []byte) Source {
	return &bytesSource{name: name, format: format, data: data}
}

func (s *bytesSource) Name() string { return s.name }

func (s *bytesSource) Tree() (*Node, error) {
	format := s.format
	if format == "" || format == FormatAuto {
		format = detectFormatFromContent(s.data)
	}
	tree, err := parseFormat(format, s.data)
	if err != nil {
		return nil, &SourceError{Source: s.name, Err: err}
	}
	return tree, nil
}

// readConfigFile applies the security checks and reads the whole file.
func readConfigFile(path string, security *SecurityOptions) ([]byte, error) {
	if security != nil && security.PreventPathTraversal {
		cleanPath := filepath.Clean(path)

		// Check if cleaned path tries to go outside current directory
		if strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) || cleanPath == ".." {
			return nil, fmt.Errorf("potential path traversal detected in config path: %s", path)
		}

		// Relative path became absolute after cleaning
		if filepath.IsAbs(cleanPath) && !filepath.IsAbs(path) {
			return nil, fmt.Errorf("potential path traversal detected in config path: %s", path)
		}
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to stat config file '%s': %w", path, err)
	}

	if security != nil && security.MaxFileSize > 0 && fileInfo.Size() > security.MaxFileSize {
		return nil, fmt.Errorf("config file '%s' exceeds maximum size %d bytes", path, security.MaxFileSize)
	}

	// File ownership check (Unix only)
	if security != nil && security.EnforceFileOwnership && runtime.GOOS != "windows" {
		if stat, ok := fileInfo.Sys().(*syscall.Stat_t); ok {
			if stat.Uid != uint32(os.Geteuid()) {
				return nil, fmt.Errorf("config file '%s' is not owned by current user (file UID: %d, process UID: %d)",
					path, stat.Uid, os.Geteuid())
			}
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}
	defer file.Close()

	var reader io.Reader = file
	if security != nil && security.MaxFileSize > 0 {
		reader = io.LimitReader(file, security.MaxFileSize)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return data, nil
}

// parseFormat parses a document into a tree whose mapping keys keep document order.
func parseFormat(format string, data []byte) (*Node, error) {
	switch format {
	case FormatTOML:
		return parseTOML(data)
	case FormatJSON:
		return parseJSON(data)
	case FormatYAML:
		return parseYAML(data)
	case "":
		return nil, fmt.Errorf("unable to determine config format")
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}

func parseTOML(data []byte) (*Node, error) {
	raw := make(map[string]any)
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	// MetaData.Keys is in document order. Values inside arrays of tables are
	// not addressable by key and come from the raw decode.
	ordered := NewMapping()
	for _, key := range md.Keys() {
		value, ok := lookupRaw(raw, key)
		if !ok {
			continue
		}
		parent := ensureMapping(ordered, key[:len(key)-1])
		if parent == nil {
			continue
		}
		last := key[len(key)-1]
		if _, exists := parent.children[last]; exists {
			continue
		}
		if _, isTable := value.(map[string]any); isTable {
			parent.put(last, NewMapping())
			continue
		}
		parent.put(last, FromValue(value))
	}
	return Merge(ordered, FromValue(raw)), nil
}

func lookupRaw(raw map[string]any, path []string) (any, bool) {
	var current any = raw
	for _, segment := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ensureMapping returns the mapping at path, creating it in place. It
// returns nil when a non-mapping node is in the way.
func ensureMapping(root *Node, path []string) *Node {
	current := root
	for _, segment := range path {
		next, ok := current.children[segment]
		if !ok {
			next = NewMapping()
			current.put(segment, next)
		}
		if next.kind != KindMapping {
			return nil
		}
		current = next
	}
	return current
}

func parseYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return NewMapping(), nil
	}
	tree, err := fromYAML(doc.Content[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if tree.Kind() != KindMapping {
		return nil, fmt.Errorf("YAML document must be a mapping, got %s", tree.Describe())
	}
	return tree, nil
}

func fromYAML(n *yaml.Node) (*Node, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return NewMapping(), nil
		}
		return fromYAML(n.Content[0])
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.SequenceNode:
		items := make([]*Node, 0, len(n.Content))
		for _, child := range n.Content {
			item, err := fromYAML(child)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return Sequence(items...), nil
	case yaml.MappingNode:
		mapping := NewMapping()
		var merged []*Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			if key.Tag == "!!merge" {
				base, err := yamlMergeValue(value)
				if err != nil {
					return nil, err
				}
				merged = append(merged, base)
				continue
			}
			child, err := fromYAML(value)
			if err != nil {
				return nil, err
			}
			mapping.put(key.Value, child)
		}
		// Explicit keys override merged ones.
		for _, base := range merged {
			mapping = Merge(base, mapping)
		}
		return mapping, nil
	default:
		var value any
		if err := n.Decode(&value); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Scalar(value), nil
	}
}

// yamlMergeValue resolves the value of a << key. A sequence of mappings is
// folded so that earlier mappings take precedence over later ones.
func yamlMergeValue(n *yaml.Node) (*Node, error) {
	for n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	elements := []*yaml.Node{n}
	if n.Kind == yaml.SequenceNode {
		elements = n.Content
	}

	merged := NewMapping()
	for i := len(elements) - 1; i >= 0; i-- {
		element, err := fromYAML(elements[i])
		if err != nil {
			return nil, err
		}
		if element.Kind() != KindMapping {
			return nil, fmt.Errorf("line %d: merge key expects a mapping or a sequence of mappings, got %s", elements[i].Line, element.Describe())
		}
		merged = Merge(merged, element)
	}
	return merged, nil
}

func parseJSON(data []byte) (*Node, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber() // Preserve number precision

	tree, err := decodeJSON(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if tree.Kind() != KindMapping {
		return nil, fmt.Errorf("JSON document must be an object, got %s", tree.Describe())
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("failed to parse JSON: unexpected data after top-level object")
	}
	return tree, nil
}

// decodeJSON reads one value from the token stream so object keys keep their order.
func decodeJSON(decoder *json.Decoder) (*Node, error) {
	token, err := decoder.Token()
	if err != nil {
		return nil, err
	}

	switch t := token.(type) {
	case json.Delim:
		switch t {
		case '{':
			mapping := NewMapping()
			for decoder.More() {
				keyToken, err := decoder.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyToken.(string)
				if !ok {
					return nil, fmt.Errorf("expected object key, got %v", keyToken)
				}
				child, err := decodeJSON(decoder)
				if err != nil {
					return nil, err
				}
				mapping.put(key, child)
			}
			if _, err := decoder.Token(); err != nil {
				return nil, err
			}
			return mapping, nil
		case '[':
			var items []*Node
			for decoder.More() {
				item, err := decodeJSON(decoder)
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
			if _, err := decoder.Token(); err != nil {
				return nil, err
			}
			return Sequence(items...), nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Scalar(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", t, err)
		}
		return Scalar(f), nil
	default:
		// string, bool or nil
		return Scalar(t), nil
	}
}

// detectFileFormat determines format from file extension
func detectFileFormat(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml", ".tml":
		return FormatTOML
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		// .conf, .config and unknown extensions are detected from content
		return ""
	}
}

// detectFormatFromContent attempts to detect format by parsing
func detectFormatFromContent(data []byte) string {
	// Try JSON first (strict format)
	var jsonTest any
	if err := json.Unmarshal(data, &jsonTest); err == nil {
		return FormatJSON
	}

	// TOML before YAML: YAML accepts key = value lines as plain scalars
	var tomlTest map[string]any
	if err := toml.Unmarshal(data, &tomlTest); err == nil {
		return FormatTOML
	}

	var yamlTest any
	if err := yaml.Unmarshal(data, &yamlTest); err == nil {
		return FormatYAML
	}

	return ""
}
