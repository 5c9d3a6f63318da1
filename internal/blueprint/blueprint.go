// Package blueprint loads a build directory into the ordered component
// list the registry is constructed from. A directory holds magnetar.toml
// (the build manifest) plus one markdown file per component with TOML
// frontmatter between +++ delimiters.
package blueprint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/astralkiln/magnetar/internal/registry"
)

// ErrNoManifest is returned when the directory has no magnetar.toml.
var ErrNoManifest = errors.New("no magnetar.toml found")

// Manifest is parsed from magnetar.toml in the build directory root.
type Manifest struct {
	Build Info `toml:"build"`
}

// Info holds the build's identifier and description from the manifest.
type Info struct {
	ID          string `toml:"id"`
	Description string `toml:"description"`
}

// ComponentSpec is parsed from each *.md file's TOML frontmatter.
type ComponentSpec struct {
	Name       string   `toml:"name"`
	DependsOn  []string `toml:"depends_on"`
	Body       string   // Markdown body after the +++ block
	SourceFile string   // Relative path for error context
}

// Blueprint is the fully parsed representation of a build directory.
type Blueprint struct {
	Dir        string
	Manifest   Manifest
	Components []ComponentSpec
}

// Load reads a build directory, parsing magnetar.toml and all *.md
// component files. Component order follows file-name order, which becomes
// the registry's insertion order.
func Load(dir string) (*Blueprint, error) {
	manifestPath := filepath.Join(dir, "magnetar.toml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoManifest
		}
		return nil, fmt.Errorf("reading magnetar.toml: %w", err)
	}

	var manifest Manifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing magnetar.toml: %w", err)
	}
	if manifest.Build.ID == "" {
		manifest.Build.ID = filepath.Base(dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading build directory: %w", err)
	}

	var components []ComponentSpec
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		spec, err := parseComponentFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", e.Name(), err)
		}
		spec.SourceFile = e.Name()
		components = append(components, spec)
	}

	return &Blueprint{
		Dir:        dir,
		Manifest:   manifest,
		Components: components,
	}, nil
}

// Specs converts the blueprint's components into registry construction
// input, preserving order.
func (b *Blueprint) Specs() []registry.Spec {
	specs := make([]registry.Spec, 0, len(b.Components))
	for _, c := range b.Components {
		specs = append(specs, registry.Spec{
			Name:         c.Name,
			Dependencies: c.DependsOn,
		})
	}
	return specs
}

// parseComponentFile reads a markdown file with +++ TOML frontmatter. The
// component name defaults to the file name without extension when the
// frontmatter omits it.
func parseComponentFile(path string) (ComponentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ComponentSpec{}, err
	}

	frontmatter, body, err := splitFrontmatter(string(data))
	if err != nil {
		return ComponentSpec{}, err
	}

	var spec ComponentSpec
	if err := toml.Unmarshal([]byte(frontmatter), &spec); err != nil {
		return ComponentSpec{}, fmt.Errorf("parsing TOML frontmatter: %w", err)
	}
	spec.Body = strings.TrimSpace(body)
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	return spec, nil
}

// splitFrontmatter splits content on +++ delimiters.
// Expected format:
//
//	+++
//	<TOML>
//	+++
//	<body>
func splitFrontmatter(content string) (string, string, error) {
	const delim = "+++"

	content = strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(content, delim) {
		return "", "", fmt.Errorf("file does not start with +++ frontmatter delimiter")
	}

	rest := content[len(delim):]
	idx := strings.Index(rest, delim)
	if idx < 0 {
		return "", "", fmt.Errorf("missing closing +++ frontmatter delimiter")
	}
	return rest[:idx], rest[idx+len(delim):], nil
}
