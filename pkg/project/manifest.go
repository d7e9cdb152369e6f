// Package project handles the SwiftSC-Lang.toml manifest and project
// layout: scaffolding, manifest IO, and locating the project root.
package project

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// ManifestName is the file that marks a project root.
const ManifestName = "SwiftSC-Lang.toml"

// DefaultTarget is the only supported build target.
const DefaultTarget = "wasm32-unknown-unknown"

// Manifest mirrors SwiftSC-Lang.toml.
type Manifest struct {
	Package  Package            `toml:"package"`
	Build    Build              `toml:"build"`
	Networks map[string]Network `toml:"networks"`

	// dir is where the manifest was loaded from.
	dir string
}

type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type Build struct {
	Target      string `toml:"target"`
	GasMetering bool   `toml:"gas_metering"`
}

// Network is one deployment endpoint under [networks.<name>].
type Network struct {
	URL     string `toml:"url"`
	ChainID uint64 `toml:"chain_id"`
}

// Dir returns the project root directory of a loaded manifest.
func (m *Manifest) Dir() string { return m.dir }

// Network resolves a named deployment endpoint.
func (m *Manifest) Network(name string) (Network, error) {
	n, ok := m.Networks[name]
	if !ok {
		return Network{}, errors.Errorf("network %q is not defined in %s", name, ManifestName)
	}
	if n.URL == "" {
		return Network{}, errors.Errorf("network %q has no url", name)
	}
	return n, nil
}

// Load reads and validates the manifest in dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	if m.Package.Name == "" {
		return nil, errors.Errorf("%s: package.name is required", path)
	}
	if m.Build.Target == "" {
		m.Build.Target = DefaultTarget
	}
	if m.Build.Target != DefaultTarget {
		return nil, errors.Errorf("%s: unsupported build target %q", path, m.Build.Target)
	}
	m.dir = dir
	return &m, nil
}

// FindRoot walks upwards from start until it finds a directory holding
// the manifest.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", errors.Wrap(err, "could not resolve project root")
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Errorf("no %s found in %s or any parent directory", ManifestName, start)
		}
		dir = parent
	}
}
