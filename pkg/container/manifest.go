// Package container implements loaded remote containers: the bundle
// manifest format, the export table with memoized module handles, and the
// WASM executor that turns artifact bytes into a live container.
package container

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfed/openfed/pkg/federation"
)

// Manifest describes a declarative container bundle. A bundle artifact is
// a YAML document naming the executable entrypoint, the exports it
// exposes, and the shared dependencies it declares.
type Manifest struct {
	// Name is the container name.
	Name string `yaml:"name" validate:"required"`

	// Version is the container version.
	Version string `yaml:"version" validate:"required"`

	// Entrypoint locates the WASM module, either absolute or relative to
	// the manifest location.
	Entrypoint string `yaml:"entrypoint" validate:"required"`

	// Checksum is the hex SHA256 of the entrypoint module. Optional; when
	// set, the fetched module must match.
	Checksum string `yaml:"checksum,omitempty" validate:"omitempty,len=64,hexadecimal"`

	// Exposes lists the exports this container offers.
	Exposes []ExposeSpec `yaml:"exposes" validate:"dive"`

	// Shared lists the shared dependencies this container declares.
	Shared []SharedSpec `yaml:"shared,omitempty" validate:"dive"`
}

// ExposeSpec maps one export name to the guest function implementing it.
type ExposeSpec struct {
	// Name is the export name requested by resolvers.
	Name string `yaml:"name" validate:"required"`

	// Function is the exported guest function. Defaults to the export
	// name.
	Function string `yaml:"function,omitempty"`
}

// SharedSpec declares one shared dependency of a bundle.
type SharedSpec struct {
	// Name is the logical dependency name.
	Name string `yaml:"name" validate:"required"`

	// Version is the version this container ships or expects.
	Version string `yaml:"version,omitempty"`

	// Provide marks the container as a candidate provider.
	Provide bool `yaml:"provide,omitempty"`

	// Consume marks the container as a consumer.
	Consume bool `yaml:"consume,omitempty"`
}

var manifestValidator = validator.New()

// ParseManifest parses and validates a bundle manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse bundle manifest: %w", err)
	}
	if err := manifestValidator.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid bundle manifest: %w", err)
	}
	for i := range m.Exposes {
		if m.Exposes[i].Function == "" {
			m.Exposes[i].Function = m.Exposes[i].Name
		}
	}
	return &m, nil
}

// VerifyChecksum checks the entrypoint module bytes against the manifest
// checksum. A manifest without a checksum passes.
func (m *Manifest) VerifyChecksum(module []byte) error {
	if m.Checksum == "" {
		return nil
	}
	hash := sha256.Sum256(module)
	computed := hex.EncodeToString(hash[:])
	if computed != m.Checksum {
		return fmt.Errorf("module checksum mismatch: expected %s, got %s", m.Checksum, computed)
	}
	return nil
}

// Requirements converts the manifest's shared declarations.
func (m *Manifest) Requirements() []federation.SharedRequirement {
	reqs := make([]federation.SharedRequirement, 0, len(m.Shared))
	for _, s := range m.Shared {
		reqs = append(reqs, federation.SharedRequirement{
			Name:       s.Name,
			Version:    s.Version,
			CanProvide: s.Provide,
			CanConsume: s.Consume,
		})
	}
	return reqs
}
