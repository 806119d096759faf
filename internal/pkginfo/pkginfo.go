// Package pkginfo reads package identity from an extracted package directory.
package pkginfo

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"golang.org/x/mod/semver"

	"pkgstore/internal/pkgerr"
)

// DescriptorFile is the well-known descriptor at the root of every package.
const DescriptorFile = "package.json"

// Suffixes the store appends to <version> for files kept beside a slot.
// A version carrying one would name one of those files instead of a slot.
const (
	ManifestSuffix = ".md5"
	LockSuffix     = ".lock"
)

//go:embed descriptor.schema.json
var descriptorSchema []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(descriptorSchema)
	if err != nil {
		return nil, fmt.Errorf("compile descriptor schema: %w", err)
	}
	return schema, nil
})

type Metadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (m Metadata) String() string {
	return m.Name + "@" + m.Version
}

// SemverValid reports whether Version parses as semantic version.
// Non-semver versions are still installable.
func (m Metadata) SemverValid() bool {
	return semver.IsValid(CanonicalVersion(m.Version))
}

// CanonicalVersion prefixes v for golang.org/x/mod/semver, which requires it.
func CanonicalVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// Read loads and validates the descriptor in dir. Every failure is reported
// as MetadataMissing so it stays distinct from extraction failures.
func Read(dir string) (Metadata, error) {
	path := filepath.Join(dir, DescriptorFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, pkgerr.New(pkgerr.KindMetadataMissing, "missing %s in %q", DescriptorFile, dir)
		}
		return Metadata{}, pkgerr.Wrap(pkgerr.KindMetadataMissing, fmt.Errorf("read %s: %w", DescriptorFile, err))
	}
	return Parse(data)
}

// Parse validates raw descriptor bytes.
func Parse(data []byte) (Metadata, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metadata{}, pkgerr.Wrap(pkgerr.KindMetadataMissing, fmt.Errorf("parse %s: %w", DescriptorFile, err))
	}
	schema, err := compileSchema()
	if err != nil {
		return Metadata{}, pkgerr.Wrap(pkgerr.KindMetadataMissing, err)
	}
	if result := schema.ValidateJSON(data); !result.IsValid() {
		return Metadata{}, pkgerr.New(pkgerr.KindMetadataMissing, "invalid %s: schema validation failed: %v", DescriptorFile, result.Errors)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, pkgerr.Wrap(pkgerr.KindMetadataMissing, fmt.Errorf("decode %s: %w", DescriptorFile, err))
	}
	if strings.TrimSpace(meta.Name) == "" || strings.TrimSpace(meta.Version) == "" {
		return Metadata{}, pkgerr.New(pkgerr.KindMetadataMissing, "%s must declare non-empty name and version", DescriptorFile)
	}
	if ReservedVersion(meta.Version) {
		return Metadata{}, pkgerr.New(pkgerr.KindMetadataMissing, "invalid %s: version %q ends in a reserved suffix", DescriptorFile, meta.Version)
	}
	return meta, nil
}

// ReservedVersion reports whether v collides with the store's bookkeeping file names.
func ReservedVersion(v string) bool {
	return strings.HasSuffix(v, ManifestSuffix) || strings.HasSuffix(v, LockSuffix)
}
