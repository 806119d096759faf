// Package archive selects and runs the decompressor for a package archive.
//
// Selection is a static table lookup on the file extension. The lookup performs
// no I/O, so an unsupported archive is rejected before anything is created.
package archive

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"pkgstore/internal/pkgerr"
)

type Format string

const (
	FormatTarGzip Format = "gzip-tar"
	FormatZip     Format = "zip"
)

// Extractor decompresses archivePath into destDir, creating destDir if needed.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) error
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(ctx context.Context, archivePath, destDir string) error

func (f ExtractorFunc) Extract(ctx context.Context, archivePath, destDir string) error {
	return f(ctx, archivePath, destDir)
}

// PackageArchive is the immutable description of an import input.
type PackageArchive struct {
	Path      string `json:"path"`
	Extension string `json:"extension"`
	Format    Format `json:"format"`
}

type entry struct {
	format    Format
	extractor Extractor
}

type Registry struct {
	entries map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// DefaultRegistry maps gz and tgz to the tar+gzip extractor and zip to the zip extractor.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("gz", FormatTarGzip, TarGzip{})
	r.Register("tgz", FormatTarGzip, TarGzip{})
	r.Register("zip", FormatZip, Zip{})
	return r
}

// Register adds or replaces the extractor for ext (without the leading dot).
func (r *Registry) Register(ext string, format Format, x Extractor) {
	r.entries[normalizeExt(ext)] = entry{format: format, extractor: x}
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.entries))
	for ext := range r.entries {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Restrict returns a registry holding only the listed extensions.
// An empty list keeps every registered extension.
func (r *Registry) Restrict(exts []string) (*Registry, error) {
	if len(exts) == 0 {
		return r, nil
	}
	out := NewRegistry()
	for _, ext := range exts {
		e, ok := r.entries[normalizeExt(ext)]
		if !ok {
			return nil, pkgerr.New(pkgerr.KindUnsupportedFormat, "%s file is not supported!", normalizeExt(ext))
		}
		out.entries[normalizeExt(ext)] = e
	}
	return out, nil
}

// Select resolves the extractor for path from its extension.
func (r *Registry) Select(path string) (PackageArchive, Extractor, error) {
	ext := normalizeExt(filepath.Ext(path))
	if ext == "" {
		return PackageArchive{}, nil, pkgerr.New(pkgerr.KindUnsupportedFormat, "%s has no file extension, not supported!", filepath.Base(path))
	}
	e, ok := r.entries[ext]
	if !ok {
		return PackageArchive{}, nil, pkgerr.New(pkgerr.KindUnsupportedFormat, "%s file is not supported!", ext)
	}
	return PackageArchive{Path: path, Extension: ext, Format: e.format}, e.extractor, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
