// Package checksum builds the per-file content hash manifest persisted next to
// every installed package and compares it against the files on disk.
package checksum

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gowebpki/jcs"

	"pkgstore/internal/pkgerr"
)

type Entry struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Manifest maps slash-separated relative paths to hex MD5 digests, sorted by path.
type Manifest struct {
	Entries []Entry `json:"entries"`
}

// Build hashes every regular file under dir. Directories, symlinks and other
// special files are not listed.
func Build(ctx context.Context, dir string) (Manifest, error) {
	entries := []Entry{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sum, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", filepath.ToSlash(rel), err)
		}
		entries = append(entries, Entry{Path: filepath.ToSlash(rel), Hash: sum})
		return nil
	})
	if err != nil {
		return Manifest{}, pkgerr.Wrap(pkgerr.KindHashFailure, err)
	}
	return newManifest(entries), nil
}

func newManifest(entries []Entry) Manifest {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return Manifest{Entries: entries}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Len reports the number of files in the manifest.
func (m Manifest) Len() int {
	return len(m.Entries)
}

// Lookup returns the hash recorded for path.
func (m Manifest) Lookup(path string) (string, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Path >= path })
	if i < len(m.Entries) && m.Entries[i].Path == path {
		return m.Entries[i].Hash, true
	}
	return "", false
}

// Map returns the manifest as a plain map.
func (m Manifest) Map() map[string]string {
	out := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		out[e.Path] = e.Hash
	}
	return out
}

// Marshal renders the persisted form: a JSON object indented with four spaces,
// keys in sorted order. Identical contents always yield identical bytes.
func (m Manifest) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(m.Map()); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Parse reads a persisted manifest.
func Parse(data []byte) (Manifest, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for p, h := range raw {
		entries = append(entries, Entry{Path: p, Hash: h})
	}
	return newManifest(entries), nil
}

// Digest fingerprints the manifest as sha256 over its RFC 8785 canonical form.
func (m Manifest) Digest() (string, error) {
	blob, err := m.Marshal()
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(blob)
	if err != nil {
		return "", fmt.Errorf("canonicalize manifest: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
