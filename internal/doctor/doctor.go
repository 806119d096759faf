// Package doctor reports on the health of a package store.
package doctor

import (
	"context"
	"os"
	"strings"
	"time"

	"pkgstore/internal/checksum"
	"pkgstore/internal/config"
	"pkgstore/internal/store"
)

type Finding struct {
	Code    string `json:"code"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Report struct {
	Healthy  bool      `json:"healthy"`
	Root     string    `json:"root"`
	Packages int       `json:"packages"`
	Findings []Finding `json:"findings"`
}

type Service struct {
	ConfigPath string
	Root       string
	StaleAfter time.Duration
	// Verify rehashes every slot that has a manifest.
	Verify bool
	Now    func() time.Time
}

func (s *Service) Run(ctx context.Context) Report {
	findings := []Finding{}
	add := func(code, level, msg string) {
		findings = append(findings, Finding{Code: code, Level: level, Message: msg})
	}

	if s.ConfigPath != "" {
		if _, err := os.Stat(s.ConfigPath); err != nil {
			add("DOC_CONFIG_MISSING", "warn", err.Error())
		} else if _, err := config.Load(s.ConfigPath); err != nil {
			add("DOC_CONFIG_INVALID", "error", err.Error())
		}
	}

	items, err := store.List(s.Root)
	if err != nil {
		add("DOC_STORE_UNREADABLE", "error", err.Error())
	}
	for _, it := range items {
		if ctx.Err() != nil {
			add("DOC_CANCELLED", "error", ctx.Err().Error())
			break
		}
		if !it.HasManifest {
			add("DOC_MANIFEST_MISSING", "error", it.Name+"@"+it.Version+" has no checksum manifest")
			continue
		}
		if !s.Verify {
			continue
		}
		m, err := store.ReadManifest(s.Root, it.Name, it.Version)
		if err != nil {
			add("DOC_MANIFEST_INVALID", "error", it.Name+"@"+it.Version+": "+err.Error())
			continue
		}
		d, err := checksum.Compare(ctx, m, it.Path)
		if err != nil {
			add("DOC_VERIFY_FAILED", "error", it.Name+"@"+it.Version+": "+err.Error())
			continue
		}
		if !d.Clean() {
			add("DOC_SLOT_MODIFIED", "warn", it.Name+"@"+it.Version+" differs from manifest: "+describe(d))
		}
	}

	workspaces, err := store.Workspaces(s.Root)
	if err != nil {
		add("DOC_STAGING_UNREADABLE", "error", err.Error())
	}
	for _, ws := range workspaces {
		add("DOC_ORPHAN_WORKSPACE", "warn", "leftover workspace "+ws)
	}

	locks, err := store.LockFiles(s.Root)
	if err != nil {
		add("DOC_LOCK_UNREADABLE", "error", err.Error())
	}
	for _, l := range locks {
		stale, err := store.IsLockStale(l, s.now(), s.staleAfter())
		switch {
		case err != nil:
			add("DOC_LOCK_UNREADABLE", "error", err.Error())
		case stale:
			add("DOC_LOCK_STALE", "warn", "stale install lock "+l)
		}
	}

	healthy := true
	for _, f := range findings {
		if f.Level == "error" {
			healthy = false
			break
		}
	}
	return Report{Healthy: healthy, Root: s.Root, Packages: len(items), Findings: findings}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) staleAfter() time.Duration {
	if s.StaleAfter <= 0 {
		return store.DefaultLockStaleAfter
	}
	return s.StaleAfter
}

func describe(d checksum.Diff) string {
	var parts []string
	if len(d.Modified) > 0 {
		parts = append(parts, "modified "+strings.Join(d.Modified, ","))
	}
	if len(d.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(d.Missing, ","))
	}
	if len(d.Added) > 0 {
		parts = append(parts, "added "+strings.Join(d.Added, ","))
	}
	return strings.Join(parts, "; ")
}
