// Package localstate removes cached Terraform state artifacts.
//
// Two best-effort sweeps: workspace state directories for the target
// environment under terraform.tfstate.d, and provider caches
// (.terraform directories, .terraform.lock.hcl files). Cache hygiene
// only; nothing here is correctness-critical and no failure is fatal.
package localstate

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Artifact names swept by the cleaner.
const (
	// WorkspaceStateDir is Terraform's per-workspace state directory.
	WorkspaceStateDir = "terraform.tfstate.d"
	// ProviderCacheDir is Terraform's local provider/module cache.
	ProviderCacheDir = ".terraform"
	// LockFileName is Terraform's dependency lock file.
	LockFileName = ".terraform.lock.hcl"
)

// Cleaner sweeps local Terraform state under a root directory.
type Cleaner struct {
	root   string
	logger *zap.Logger
}

// NewCleaner creates a cleaner rooted at root.
func NewCleaner(root string, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		root:   root,
		logger: logger,
	}
}

// Clean runs both sweeps for the given environment. Enumeration and
// deletion failures are logged and swallowed; Clean never fails.
func (c *Cleaner) Clean(environmentName string) {
	c.sweep("workspace state", c.findWorkspaceState(environmentName))
	c.sweep("provider cache", c.findProviderCaches())
}

// findWorkspaceState locates directories named exactly environmentName
// under any path segment literally named terraform.tfstate.d.
func (c *Cleaner) findWorkspaceState(environmentName string) []string {
	var matches []string

	c.walk(func(path string, d fs.DirEntry) {
		if !d.IsDir() || d.Name() != environmentName {
			return
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return
		}
		segments := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
		if slices.Contains(segments, WorkspaceStateDir) {
			matches = append(matches, path)
		}
	})

	return matches
}

// findProviderCaches locates all .terraform directories and
// .terraform.lock.hcl files under the root.
func (c *Cleaner) findProviderCaches() []string {
	var matches []string

	c.walk(func(path string, d fs.DirEntry) {
		switch {
		case d.IsDir() && d.Name() == ProviderCacheDir:
			matches = append(matches, path)
		case !d.IsDir() && d.Name() == LockFileName:
			matches = append(matches, path)
		}
	})

	return matches
}

// walk visits every entry under the root, skipping unreadable subtrees.
func (c *Cleaner) walk(visit func(path string, d fs.DirEntry)) {
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.logger.Debug("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if path == c.root {
			return nil
		}
		visit(path, d)
		return nil
	})
	if err != nil {
		c.logger.Debug("State sweep walk failed", zap.Error(err))
	}
}

// sweep logs the matches for a sweep and deletes them best-effort.
func (c *Cleaner) sweep(kind string, matches []string) {
	if len(matches) == 0 {
		c.logger.Info("No local state to clean", zap.String("sweep", kind))
		return
	}

	c.logger.Info("Cleaning local state",
		zap.String("sweep", kind),
		zap.Strings("paths", matches),
	)

	for _, path := range matches {
		if err := os.RemoveAll(path); err != nil {
			c.logger.Debug("Failed to remove local state",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}
