// Package aggregator combines a root index with any number of extra
// indexes and a shared file cache into the single view the HTTP layer
// talks to.
package aggregator

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kexi/pypi-cache-proxy/internal/filecache"
	"github.com/kexi/pypi-cache-proxy/internal/indexcache"
	"github.com/kexi/pypi-cache-proxy/internal/model"
)

// NotFound reports that a project or file was not found in any
// configured index.
type NotFound struct {
	Name string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.Name)
}

// Aggregator is the top-level cache: one root IndexCache, zero or more
// extra IndexCaches consulted in order, and a FileCache shared by all
// of them.
type Aggregator struct {
	Root   *indexcache.IndexCache
	Extras []*indexcache.IndexCache
	Files  *filecache.FileCache
	logger *zap.Logger
}

// New builds an Aggregator from its components.
func New(root *indexcache.IndexCache, extras []*indexcache.IndexCache, files *filecache.FileCache, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{Root: root, Extras: extras, Files: files, logger: logger}
}

// ListProjects returns the union of project names across every
// configured index, sorted.
func (a *Aggregator) ListProjects() ([]string, error) {
	seen := make(map[string]struct{})

	rootNames, err := a.Root.ListProjects()
	if err != nil {
		return nil, err
	}
	for _, n := range rootNames {
		seen[n] = struct{}{}
	}
	for _, extra := range a.Extras {
		names, err := extra.ListProjects()
		if err != nil {
			return nil, fmt.Errorf("listing projects from extra index: %w", err)
		}
		for _, n := range names {
			seen[n] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// ListFiles returns a project's files: the root index wins when it has
// the project, and any extra index's files are appended by filename if
// not already present. Extras are only consulted when the root reports
// NotFound; any other root error (an upstream failure) propagates
// immediately instead of being masked by a lucky extra-index hit.
func (a *Aggregator) ListFiles(projectName string) ([]*model.File, error) {
	rootFiles, rootErr := a.Root.ListFiles(projectName)
	if rootErr == nil {
		files := append([]*model.File(nil), rootFiles...)
		seen := make(map[string]struct{}, len(rootFiles))
		for _, f := range rootFiles {
			seen[f.Name] = struct{}{}
		}
		for _, extra := range a.Extras {
			extraFiles, err := extra.ListFiles(projectName)
			if err != nil {
				continue
			}
			for _, f := range extraFiles {
				if _, ok := seen[f.Name]; ok {
					continue
				}
				seen[f.Name] = struct{}{}
				files = append(files, f)
			}
		}
		return files, nil
	}

	if _, ok := rootErr.(*indexcache.NotFound); !ok {
		return nil, rootErr
	}

	var files []*model.File
	seen := make(map[string]struct{})
	for _, extra := range a.Extras {
		extraFiles, err := extra.ListFiles(projectName)
		if err != nil {
			continue
		}
		for _, f := range extraFiles {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, &NotFound{Name: projectName}
	}
	return files, nil
}

// GetFile resolves a project's file to a local path, downloading (and
// caching) it first if necessary. The root index is tried first; extra
// indexes are only consulted when the root reports NotFound. Any other
// root error (an upstream failure) propagates immediately instead of
// being masked by a lucky extra-index hit.
func (a *Aggregator) GetFile(projectName, fileName string) (string, error) {
	url, resolveErr := a.Root.GetFileURL(projectName, fileName)
	if resolveErr != nil {
		if _, ok := resolveErr.(*indexcache.NotFound); !ok {
			return "", resolveErr
		}
		for _, extra := range a.Extras {
			u, err := extra.GetFileURL(projectName, fileName)
			if err == nil {
				url, resolveErr = u, nil
				break
			}
		}
	}
	if resolveErr != nil {
		if _, ok := resolveErr.(*indexcache.NotFound); ok {
			return "", &NotFound{Name: fileName}
		}
		return "", resolveErr
	}
	return a.Files.Get(url)
}

// InvalidateList drops the cached project list on every configured
// index.
func (a *Aggregator) InvalidateList() {
	a.logger.Info("invalidating project list cache")
	a.Root.InvalidateList()
	for _, extra := range a.Extras {
		extra.InvalidateList()
	}
}

// InvalidateProject drops the cached file listing for projectName on
// every configured index.
func (a *Aggregator) InvalidateProject(projectName string) {
	a.logger.Info("invalidating project file list cache", zap.String("project", projectName))
	a.Root.InvalidateProject(projectName)
	for _, extra := range a.Extras {
		extra.InvalidateProject(projectName)
	}
}
