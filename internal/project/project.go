// Package project manages the per-project directory trees under the output
// root: creation, discovery, resumption and removal. A project couples one
// artifact store with one workflow state; the two never call each other,
// coordination stays with the caller.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"video-studio/internal/artifacts"
	"video-studio/internal/fsjson"
	"video-studio/internal/workflow"
)

// Project is one user-initiated unit of work.
type Project struct {
	Store    *artifacts.Store
	Workflow *workflow.State
}

// Info is a project summary row for listings.
type Info struct {
	ProjectID string           `json:"project_id"`
	Name      string           `json:"name"`
	Dir       string           `json:"dir"`
	Created   string           `json:"created,omitempty"`
	Updated   string           `json:"updated,omitempty"`
	Artifacts int              `json:"artifacts"`
	Progress  workflow.Summary `json:"progress"`
}

// Create allocates a fresh project tree under root and initializes its
// workflow state with the fixed step ordering.
func Create(root, name string) (*Project, error) {
	store, err := artifacts.Create(root, name)
	if err != nil {
		return nil, err
	}
	state, err := workflow.Initialize(filepath.Join(store.Dir(), workflow.StateFileName), workflow.Steps)
	if err != nil {
		return nil, err
	}
	return &Project{Store: store, Workflow: state}, nil
}

// Open resumes an existing project directory.
func Open(dir string) (*Project, error) {
	store, err := artifacts.Open(dir)
	if err != nil {
		return nil, err
	}
	state, err := workflow.Open(filepath.Join(dir, workflow.StateFileName), workflow.Steps)
	if err != nil {
		return nil, err
	}
	return &Project{Store: store, Workflow: state}, nil
}

func (p *Project) Dir() string  { return p.Store.Dir() }
func (p *Project) ID() string   { return p.Store.ProjectID() }
func (p *Project) Name() string { return p.Store.ProjectName() }

// List returns a summary for every project under root, newest first.
func List(root string) ([]Info, error) {
	dirs, err := projectDirs(root)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(dirs))
	for _, dir := range dirs {
		p, err := Open(dir)
		if err != nil {
			// Directories without a readable manifest are not projects.
			continue
		}
		var mf artifacts.Manifest
		_ = fsjson.ReadJSON(p.Store.ManifestPath(), &mf)
		infos = append(infos, Info{
			ProjectID: p.ID(),
			Name:      p.Name(),
			Dir:       dir,
			Created:   mf.Created,
			Updated:   mf.Updated,
			Artifacts: len(p.Store.List()),
			Progress:  p.Workflow.Summarize(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ProjectID > infos[j].ProjectID
	})
	return infos, nil
}

// Latest returns the directory of the most recently created project. The
// project id embeds the creation timestamp, so lexical order is creation
// order for same-named projects and close enough across names.
func Latest(root string) (string, error) {
	infos, err := List(root)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", fmt.Errorf("no projects found in %s", root)
	}
	latest := infos[0]
	for _, info := range infos {
		if suffixTimestamp(info.ProjectID) > suffixTimestamp(latest.ProjectID) {
			latest = info
		}
	}
	return latest.Dir, nil
}

// Resolve maps a user-supplied selector (exact project id, or a project
// name with several timestamped instances) to a project directory. A bare
// name resolves to its newest instance.
func Resolve(root, selector string) (string, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return "", fmt.Errorf("project selector is required")
	}

	infos, err := List(root)
	if err != nil {
		return "", err
	}
	var best Info
	for _, info := range infos {
		if info.ProjectID == selector {
			return info.Dir, nil
		}
		if strings.EqualFold(info.Name, artifacts.SanitizeProjectName(selector)) {
			if best.ProjectID == "" || suffixTimestamp(info.ProjectID) > suffixTimestamp(best.ProjectID) {
				best = info
			}
		}
	}
	if best.ProjectID != "" {
		return best.Dir, nil
	}
	return "", fmt.Errorf("project %q not found in %s", selector, root)
}

// Remove deletes the whole project tree: all artifacts plus both state
// files. The id must match exactly; there is no name-based removal.
func Remove(root, projectID string) error {
	dirs, err := projectDirs(root)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if filepath.Base(dir) != projectID {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, artifacts.ManifestFileName)); err != nil {
			return fmt.Errorf("%s has no manifest, refusing to remove", dir)
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove project %s: %w", projectID, err)
		}
		return nil
	}
	return fmt.Errorf("project %q not found in %s", projectID, root)
}

func projectDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read output root %s: %w", root, err)
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func suffixTimestamp(projectID string) string {
	i := strings.LastIndex(projectID, "_")
	if i < 0 {
		return ""
	}
	return projectID[i+1:]
}
