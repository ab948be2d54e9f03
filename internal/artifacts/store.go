// Package artifacts is the durable, named, typed-by-convention artifact
// store for one project. Every artifact lives in a category subdirectory of
// the project tree and is indexed by manifest.json, which is rewritten
// atomically on every mutation.
package artifacts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"video-studio/internal/fsjson"
)

const ManifestFileName = "manifest.json"

// Manifest is the single source of truth for what a project has produced.
type Manifest struct {
	ProjectName string            `json:"project_name"`
	ProjectID   string            `json:"project_id"`
	Created     string            `json:"created"`
	Updated     string            `json:"updated"`
	Artifacts   map[string]string `json:"artifacts"`
}

// Artifact describes one live manifest entry. Size is read from disk at
// listing time, not cached, so it reflects out-of-band modifications.
type Artifact struct {
	Key      string         `json:"key"`
	Label    string         `json:"label,omitempty"`
	Path     string         `json:"path"`
	Category string         `json:"category"`
	Size     int64          `json:"size"`
	Modified string         `json:"modified,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Store manages the artifact tree of a single project. It provides no
// internal locking; concurrent writers to the same project are not
// supported.
type Store struct {
	dir      string
	manifest Manifest
	order    []string
}

// Create allocates a new project under root: a unique project id from the
// sanitized name plus a creation timestamp, the category subdirectories,
// and an initial empty manifest.
func Create(root, projectName string) (*Store, error) {
	name := SanitizeProjectName(projectName)
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if err := ensureWritableDir(root); err != nil {
		return nil, err
	}

	now := time.Now()
	projectID := name + "_" + now.Format("20060102150405")
	dir := filepath.Join(root, projectID)
	for _, category := range Categories {
		if err := os.MkdirAll(filepath.Join(dir, category), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create category directory %s: %v", ErrStorage, category, err)
		}
	}

	s := &Store{
		dir: dir,
		manifest: Manifest{
			ProjectName: name,
			ProjectID:   projectID,
			Created:     now.UTC().Format(time.RFC3339),
			Artifacts:   map[string]string{},
		},
	}
	if err := s.writeManifest(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open reattaches to an existing project directory.
func Open(dir string) (*Store, error) {
	var mf Manifest
	if err := fsjson.ReadJSON(filepath.Join(dir, ManifestFileName), &mf); err != nil {
		return nil, err
	}
	if mf.Artifacts == nil {
		mf.Artifacts = map[string]string{}
	}
	s := &Store{dir: dir, manifest: mf}
	s.rebuildOrder()
	return s, nil
}

func (s *Store) Dir() string          { return s.dir }
func (s *Store) ProjectID() string    { return s.manifest.ProjectID }
func (s *Store) ProjectName() string  { return s.manifest.ProjectName }
func (s *Store) ManifestPath() string { return filepath.Join(s.dir, ManifestFileName) }

// Save copies the file at sourcePath into the category directory implied by
// key and records it in the manifest, superseding any prior entry for the
// same key. The superseded file is removed; there is no versioning.
func (s *Store) Save(key, sourcePath string, metadata map[string]any) (Artifact, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Artifact{}, fmt.Errorf("artifact key is required")
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Artifact{}, fmt.Errorf("%w: %s", ErrSourceMissing, sourcePath)
		}
		return Artifact{}, fmt.Errorf("stat source %s: %w", sourcePath, err)
	}
	if info.IsDir() {
		return Artifact{}, fmt.Errorf("%w: %s is a directory", ErrSourceMissing, sourcePath)
	}

	dest := s.destPath(key, filepath.Ext(sourcePath))
	if err := copyFile(sourcePath, dest); err != nil {
		return Artifact{}, fmt.Errorf("%w: copy artifact %s: %v", ErrStorage, key, err)
	}
	return s.record(key, dest, metadata)
}

// SaveBytes stores an in-memory payload (AI responses, generated metadata)
// as an artifact. ext selects the destination file extension.
func (s *Store) SaveBytes(key string, data []byte, ext string, metadata map[string]any) (Artifact, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Artifact{}, fmt.Errorf("artifact key is required")
	}
	ext = strings.TrimSpace(ext)
	if ext == "" {
		ext = ".txt"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	dest := s.destPath(key, ext)
	if err := fsjson.WriteBytes(dest, data); err != nil {
		return Artifact{}, fmt.Errorf("%w: write artifact %s: %v", ErrStorage, key, err)
	}
	return s.record(key, dest, metadata)
}

// Get returns the recorded path for key. A key the manifest has never seen
// yields ErrArtifactNotFound; a recorded entry whose backing file is gone
// yields ErrArtifactMissingOnDisk.
func (s *Store) Get(key string) (string, error) {
	path, ok := s.manifest.Artifacts[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrArtifactNotFound, key)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s (%s)", ErrArtifactMissingOnDisk, key, path)
	}
	return path, nil
}

// Has reports whether key has a live manifest entry whose file exists.
func (s *Store) Has(key string) bool {
	_, err := s.Get(key)
	return err == nil
}

// Metadata returns the provenance metadata recorded with key, or nil when
// none was saved.
func (s *Store) Metadata(key string) map[string]any {
	var meta map[string]any
	if err := fsjson.ReadJSON(s.metadataPath(key), &meta); err != nil {
		return nil
	}
	return meta
}

// List returns every live artifact with its size read from disk. Well-known
// keys come first in their declared order, then any open-vocabulary keys in
// the order they were first saved.
func (s *Store) List() []Artifact {
	out := make([]Artifact, 0, len(s.order))
	for _, key := range s.order {
		path, ok := s.manifest.Artifacts[key]
		if !ok {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		out = append(out, Artifact{
			Key:      key,
			Label:    KeyLabels[key],
			Path:     path,
			Category: CategoryForKey(key),
			Size:     info.Size(),
			Modified: info.ModTime().UTC().Format(time.RFC3339),
			Metadata: s.Metadata(key),
		})
	}
	return out
}

// Delete removes both the manifest entry and the backing file. Deleting a
// key that was never saved is a no-op.
func (s *Store) Delete(key string) error {
	path, ok := s.manifest.Artifacts[key]
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove artifact %s: %v", ErrStorage, key, err)
	}
	_ = os.Remove(s.metadataPath(key))
	delete(s.manifest.Artifacts, key)
	if i := slices.Index(s.order, key); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return s.writeManifest()
}

func (s *Store) destPath(key, ext string) string {
	return filepath.Join(s.dir, CategoryForKey(key), key+ext)
}

func (s *Store) metadataPath(key string) string {
	return filepath.Join(s.dir, CategoryMetadata, key+"_metadata.json")
}

func (s *Store) record(key, dest string, metadata map[string]any) (Artifact, error) {
	if prior, ok := s.manifest.Artifacts[key]; ok && prior != dest {
		// Same key, different extension: the superseded file would be
		// orphaned, so remove it.
		_ = os.Remove(prior)
	}
	if len(metadata) > 0 {
		if err := fsjson.WriteJSON(s.metadataPath(key), metadata); err != nil {
			return Artifact{}, err
		}
	}
	s.manifest.Artifacts[key] = dest
	if !slices.Contains(s.order, key) {
		s.order = append(s.order, key)
		s.rebuildOrder()
	}
	if err := s.writeManifest(); err != nil {
		return Artifact{}, err
	}

	info, err := os.Stat(dest)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %s (%s)", ErrArtifactMissingOnDisk, key, dest)
	}
	return Artifact{
		Key:      key,
		Label:    KeyLabels[key],
		Path:     dest,
		Category: CategoryForKey(key),
		Size:     info.Size(),
		Modified: info.ModTime().UTC().Format(time.RFC3339),
		Metadata: metadata,
	}, nil
}

func (s *Store) writeManifest() error {
	s.manifest.Updated = time.Now().UTC().Format(time.RFC3339)
	return fsjson.WriteJSON(s.ManifestPath(), s.manifest)
}

// rebuildOrder keeps well-known keys in declared order ahead of
// open-vocabulary keys, which stay in first-saved order (sorted after a
// reload, where first-saved order is no longer known).
func (s *Store) rebuildOrder() {
	known := make([]string, 0, len(s.manifest.Artifacts))
	for _, key := range KeyOrder {
		if _, ok := s.manifest.Artifacts[key]; ok {
			known = append(known, key)
		}
	}
	var extra []string
	if len(s.order) > 0 {
		for _, key := range s.order {
			if _, ok := s.manifest.Artifacts[key]; ok && !slices.Contains(KeyOrder, key) {
				extra = append(extra, key)
			}
		}
	} else {
		for key := range s.manifest.Artifacts {
			if !slices.Contains(KeyOrder, key) {
				extra = append(extra, key)
			}
		}
		sort.Strings(extra)
	}
	s.order = append(known, extra...)
}

// SanitizeProjectName keeps letters, digits and underscores, collapses
// whitespace and dash runs into single underscores, and caps the result at
// 50 characters.
func SanitizeProjectName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingSep && b.Len() > 0 {
				b.WriteRune('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			pendingSep = true
		}
	}
	out := b.String()
	if runes := []rune(out); len(runes) > 50 {
		out = string(runes[:50])
	}
	return strings.Trim(out, "_")
}

func ensureWritableDir(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("%w: create output root %s: %v", ErrStorage, root, err)
	}
	probe, err := os.CreateTemp(root, ".vstudio-probe-*")
	if err != nil {
		return fmt.Errorf("%w: output root %s is not writable: %v", ErrStorage, root, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
