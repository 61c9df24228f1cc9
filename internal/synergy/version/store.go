package version

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/model"
)

// ErrNotFound signals an unknown version id. Every store operation uses
// this one sentinel for the missing-version case so callers in
// best-effort recovery flows can branch on errors.Is without guessing
// which operation raises and which returns a flag.
var ErrNotFound = errors.New("model version not found")

const manifestFile = "manifest.json"

// VersionInfo describes one stored model version.
type VersionInfo struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Path      string         `json:"path"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// manifest is the on-disk index of all versions plus the current one.
type manifest struct {
	Current  string                  `json:"current"`
	Versions map[string]*VersionInfo `json:"versions"`
}

// Store persists model snapshots under one directory: a manifest.json
// index next to one <id>.model.json artifact per version. The manifest
// is rewritten on every mutation, so version history survives process
// restarts. A single mutex serializes mutations; the manifest is not
// designed for concurrent writers.
type Store struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	manifest manifest
}

// NewStore opens (or initializes) a version store rooted at dir,
// reloading any manifest a previous process left behind.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model dir: %w", err)
	}

	s := &Store{
		dir:      dir,
		logger:   logger,
		manifest: manifest{Versions: make(map[string]*VersionInfo)},
	}

	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(raw, &s.manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if s.manifest.Versions == nil {
		s.manifest.Versions = make(map[string]*VersionInfo)
	}

	s.logger.Info("Loaded model version manifest",
		"versions", len(s.manifest.Versions),
		"current", s.manifest.Current)
	return s, nil
}

// Save serializes a snapshot as a new version and makes it current.
// When versionID is empty an id of the form vYYYYMMDDHHMMSS-<uuid8> is
// assigned; an explicit id that already exists is an error.
func (s *Store) Save(snap model.Snapshot, versionID string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if versionID == "" {
		versionID = fmt.Sprintf("v%s-%s", time.Now().UTC().Format("20060102150405"), uuid.New().String()[:8])
	} else if _, exists := s.manifest.Versions[versionID]; exists {
		return "", fmt.Errorf("version %q already exists", versionID)
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize model: %w", err)
	}

	artifact := versionID + ".model.json"
	if err := os.WriteFile(filepath.Join(s.dir, artifact), raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write model artifact: %w", err)
	}

	s.manifest.Versions[versionID] = &VersionInfo{
		ID:        versionID,
		CreatedAt: time.Now().UTC(),
		Path:      artifact,
		Metadata:  cloneMetadata(metadata),
	}
	s.manifest.Current = versionID

	if err := s.writeManifest(); err != nil {
		return "", err
	}

	s.logger.Info("Saved model version", "version", versionID)
	return versionID, nil
}

// Load reads a stored snapshot back. Unknown ids return ErrNotFound.
func (s *Store) Load(versionID string) (model.Snapshot, error) {
	s.mu.Lock()
	info, ok := s.manifest.Versions[versionID]
	s.mu.Unlock()
	if !ok {
		return model.Snapshot{}, fmt.Errorf("load %q: %w", versionID, ErrNotFound)
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, info.Path))
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to read model artifact %q: %w", info.Path, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to parse model artifact %q: %w", info.Path, err)
	}
	return snap, nil
}

// Current returns the most recently saved (or rolled-back-to) version.
// An empty store returns ErrNotFound.
func (s *Store) Current() (VersionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest.Current == "" {
		return VersionInfo{}, fmt.Errorf("no current version: %w", ErrNotFound)
	}
	info, ok := s.manifest.Versions[s.manifest.Current]
	if !ok {
		return VersionInfo{}, fmt.Errorf("current version %q missing from manifest: %w", s.manifest.Current, ErrNotFound)
	}
	return copyInfo(info), nil
}

// Rollback copies a stored artifact to the active serving path and
// marks that version current. Unknown ids return ErrNotFound so
// best-effort recovery flows can continue past them.
func (s *Store) Rollback(versionID, targetPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.manifest.Versions[versionID]
	if !ok {
		return fmt.Errorf("rollback to %q: %w", versionID, ErrNotFound)
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, info.Path))
	if err != nil {
		return fmt.Errorf("failed to read model artifact %q: %w", info.Path, err)
	}
	if err := os.WriteFile(targetPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write active model: %w", err)
	}

	s.manifest.Current = versionID
	if err := s.writeManifest(); err != nil {
		return err
	}

	s.logger.Info("Rolled back model version", "version", versionID, "target", targetPath)
	return nil
}

// List returns all versions newest-first by CreatedAt, ties broken by
// id descending so the order is total and restart-stable.
func (s *Store) List() []VersionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := make([]VersionInfo, 0, len(s.manifest.Versions))
	for _, info := range s.manifest.Versions {
		versions = append(versions, copyInfo(info))
	}

	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].CreatedAt.After(versions[j].CreatedAt)
		}
		return versions[i].ID > versions[j].ID
	})
	return versions
}

// Delete removes a version's artifact and metadata. Deleting the
// current version promotes the newest remaining one. A second delete of
// the same id returns ErrNotFound and changes nothing.
func (s *Store) Delete(versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.manifest.Versions[versionID]
	if !ok {
		return fmt.Errorf("delete %q: %w", versionID, ErrNotFound)
	}

	if err := os.Remove(filepath.Join(s.dir, info.Path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove model artifact %q: %w", info.Path, err)
	}
	delete(s.manifest.Versions, versionID)

	if s.manifest.Current == versionID {
		s.manifest.Current = s.newestLocked()
	}

	if err := s.writeManifest(); err != nil {
		return err
	}

	s.logger.Info("Deleted model version", "version", versionID, "current", s.manifest.Current)
	return nil
}

// newestLocked finds the id that List would put first, "" when empty.
// Caller holds s.mu.
func (s *Store) newestLocked() string {
	newest := ""
	var newestAt time.Time
	for id, info := range s.manifest.Versions {
		if newest == "" ||
			info.CreatedAt.After(newestAt) ||
			(info.CreatedAt.Equal(newestAt) && id > newest) {
			newest = id
			newestAt = info.CreatedAt
		}
	}
	return newest
}

// writeManifest persists the manifest via temp-file rename. Caller
// holds s.mu.
func (s *Store) writeManifest() error {
	raw, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	tmp := filepath.Join(s.dir, manifestFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, manifestFile)); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

func copyInfo(info *VersionInfo) VersionInfo {
	out := *info
	out.Metadata = cloneMetadata(info.Metadata)
	return out
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
