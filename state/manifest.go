// Package state records what nsisgen generated, so later runs can tell a
// script it wrote apart from one that was edited by hand.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ManifestFile is the name of the manifest stored next to generated scripts.
const ManifestFile = ".nsisgen.manifest.json"

const manifestVersion = "1"

type ScriptEntry struct {
	Path         string    `json:"path"`
	Hash         string    `json:"hash"`
	Size         int64     `json:"size"`
	Sections     []string  `json:"sections"`
	Directories  int       `json:"directories"`
	Files        int       `json:"files"`
	SourceDir    string    `json:"source_dir,omitempty"`
	GenerationID string    `json:"generation_id"`
	Generated    time.Time `json:"generated"`
}

type Manifest struct {
	Version   string                 `json:"version"`
	Generator string                 `json:"generator"`
	Updated   time.Time              `json:"updated"`
	Scripts   map[string]ScriptEntry `json:"scripts"`
}

// Generation describes one run that produced a script.
type Generation struct {
	Sections    []string
	Directories int
	Files       int
	SourceDir   string
}

type ManifestManager struct {
	dir          string
	manifestPath string
}

// NewManifestManager manages the manifest in dir, normally the directory the
// script is written to.
func NewManifestManager(dir string) *ManifestManager {
	return &ManifestManager{
		dir:          dir,
		manifestPath: filepath.Join(dir, ManifestFile),
	}
}

func (mm *ManifestManager) Path() string {
	return mm.manifestPath
}

func (mm *ManifestManager) LoadManifest() (*Manifest, error) {
	file, err := os.Open(mm.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return mm.createEmptyManifest(), nil
		}
		return nil, fmt.Errorf("failed to open manifest file: %w", err)
	}
	defer file.Close()

	var manifest Manifest
	if err := json.NewDecoder(file).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if manifest.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %q", manifest.Version)
	}
	if manifest.Scripts == nil {
		manifest.Scripts = make(map[string]ScriptEntry)
	}

	return &manifest, nil
}

func (mm *ManifestManager) SaveManifest(manifest *Manifest) error {
	if err := os.MkdirAll(mm.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmpPath := mm.manifestPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary manifest file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(manifest); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary manifest file: %w", err)
	}

	if err := os.Rename(tmpPath, mm.manifestPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move manifest file: %w", err)
	}

	return nil
}

// Record stores an entry for the script at path with the given content. The
// entry is keyed by the script's path relative to the manifest directory.
func (mm *ManifestManager) Record(manifest *Manifest, path string, content []byte, gen Generation) (ScriptEntry, error) {
	key, err := mm.key(path)
	if err != nil {
		return ScriptEntry{}, err
	}

	now := time.Now().UTC()
	entry := ScriptEntry{
		Path:         key,
		Hash:         hashBytes(content),
		Size:         int64(len(content)),
		Sections:     gen.Sections,
		Directories:  gen.Directories,
		Files:        gen.Files,
		SourceDir:    gen.SourceDir,
		GenerationID: uuid.NewString(),
		Generated:    now,
	}

	if manifest.Scripts == nil {
		manifest.Scripts = make(map[string]ScriptEntry)
	}
	manifest.Scripts[key] = entry
	manifest.Updated = now

	return entry, nil
}

func (mm *ManifestManager) GetEntry(manifest *Manifest, path string) (ScriptEntry, bool) {
	key, err := mm.key(path)
	if err != nil || manifest.Scripts == nil {
		return ScriptEntry{}, false
	}
	entry, exists := manifest.Scripts[key]
	return entry, exists
}

// HasChanged reports whether the script at path differs from what was last
// recorded for it. A missing file or an unrecorded script counts as changed.
func (mm *ManifestManager) HasChanged(manifest *Manifest, path string) (bool, error) {
	entry, exists := mm.GetEntry(manifest, path)
	if !exists {
		return true, nil
	}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if stat.Size() != entry.Size {
		return true, nil
	}

	hash, err := hashFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to calculate hash for %s: %w", path, err)
	}

	return hash != entry.Hash, nil
}

func (mm *ManifestManager) key(path string) (string, error) {
	absDir, err := filepath.Abs(mm.dir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (mm *ManifestManager) createEmptyManifest() *Manifest {
	return &Manifest{
		Version:   manifestVersion,
		Generator: "nsisgen",
		Scripts:   make(map[string]ScriptEntry),
	}
}

func hashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
