// Package write puts generated scripts on disk.
package write

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type Writer interface {
	Write(path string, content []byte, options WriteOptions) (Result, error)
	NeedsWrite(path string, content []byte) (bool, error)
}

type WriteOptions struct {
	CreateDirs bool
	// Backup copies an existing script to BackupDir (default: next to it)
	// as <name>.bak before it is replaced.
	Backup    bool
	BackupDir string
	// Force writes even when the file already holds the same bytes.
	Force  bool
	Atomic bool
}

// DefaultOptions is what the CLI uses for a build.
func DefaultOptions() WriteOptions {
	return WriteOptions{CreateDirs: true, Atomic: true}
}

// Result describes what a Write did.
type Result struct {
	Path       string
	Written    bool
	BackupPath string
}

type BaseWriter struct {
	logger *slog.Logger
}

func NewBaseWriter(logger *slog.Logger) *BaseWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseWriter{logger: logger}
}

// Write stores content at path. An unchanged script is left alone, so its
// modification time only moves when the content does.
func (bw *BaseWriter) Write(path string, content []byte, options WriteOptions) (Result, error) {
	result := Result{Path: path}

	if !options.Force {
		needed, err := bw.NeedsWrite(path, content)
		if err != nil {
			return result, fmt.Errorf("failed to compare existing script: %w", err)
		}
		if !needed {
			bw.logger.Debug("script unchanged, skipping write", "path", path)
			return result, nil
		}
	}

	if options.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return result, fmt.Errorf("failed to create directories: %w", err)
		}
	}

	if options.Backup {
		backupPath, err := bw.createBackup(path, options.BackupDir)
		if err != nil {
			return result, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupPath = backupPath
	}

	var err error
	if options.Atomic {
		err = bw.atomicWrite(path, content)
	} else {
		err = os.WriteFile(path, content, 0o644)
	}
	if err != nil {
		return result, fmt.Errorf("failed to write %s: %w", path, err)
	}

	result.Written = true
	bw.logger.Debug("wrote script", "path", path, "bytes", len(content), "backup", result.BackupPath)
	return result, nil
}

func (bw *BaseWriter) NeedsWrite(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}

	return !bytes.Equal(existing, content), nil
}

// createBackup returns the backup path, or "" when there was nothing to
// back up.
func (bw *BaseWriter) createBackup(path, backupDir string) (string, error) {
	input, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer input.Close()

	if backupDir == "" {
		backupDir = filepath.Dir(path)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", err
	}

	backupPath := filepath.Join(backupDir, filepath.Base(path)+".bak")
	output, err := os.Create(backupPath)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(output, input); err != nil {
		output.Close()
		return "", err
	}
	return backupPath, output.Close()
}

// atomicWrite writes to a temporary file in the target directory and renames
// it into place, so readers never see a partial script.
func (bw *BaseWriter) atomicWrite(path string, content []byte) error {
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tempPath := file.Name()

	if _, err := file.Write(content); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}

	if err := file.Chmod(0o644); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
