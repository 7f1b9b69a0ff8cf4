package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/kadirbelkuyu/SQLBM/internal/errors"
)

// FileFailure is one artifact a batch operation could not handle.
type FileFailure struct {
	Path string
	Err  error
}

// BatchResult lists what a Delete or Copy managed and what it did not.
// Successes are kept even when some files failed.
type BatchResult struct {
	Succeeded []string
	Failed    []FileFailure
}

// Err is a KindFilesystem error naming every failed file, or nil.
func (r BatchResult) Err(op string) error {
	if len(r.Failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, fmt.Sprintf("%s (%v)", filepath.Base(f.Path), f.Err))
	}
	return &apperrors.Error{
		Kind:    apperrors.KindFilesystem,
		Op:      op,
		Message: fmt.Sprintf("%d of %d files failed: %s", len(r.Failed), len(r.Failed)+len(r.Succeeded), strings.Join(names, "; ")),
		Cause:   r.Failed[0].Err,
	}
}

// Delete removes each record's file.
func Delete(records []Record) BatchResult {
	var result BatchResult
	for _, r := range records {
		if err := os.Remove(r.FullPath); err != nil {
			result.Failed = append(result.Failed, FileFailure{Path: r.FullPath, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, r.FullPath)
	}
	return result
}

// Copy copies each record's file into destDir and verifies the copy with a
// SHA-256 comparison. Existing files in destDir are overwritten.
func Copy(records []Record, destDir string) BatchResult {
	var result BatchResult
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		for _, r := range records {
			result.Failed = append(result.Failed, FileFailure{Path: r.FullPath, Err: err})
		}
		return result
	}

	for _, r := range records {
		target := filepath.Join(destDir, r.FileName)
		if err := copyVerified(r.FullPath, target); err != nil {
			result.Failed = append(result.Failed, FileFailure{Path: r.FullPath, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, target)
	}
	return result
}

func copyVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer in.Close()

	// Creating dst would truncate src when both name the same file.
	if same, err := sameFile(in, src, dst); err != nil {
		return err
	} else if same {
		return fmt.Errorf("%s is the source file itself", dst)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy backup file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", dst, err)
	}

	written, err := FileChecksum(dst)
	if err != nil {
		return err
	}
	if expected := hex.EncodeToString(hasher.Sum(nil)); written != expected {
		return fmt.Errorf("checksum mismatch for %s", dst)
	}
	return nil
}

func sameFile(in *os.File, src, dst string) (bool, error) {
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", src, err)
	}
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", dst, err)
	}
	if srcAbs == dstAbs {
		return true, nil
	}

	dstInfo, err := os.Stat(dst)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", dst, err)
	}
	srcInfo, err := in.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", src, err)
	}
	return os.SameFile(srcInfo, dstInfo), nil
}

// FileChecksum returns the hex SHA-256 of the file at path.
func FileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
