// Package fileutil holds the copy helpers used when publishing results.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile streams src to dst with mode 0o644, replacing dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// PublishFile copies src next to dst, checks the copy against the source
// size and SHA-256, then renames it over dst. Readers of dst see either the
// old file or the complete new one. Returns the hex digest.
func PublishFile(src, dst string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	srcHash := sha256.New()
	written, err := io.Copy(tmp, io.TeeReader(in, srcHash))
	if err != nil {
		return "", err
	}
	if written != info.Size() {
		return "", fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind temp file: %w", err)
	}
	dstHash := sha256.New()
	if _, err := io.Copy(dstHash, tmp); err != nil {
		return "", fmt.Errorf("read back temp file: %w", err)
	}
	want := hex.EncodeToString(srcHash.Sum(nil))
	if got := hex.EncodeToString(dstHash.Sum(nil)); got != want {
		return "", fmt.Errorf("copy hash mismatch: source %s, copied %s", want, got)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return want, nil
}
