package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// HarnessStore writes harness revisions under <root>/<dir>/<file>. Earlier revisions
// are renamed with a numeric suffix, never overwritten.
type HarnessStore struct {
	Root   string
	Dir    string
	File   string
	Logger *slog.Logger
}

// Path returns the path of the current revision.
func (h *HarnessStore) Path() string {
	return filepath.Join(h.Root, h.Dir, h.File)
}

// Write stores code as the current revision. An existing revision is first renamed to
// <base>_<n><ext> with the smallest n not yet taken.
func (h *HarnessStore) Write(code string) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(h.Root, h.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create harness dir: %w", err)
	}

	path := h.Path()
	if _, err := os.Stat(path); err == nil {
		prev, err := h.nextFree()
		if err != nil {
			return "", err
		}
		if err := os.Rename(path, prev); err != nil {
			return "", fmt.Errorf("rename previous harness: %w", err)
		}
		logger.Debug("previous harness kept", "path", prev)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write harness: %w", err)
	}
	logger.Info("harness written", "path", path)
	return path, nil
}

func (h *HarnessStore) nextFree() (string, error) {
	ext := filepath.Ext(h.File)
	base := strings.TrimSuffix(h.File, ext)
	for i := 1; ; i++ {
		p := filepath.Join(h.Root, h.Dir, base+"_"+strconv.Itoa(i)+ext)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p, nil
		} else if err != nil {
			return "", err
		}
	}
}

// Revisions returns the number of harness files written so far.
func (h *HarnessStore) Revisions() int {
	ext := filepath.Ext(h.File)
	base := strings.TrimSuffix(h.File, ext)
	matches, _ := filepath.Glob(filepath.Join(h.Root, h.Dir, base+"*"+ext))
	return len(matches)
}
