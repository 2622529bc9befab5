package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrGitMissing is returned when a URL has to be cloned but git is not on PATH.
var ErrGitMissing = errors.New("git not found in PATH")

var nameRe = regexp.MustCompile(`/([^/]+?)(?:\.git)?/?$`)

// Name extracts the repository name from a clone URL.
func Name(url string) (string, error) {
	m := nameRe.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("could not extract repo name from URL: %s", url)
	}
	return m[1], nil
}

// Fetcher materialises a project on disk.
type Fetcher struct {
	// OutputDir receives clones, one subdirectory per repository.
	OutputDir string
	Logger    *slog.Logger
}

// Fetch returns the absolute path of the project named by src. An existing local
// directory is used in place and commit is ignored. Anything else is treated as a git
// URL and shallow-cloned into OutputDir/<name>, replacing whatever was there. With a
// commit, that commit is fetched and checked out. Submodules are initialised and the
// .github directory is removed.
func (f *Fetcher) Fetch(ctx context.Context, src, commit string) (string, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if info, err := os.Stat(src); err == nil && info.IsDir() {
		abs, err := filepath.Abs(src)
		if err != nil {
			return "", err
		}
		if commit != "" {
			logger.Warn("ignoring commit for local project", "path", abs, "commit", commit)
		}
		return abs, nil
	}

	name, err := Name(src)
	if err != nil {
		return "", err
	}
	if _, err := exec.LookPath("git"); err != nil {
		return "", ErrGitMissing
	}

	dest, err := filepath.Abs(filepath.Join(f.OutputDir, name))
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("clear %s: %w", dest, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	logger.Info("cloning", "url", src, "dest", dest, "commit", commit)
	if err := git(ctx, "", "clone", "--depth", "1", src, dest); err != nil {
		return "", err
	}
	if commit != "" {
		if err := git(ctx, dest, "fetch", "--depth", "1", "origin", commit); err != nil {
			return "", err
		}
		if err := git(ctx, dest, "checkout", commit); err != nil {
			return "", err
		}
	}
	if err := git(ctx, dest, "submodule", "update", "--init", "--recursive", "--depth", "1"); err != nil {
		return "", err
	}
	if err := os.RemoveAll(filepath.Join(dest, ".github")); err != nil {
		return "", err
	}
	return dest, nil
}

func git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
