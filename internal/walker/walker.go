package walker

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo holds metadata about a discovered source file.
type FileInfo struct {
	Path    string
	RelPath string
	Size    int64
}

// DefaultMaxFileSize is the largest file worth chunking (1 MB).
const DefaultMaxFileSize = 1 << 20

// IgnoreFile lists extra patterns, one per line, matched against directory and file
// names as well as slash-separated relative paths.
const IgnoreFile = ".overhaulignore"

// Options selects which files a walk emits.
type Options struct {
	// Extensions are matched against filepath.Ext, dot included (".c").
	Extensions []string
	// IgnoredFiles are glob patterns matched against the base name.
	IgnoredFiles []string
	// IgnoredDirs are directory names pruned wherever they appear.
	IgnoredDirs []string
	// SkipPrefixes drops files whose base name starts with any of them.
	SkipPrefixes []string
	// MaxFileSize drops empty files and files larger than it. 0 keeps every size.
	MaxFileSize int64
}

// Walk traverses the directory tree rooted at root and sends discovered source files
// on the returned channel. Hidden entries, ignored directories and symlinks are
// skipped, as are empty and oversized files when opts.MaxFileSize is set.
func Walk(root string, opts Options) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errs <- err
			return
		}

		extra := loadIgnorePatterns(absRoot)

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip errors, keep walking
			}

			rel, _ := filepath.Rel(absRoot, path)
			rel = filepath.ToSlash(rel)
			name := d.Name()

			if d.IsDir() {
				if path == absRoot {
					return nil
				}
				if strings.HasPrefix(name, ".") || containsName(opts.IgnoredDirs, name) || matchesIgnore(name, rel, extra) {
					return filepath.SkipDir
				}
				return nil
			}

			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if !Accept(name, opts) || matchesIgnore(name, rel, extra) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			if opts.MaxFileSize > 0 && (info.Size() > opts.MaxFileSize || info.Size() == 0) {
				return nil
			}

			files <- FileInfo{
				Path:    path,
				RelPath: rel,
				Size:    info.Size(),
			}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// Collect drains Walk and returns the files sorted by relative path.
func Collect(root string, opts Options) ([]FileInfo, error) {
	ch, errCh := Walk(root, opts)
	var out []FileInfo
	for fi := range ch {
		out = append(out, fi)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}

// Accept reports whether a file base name passes the extension, prefix and glob rules.
func Accept(name string, opts Options) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	for _, p := range opts.SkipPrefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	if len(opts.Extensions) > 0 {
		ok := false
		for _, ext := range opts.Extensions {
			if strings.HasSuffix(name, ext) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, p := range opts.IgnoredFiles {
		if matched, _ := filepath.Match(p, name); matched {
			return false
		}
	}
	return true
}

// Dirs returns every non-hidden directory under root, relative and slash-separated,
// with the root itself reported as ".". The result is sorted.
func Dirs(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != absRoot && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(absRoot, path)
		dirs = append(dirs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads the optional ignore file from the project root.
func loadIgnorePatterns(root string) []string {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// matchesIgnore checks if a name or relative path matches any ignore pattern.
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		if name == p {
			return true
		}
		// Path prefix match (e.g. "third_party/vendor").
		if strings.HasPrefix(relPath, p+"/") || relPath == p {
			return true
		}
		if matched, _ := filepath.Match(p, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}
