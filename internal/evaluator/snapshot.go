package evaluator

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ArchiveDir is where stale artifacts are moved, relative to the project root.
const ArchiveDir = ".overhaul/artifacts"

func artifactKind(name string) string {
	switch {
	case strings.HasPrefix(name, KindCrash+"-"):
		return KindCrash
	case strings.HasPrefix(name, KindLeak+"-"):
		return KindLeak
	}
	return ""
}

// TakeSnapshot lists the crash and leak files directly inside dir. File modification
// time stands in for creation time.
func TakeSnapshot(dir string) (Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", dir, err)
	}
	snap := make(Snapshot)
	for _, e := range entries {
		kind := artifactKind(e.Name())
		if kind == "" || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		snap[e.Name()] = Artifact{
			Name:    e.Name(),
			Kind:    kind,
			Created: info.ModTime(),
			Size:    info.Size(),
		}
	}
	return snap, nil
}

// ArchiveArtifacts moves every crash and leak file in dir to
// <dir>/.overhaul/artifacts/iter-<iteration>/ and returns how many were moved.
func ArchiveArtifacts(dir string, iteration int) (int, error) {
	snap, err := TakeSnapshot(dir)
	if err != nil {
		return 0, err
	}
	if len(snap) == 0 {
		return 0, nil
	}
	dest := filepath.Join(dir, filepath.FromSlash(ArchiveDir), "iter-"+strconv.Itoa(iteration))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, err
	}
	moved := 0
	for name := range snap {
		if err := os.Rename(filepath.Join(dir, name), filepath.Join(dest, name)); err != nil {
			return moved, fmt.Errorf("archive %s: %w", name, err)
		}
		moved++
	}
	return moved, nil
}

// Dump returns a hex dump of the first max bytes of the artifact, for inclusion in
// feedback to the model.
func Dump(dir, name string, max int) (string, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, max)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return hex.Dump(buf[:n]), nil
}
