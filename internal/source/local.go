package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"securethread/internal/model"
)

var skipDirNames = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, "dist": {}, "build": {},
	".next": {}, "target": {}, "coverage": {}, "__pycache__": {},
	".aws": {}, ".ssh": {}, ".gnupg": {},
}

var skipFileExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".pdf": {}, ".zip": {}, ".gz": {}, ".tar": {}, ".tgz": {},
	".mp3": {}, ".wav": {}, ".mp4": {}, ".mov": {}, ".avi": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".class": {}, ".jar": {},
}

// Local serves files straight from a directory tree on disk. The repo
// reference passed to its methods is the root path.
type Local struct{}

func NewLocal() *Local { return &Local{} }

// ListFiles walks the tree, skipping VCS/build directories, symlinks, and
// obviously binary extensions. Ordering is stable (path ascending).
func (l *Local) ListFiles(ctx context.Context, repo string) ([]model.FileCandidate, error) {
	root, err := filepath.Abs(repo)
	if err != nil {
		return nil, fmt.Errorf("resolve repo path: %w", err)
	}
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat repo path: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("repo path is not a directory: %s", root)
	}

	var out []model.FileCandidate
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if _, skip := skipDirNames[name]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if !info.Mode().IsRegular() || info.Size() == 0 {
			return nil
		}
		if _, skip := skipFileExts[strings.ToLower(filepath.Ext(name))]; skip {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		out = append(out, model.FileCandidate{
			Path: filepath.ToSlash(rel),
			Size: info.Size(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk repo: %w", walkErr)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// GetFileContent reads one file and sniffs for binary content via NUL bytes
// in the leading window.
func (l *Local) GetFileContent(ctx context.Context, repo string, path string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	full := filepath.Join(repo, filepath.FromSlash(path))
	data, err := os.ReadFile(full)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	if isBinary(data) {
		return "", true, nil
	}
	return string(data), false, nil
}

func isBinary(data []byte) bool {
	window := data
	if len(window) > 8192 {
		window = window[:8192]
	}
	return bytes.IndexByte(window, 0) >= 0
}
