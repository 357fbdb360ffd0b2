package mentor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReadWorkspace concatenates the contents of paths, resolved relative to
// dir, up to maxBytes in total. Paths that escape dir are skipped; missing
// files are skipped. The result is untrusted and must be sanitized before it
// is sent anywhere.
func ReadWorkspace(dir string, paths []string, maxBytes int) (string, error) {
	if len(paths) == 0 || maxBytes <= 0 {
		return "", nil
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("mentor: resolving workspace: %w", err)
	}

	var b strings.Builder
	for _, p := range paths {
		remaining := maxBytes - b.Len()
		if remaining <= 0 {
			break
		}
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(root, p)
		}
		full = filepath.Clean(full)
		rel, err := filepath.Rel(root, full)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}

		data, err := readLimited(full, remaining)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("mentor: reading %s: %w", rel, err)
		}
		fmt.Fprintf(&b, "// file: %s\n%s\n", rel, data)
	}

	out := b.String()
	if len(out) > maxBytes {
		out = out[:maxBytes]
	}
	return out, nil
}

func readLimited(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, int64(n)))
}
