package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// SafeJoin places an untrusted filename under root. Uploaded names can
// carry path separators or traversal segments; only the base name is
// kept, and names reducing to nothing get a placeholder.
func SafeJoin(root, name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "unnamed"
	}
	return filepath.Join(root, base)
}
