// Package security checks paths and names that come from the network or the
// command line before they reach the filesystem.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxFilenameLen = 64

// ValidatePathWithinDirectory rejects filePath when its canonical form lies
// outside dir. Symlinks are resolved on the longest existing prefix, so a
// file that does not exist yet is still checked against its real parent.
func ValidatePathWithinDirectory(filePath, dir string) error {
	abs, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", filePath, err)
	}
	canonical, err := resolveExisting(abs)
	if err != nil {
		return err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(canonicalDir, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", filePath, dir)
	}
	return nil
}

func resolveExisting(abs string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for p := abs; ; {
		parent := filepath.Dir(p)
		if parent == p {
			return abs, nil
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rest, err := filepath.Rel(parent, abs)
			if err != nil {
				return "", fmt.Errorf("failed to resolve %s: %w", abs, err)
			}
			return filepath.Join(resolved, rest), nil
		}
		p = parent
	}
}

// ValidateExportPath accepts paths under the working directory or the
// system temp directory.
func ValidateExportPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{cwd, os.TempDir()} {
		if ValidatePathWithinDirectory(filePath, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("path %s must be within %s or %s", filePath, cwd, os.TempDir())
}

// SanitizeFilename reduces s to ASCII letters, digits, '.', '_' and '-' so it
// can be embedded in a file name. Runs of other characters become a single
// '_'. fallback is returned when nothing usable remains.
func SanitizeFilename(s, fallback string) string {
	var b strings.Builder
	underscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			underscore = false
		case !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}
	if out := strings.Trim(b.String(), "._"); out != "" {
		return out
	}
	return fallback
}
