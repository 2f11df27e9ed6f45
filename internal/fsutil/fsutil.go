// Package fsutil derives the on-disk layout for project-scoped documents
// and shared artifacts, and sanitizes the project name used to build it.
package fsutil

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxNameLength bounds a sanitized project name.
const MaxNameLength = 50

var disallowedChar = regexp.MustCompile(`[^a-z0-9_-]`)

// SanitizeName lowercases name, strips every character outside
// [a-z0-9_-], truncates to MaxNameLength, and rejects a result that is
// empty or begins with '.' or '-'.
func SanitizeName(name string) (string, error) {
	lowered := strings.ToLower(name)
	cleaned := disallowedChar.ReplaceAllString(lowered, "")
	if len(cleaned) > MaxNameLength {
		cleaned = cleaned[:MaxNameLength]
	}
	if cleaned == "" {
		return "", fmt.Errorf("sanitized name is empty")
	}
	if cleaned[0] == '.' || cleaned[0] == '-' {
		return "", fmt.Errorf("sanitized name %q must not begin with '.' or '-'", cleaned)
	}
	return cleaned, nil
}

// Layout is the set of directories a project owns under a base path.
type Layout struct {
	Root             string
	DocsPath         string
	SharedPath       string
	InstructionsPath string
}

// ProjectLayout derives the project's directory layout under basePath,
// following the <base>/<sanitized-name>/{docs,shared,instructions}
// convention. It does not create any directories; callers that need
// them on disk call os.MkdirAll against the returned paths themselves.
func ProjectLayout(basePath, name string) (*Layout, error) {
	sanitized, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}
	root := filepath.Join(basePath, sanitized)
	return &Layout{
		Root:             root,
		DocsPath:         filepath.Join(root, "docs"),
		SharedPath:       filepath.Join(root, "shared"),
		InstructionsPath: filepath.Join(root, "instructions"),
	}, nil
}

// ValidatePath rejects any path containing "..", a leading "/", a
// backslash, or a control character, then verifies the cleaned absolute
// path still resolves under base. Used to stop a stored or caller-
// supplied relative path from escaping the project's directory.
func ValidatePath(base, path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path %q must not contain '..'", path)
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("path %q must not be absolute", path)
	}
	if strings.ContainsRune(path, '\\') {
		return fmt.Errorf("path %q must not contain a backslash", path)
	}
	for _, r := range path {
		if r < 0x20 {
			return fmt.Errorf("path %q contains a control character", path)
		}
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(base, path))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if absPath != absBase && !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes base %q", path, base)
	}
	return nil
}
