// Package safepath resolves a canonical root directory and checks that
// paths derived from it stay contained within it.
package safepath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape indicates an attempt to access a path outside the root.
	ErrPathEscape = errors.New("path escapes root directory")
	// ErrSymlinkEscape indicates a symlink resolves outside the root.
	ErrSymlinkEscape = errors.New("symlink target escapes root directory")
	// ErrInvalidRoot indicates the root path is invalid.
	ErrInvalidRoot = errors.New("invalid root directory")
)

// Validator ensures paths are contained within a root directory.
type Validator struct {
	root string // Absolute, symlink-free, cleaned path to root directory.
}

// New creates a Validator for root. The root must be an existing directory;
// it is made absolute and its symlinks are resolved so that every alias of
// the same directory yields the same Root.
func New(root string) (*Validator, error) {
	cleanRoot, err := Canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory", ErrInvalidRoot)
	}

	return &Validator{root: cleanRoot}, nil
}

// Canonicalize returns the absolute, cleaned form of path with symlinks
// resolved. The path must exist.
func Canonicalize(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", err
	}

	return filepath.Clean(resolved), nil
}

// Root returns the canonical path to the root directory.
func (v *Validator) Root() string {
	return v.root
}

// Contains checks if the given path is within the root directory.
// It resolves the path to absolute form but does NOT follow symlinks.
func (v *Validator) Contains(path string) bool {
	return v.ValidatePath(path) == nil
}

// ValidatePath returns ErrPathEscape if path is outside the root.
func (v *Validator) ValidatePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve path", ErrPathEscape)
	}

	if !isSubPath(v.root, filepath.Clean(absPath)) {
		return ErrPathEscape
	}

	return nil
}

// ResolveSafePath resolves a potentially relative path against basePath and
// returns the cleaned absolute result. Returns error if it would escape root.
func (v *Validator) ResolveSafePath(basePath, relativePath string) (string, error) {
	fullPath := relativePath
	if !filepath.IsAbs(relativePath) {
		fullPath = filepath.Join(basePath, relativePath)
	}

	cleanPath := filepath.Clean(fullPath)
	if err := v.ValidatePath(cleanPath); err != nil {
		return "", err
	}

	return cleanPath, nil
}

// ResolveDir resolves relativePath against the root and requires the result
// to be an existing directory whose real location is also inside the root.
// An empty relativePath yields the root itself.
func (v *Validator) ResolveDir(relativePath string) (string, error) {
	if relativePath == "" {
		return v.root, nil
	}

	path, err := v.ResolveSafePath(v.root, relativePath)
	if err != nil {
		return "", err
	}

	resolved, err := Canonicalize(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", path, err)
	}
	if err := v.ValidatePath(resolved); err != nil {
		return "", fmt.Errorf("%w: %s -> %s", ErrSymlinkEscape, path, resolved)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("cannot access %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", path)
	}

	return resolved, nil
}

// isSubPath checks if child is a subpath of parent.
// Both paths must be absolute and clean.
func isSubPath(parent, child string) bool {
	if parent == child {
		return true
	}

	parentWithSep := parent
	if !strings.HasSuffix(parentWithSep, string(filepath.Separator)) {
		parentWithSep += string(filepath.Separator)
	}

	return strings.HasPrefix(child, parentWithSep)
}
