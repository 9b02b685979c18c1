package dirlock

import (
	"path/filepath"
	"strings"
)

const lockExt = ".lock"

// LockPath returns the lock file used for dir: a sibling of dir named after
// its last element with the extension replaced by ".lock". "a/b" and "a/b.d"
// both map to "a/b.lock"; a leading dot is part of the name, so "a/.cache"
// maps to "a/.cache.lock". It returns "" for a filesystem root, which has no
// name to derive a sibling from.
func LockPath(dir string) string {
	clean := filepath.Clean(dir)
	parent := filepath.Dir(clean)
	if parent == clean {
		return ""
	}

	name := filepath.Base(clean)
	if name == ".." {
		return ""
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}

	return filepath.Join(parent, name+lockExt)
}
