// Package storage persists uploaded files under a client/project keyed
// directory tree, resolving name collisions with an atomic version
// counter.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/beerberidie/cutflow/internal/common"
)

const uncategorizedDir = "uncategorized"

var reVersionSuffix = regexp.MustCompile(`-v(\d+)$`)

// Manager writes, resolves, and deletes stored files relative to a root
// directory. The version-resolution scan and the subsequent write happen
// under a per-destination-directory lock, so two concurrent uploads to
// the same base name cannot race to the same version number.
type Manager struct {
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	dirLocks map[string]*sync.Mutex
}

func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, common.NewStorageError("resolve storage root", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, common.NewStorageError("create storage root", err)
	}
	return &Manager{
		root:     abs,
		logger:   logger,
		dirLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the absolute storage root.
func (m *Manager) Root() string { return m.root }

func (m *Manager) dirLock(dir string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.dirLocks[dir]
	if !ok {
		l = &sync.Mutex{}
		m.dirLocks[dir] = l
	}
	return l
}

// subdir picks the relative destination directory from the known codes.
func subdir(clientCode, projectCode string) string {
	switch {
	case clientCode != "" && projectCode != "":
		return filepath.Join(clientCode, projectCode)
	case clientCode != "":
		return clientCode
	default:
		return uncategorizedDir
	}
}

// Save writes data under the destination directory for the given codes.
// With autoVersion enabled, any existing -vN suffix on the candidate name
// is stripped and the file is written as -v(max+1) where max is the
// highest version of that base name already present.
func (m *Manager) Save(ctx context.Context, data []byte, canonicalName, clientCode, projectCode string, autoVersion bool) (storedName, relPath string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if canonicalName == "" || strings.ContainsAny(canonicalName, `/\`) {
		return "", "", common.NewStorageError(fmt.Sprintf("invalid target name %q", canonicalName), nil)
	}

	rel := subdir(clientCode, projectCode)
	dir := filepath.Join(m.root, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", common.NewStorageError("create destination directory", err)
	}

	lock := m.dirLock(dir)
	lock.Lock()
	defer lock.Unlock()

	storedName = canonicalName
	if autoVersion {
		storedName, err = m.nextVersionName(dir, canonicalName)
		if err != nil {
			return "", "", err
		}
	}

	target := filepath.Join(dir, storedName)
	if err := writeAtomic(target, data); err != nil {
		return "", "", common.NewStorageError("write file", err)
	}

	relPath = filepath.ToSlash(filepath.Join(rel, storedName))
	m.logger.Debug("stored file", "path", relPath, "bytes", len(data))
	return storedName, relPath, nil
}

// nextVersionName computes base-v(max+1).ext for the candidate name.
// Caller holds the directory lock.
func (m *Manager) nextVersionName(dir, candidate string) (string, error) {
	ext := filepath.Ext(candidate)
	base := strings.TrimSuffix(candidate, ext)
	base = reVersionSuffix.ReplaceAllString(base, "")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", common.NewStorageError("scan destination directory", err)
	}

	maxVersion := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ext {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		if stem == base {
			if maxVersion < 1 {
				maxVersion = 1
			}
			continue
		}
		mv := reVersionSuffix.FindStringSubmatch(stem)
		if mv == nil || strings.TrimSuffix(stem, mv[0]) != base {
			continue
		}
		if v, err := strconv.Atoi(mv[1]); err == nil && v > maxVersion {
			maxVersion = v
		}
	}

	return fmt.Sprintf("%s-v%d%s", base, maxVersion+1, ext), nil
}

func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".cutflow-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Path resolves a relative storage path to an absolute one, rejecting
// escapes from the root. Returns ErrNotFound when no file exists there.
func (m *Manager) Path(relPath string) (string, error) {
	abs, err := m.resolve(relPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", common.ErrNotFound
		}
		return "", common.NewStorageError("stat file", err)
	}
	return abs, nil
}

// Read returns the bytes of a stored file.
func (m *Manager) Read(relPath string) ([]byte, error) {
	abs, err := m.Path(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, common.NewStorageError("read file", err)
	}
	return data, nil
}

// Delete removes a stored file. A missing file is not an error.
func (m *Manager) Delete(relPath string) error {
	abs, err := m.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return common.NewStorageError("delete file", err)
	}
	return nil
}

func (m *Manager) resolve(relPath string) (string, error) {
	abs := filepath.Join(m.root, filepath.FromSlash(relPath))
	abs = filepath.Clean(abs)
	if abs != m.root && !strings.HasPrefix(abs, m.root+string(os.PathSeparator)) {
		return "", common.NewStorageError(fmt.Sprintf("path %q escapes storage root", relPath), nil)
	}
	return abs, nil
}
