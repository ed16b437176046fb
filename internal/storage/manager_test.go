package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beerberidie/cutflow/internal/common"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	return m
}

func TestSave_PathSelection(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, rel, err := m.Save(ctx, []byte("a"), "a.dxf", "CL0001", "JB-2025-10-CL0001-001", false)
	require.NoError(t, err)
	assert.Equal(t, "CL0001/JB-2025-10-CL0001-001/a.dxf", rel)

	_, rel, err = m.Save(ctx, []byte("b"), "b.dxf", "CL0001", "", false)
	require.NoError(t, err)
	assert.Equal(t, "CL0001/b.dxf", rel)

	_, rel, err = m.Save(ctx, []byte("c"), "c.dxf", "", "", false)
	require.NoError(t, err)
	assert.Equal(t, "uncategorized/c.dxf", rel)
}

func TestSave_AutoVersionSequence(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	name1, _, err := m.Save(ctx, []byte("one"), "CL0001-NOPROJECT-Plate-MS-3mm.dxf", "CL0001", "", true)
	require.NoError(t, err)
	assert.Equal(t, "CL0001-NOPROJECT-Plate-MS-3mm-v1.dxf", name1)

	name2, _, err := m.Save(ctx, []byte("two"), "CL0001-NOPROJECT-Plate-MS-3mm.dxf", "CL0001", "", true)
	require.NoError(t, err)
	assert.Equal(t, "CL0001-NOPROJECT-Plate-MS-3mm-v2.dxf", name2)

	// An explicit -vN suffix on the candidate is stripped before scanning.
	name3, _, err := m.Save(ctx, []byte("three"), "CL0001-NOPROJECT-Plate-MS-3mm-v1.dxf", "CL0001", "", true)
	require.NoError(t, err)
	assert.Equal(t, "CL0001-NOPROJECT-Plate-MS-3mm-v3.dxf", name3)
}

func TestSave_AutoVersionDoesNotCrossBaseNames(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.Save(ctx, []byte("x"), "Plate-MS.dxf", "", "", true)
	require.NoError(t, err)
	name, _, err := m.Save(ctx, []byte("y"), "Plate-SS.dxf", "", "", true)
	require.NoError(t, err)
	assert.Equal(t, "Plate-SS-v1.dxf", name)
}

func TestSave_ConcurrentSameBaseName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	names := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name, _, err := m.Save(ctx, []byte{byte(i)}, "Racer.dxf", "", "", true)
			if err != nil {
				t.Error(err)
				return
			}
			names[i] = name
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, name := range names {
		assert.False(t, seen[name], "duplicate stored name %s", name)
		seen[name] = true
	}
}

func TestPathAndDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, rel, err := m.Save(ctx, []byte("data"), "f.pdf", "CL0002", "", false)
	require.NoError(t, err)

	abs, err := m.Path(rel)
	require.NoError(t, err)
	b, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	require.NoError(t, m.Delete(rel))
	_, err = m.Path(rel)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	// Deleting again is idempotent.
	assert.NoError(t, m.Delete(rel))
}

func TestResolve_RejectsEscape(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Path(filepath.Join("..", "etc", "passwd"))
	assert.Error(t, err)
}
