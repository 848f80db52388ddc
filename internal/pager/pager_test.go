package pager_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recordstore/internal/pager"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")

	p, err := pager.Create(path, 256, 4)
	require.NoError(t, err)

	pg, err := p.GetPage(1)
	require.NoError(t, err)
	pg.Bytes()[0] = 0xAB
	pg.MarkDirty()
	pg.Release()

	require.NoError(t, p.Sync())
	require.NoError(t, p.Close())

	p2, err := pager.Open(path, 256, 4)
	require.NoError(t, err)

	defer func() { _ = p2.Close() }()

	pg2, err := p2.GetPage(1)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), pg2.Bytes()[0])
}

func TestGetPageOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")

	p, err := pager.Create(path, 256, 2)
	require.NoError(t, err)

	defer func() { _ = p.Close() }()

	_, err = p.GetPage(3)
	require.ErrorIs(t, err, pager.ErrPageOutOfRange)
}

func TestPageZeroIsFreshlyZeroed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")

	p, err := pager.Create(path, 256, 4)
	require.NoError(t, err)

	defer func() { _ = p.Close() }()

	pg, err := p.GetPage(0)
	require.NoError(t, err)

	for _, b := range pg.Bytes() {
		require.Equal(t, byte(0), b)
	}
}
