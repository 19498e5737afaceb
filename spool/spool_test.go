package spool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
)

func countStagingFiles(t *testing.T) int {
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "davbackup_*.tar"))
	assert.NoError(t, err)
	return len(matches)
}

func TestSpoolExactSize(t *testing.T) {
	ctx := context.Background()
	const total = 2500000
	data := make([]byte, total)
	for i := range data {
		data[i] = byte(i % 251)
	}
	sf, err := ToTempFile(ctx, bytes.NewReader(data))
	assert.NoError(t, err)
	defer sf.Remove()
	assert.Equal(t, int64(total), sf.Size())
	fi, err := os.Stat(sf.Path())
	assert.NoError(t, err)
	assert.Equal(t, int64(total), fi.Size())
	// 2.5MB对1MiB阈值至少触发两次中间落盘
	assert.GreaterOrEqual(t, sf.flushes, 2)
	assert.Equal(t, xxhash.Sum64(data), sf.Digest())
	content, err := os.ReadFile(sf.Path())
	assert.NoError(t, err)
	assert.True(t, bytes.Equal(data, content))
}

func TestSpoolSmallPayload(t *testing.T) {
	ctx := context.Background()
	data := []byte("hello backup")
	sf, err := ToTempFile(ctx, bytes.NewReader(data))
	assert.NoError(t, err)
	defer sf.Remove()
	assert.Equal(t, int64(len(data)), sf.Size())
	assert.Equal(t, 0, sf.flushes)
	content, err := os.ReadFile(sf.Path())
	assert.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestSpoolCleanupOnReadError(t *testing.T) {
	ctx := context.Background()
	before := countStagingFiles(t)
	broken := newBrokenReader(make([]byte, 100))
	sf, err := ToTempFile(ctx, broken)
	assert.Error(t, err)
	assert.Nil(t, sf)
	assert.Equal(t, before, countStagingFiles(t))
}

func TestSpoolCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := countStagingFiles(t)
	sf, err := ToTempFile(ctx, bytes.NewReader([]byte("data")))
	assert.Error(t, err)
	assert.Nil(t, sf)
	assert.Equal(t, before, countStagingFiles(t))
}

type brokenReader struct {
	data []byte
	off  int
}

func newBrokenReader(data []byte) *brokenReader {
	return &brokenReader{data: data}
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, fmt.Errorf("stream broken")
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}
