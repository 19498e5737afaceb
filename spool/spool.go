package spool

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const (
	// 缓冲达到1MiB即落盘, 控制峰值内存
	defaultFlushThreshold = 1 << 20
	defaultReadChunkSize  = 256 * 1024
)

// File is a finished staging file: the full payload on disk plus its
// exact byte count and xxhash64 digest.
type File struct {
	path    string
	size    int64
	digest  uint64
	flushes int
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Size() int64 {
	return f.size
}

func (f *File) Digest() uint64 {
	return f.digest
}

func (f *File) Remove() {
	_ = os.Remove(f.path)
}

// ToTempFile drains r into a temp staging file, flushing the in-memory
// buffer every time it reaches the 1MiB threshold. On any failure the
// partially written file is removed before the error is returned.
func ToTempFile(ctx context.Context, r io.Reader) (*File, error) {
	return toTempFile(ctx, r, defaultFlushThreshold)
}

func toTempFile(ctx context.Context, r io.Reader, threshold int) (*File, error) {
	path := filepath.Join(os.TempDir(), "davbackup_"+uuid.NewString()+".tar")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("create staging file failed, err:%w", err)
	}
	sf, err := spoolLoop(ctx, f, r, path, threshold)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close staging file failed, err:%w", err)
	}
	return sf, nil
}

func spoolLoop(ctx context.Context, f *os.File, r io.Reader, path string, threshold int) (*File, error) {
	h := xxhash.New()
	buf := make([]byte, 0, threshold+defaultReadChunkSize)
	chunk := make([]byte, defaultReadChunkSize)
	sf := &File{path: path}
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("spool canceled, err:%w", err)
		}
		n, err := r.Read(chunk)
		if n > 0 {
			_, _ = h.Write(chunk[:n])
			buf = append(buf, chunk[:n]...)
			sf.size += int64(n)
			if len(buf) >= threshold {
				if _, werr := f.Write(buf); werr != nil {
					return nil, fmt.Errorf("flush staging file failed, err:%w", werr)
				}
				sf.flushes++
				buf = buf[:0]
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stream failed, err:%w", err)
		}
	}
	if len(buf) > 0 {
		if _, err := f.Write(buf); err != nil {
			return nil, fmt.Errorf("flush staging file failed, err:%w", err)
		}
	}
	sf.digest = h.Sum64()
	return sf, nil
}
