package agent

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultMetaCacheSize       = 256
	defaultMetaCacheExpireTime = 5 * time.Minute
)

// metaCache keeps recently seen sidecar descriptors so Get does not hit
// the server again right after a listing. A nil cache is a no-op.
type metaCache struct {
	c *lru.LRU[string, *BackupInfo]
}

func newMetaCache(size int, expire time.Duration) *metaCache {
	if size <= 0 {
		return nil
	}
	return &metaCache{c: lru.NewLRU[string, *BackupInfo](size, nil, expire)}
}

func (m *metaCache) get(id string) (*BackupInfo, bool) {
	if m == nil {
		return nil, false
	}
	return m.c.Get(id)
}

func (m *metaCache) set(id string, info *BackupInfo) {
	if m == nil {
		return
	}
	_ = m.c.Add(id, info)
}

func (m *metaCache) del(id string) {
	if m == nil {
		return
	}
	_ = m.c.Remove(id)
}
