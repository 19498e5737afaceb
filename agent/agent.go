package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/davbackup/davclient"
	"github.com/xxxsen/davbackup/errs"
	"github.com/xxxsen/davbackup/spool"
)

// sidecar并发拉取上限
const defaultMaxMetaFetch = 5

// OpenStreamFunc hands out a fresh archive byte stream for an upload.
type OpenStreamFunc func(ctx context.Context) (io.ReadCloser, error)

// IBackupAgent 为宿主可见的备份契约: 上传/枚举/查询/下载/删除,
// 归档与sidecar的对账策略在实现内部完成
type IBackupAgent interface {
	Upload(ctx context.Context, info *BackupInfo, open OpenStreamFunc) error
	List(ctx context.Context) ([]*BackupInfo, error)
	Get(ctx context.Context, backupID string) (*BackupInfo, error)
	Download(ctx context.Context, backupID string) (io.ReadCloser, error)
	Delete(ctx context.Context, backupID string) error
	// OnChange registers a callback fired after a successful upload or
	// delete; the returned func deregisters it.
	OnChange(fn func()) func()
}

type backupAgent struct {
	client    davclient.IClient
	cache     *metaCache
	listeners *listenerRegistry
}

func New(client davclient.IClient, opts ...Option) IBackupAgent {
	c := &config{
		metaCacheSize:   defaultMetaCacheSize,
		metaCacheExpire: defaultMetaCacheExpireTime,
	}
	for _, opt := range opts {
		opt(c)
	}
	return &backupAgent{
		client:    client,
		cache:     newMetaCache(c.metaCacheSize, c.metaCacheExpire),
		listeners: newListenerRegistry(),
	}
}

func (a *backupAgent) OnChange(fn func()) func() {
	return a.listeners.register(fn)
}

// Upload spools the stream to a staging file, stores the archive with an
// exact length, then stores the sidecar. The two writes are not atomic;
// the archive always lands first so a sidecar never precedes its data.
func (a *backupAgent) Upload(ctx context.Context, info *BackupInfo, open OpenStreamFunc) error {
	if err := a.doUpload(ctx, info, open); err != nil {
		return fmt.Errorf("%w: upload backup failed, id:%s, err:%w", errs.ErrTransfer, info.BackupID, err)
	}
	a.cache.set(info.BackupID, info)
	a.listeners.notify()
	return nil
}

func (a *backupAgent) doUpload(ctx context.Context, info *BackupInfo, open OpenStreamFunc) error {
	if len(info.BackupID) == 0 {
		return fmt.Errorf("no backup id found")
	}
	start := time.Now()
	stream, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open backup stream failed, err:%w", err)
	}
	defer stream.Close()
	sf, err := spool.ToTempFile(ctx, stream)
	if err != nil {
		return fmt.Errorf("spool backup stream failed, err:%w", err)
	}
	defer sf.Remove()
	if err := a.client.PutFile(ctx, MakeArchiveName(info.BackupID), sf.Path(), sf.Size()); err != nil {
		return fmt.Errorf("put archive failed, err:%w", err)
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode metadata failed, err:%w", err)
	}
	if err := a.client.PutBytes(ctx, MakeMetadataName(info.BackupID), raw); err != nil {
		return fmt.Errorf("put metadata failed, err:%w", err)
	}
	logutil.GetLogger(ctx).Info("upload backup succ",
		zap.String("backup_id", info.BackupID),
		zap.String("size", humanize.IBytes(uint64(sf.Size()))),
		zap.Uint64("digest", sf.Digest()),
		zap.Duration("cost", time.Since(start)))
	return nil
}

// List enumerates the folder, reads every sidecar with bounded
// concurrency and synthesizes records for archives that lost theirs.
// A broken sidecar is skipped, a failed enumeration or fallback stat
// fails the whole listing.
func (a *backupAgent) List(ctx context.Context) ([]*BackupInfo, error) {
	names, err := a.client.ListFolder(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backups failed, err:%w", err)
	}
	metaNames := make([]string, 0, len(names))
	tarNames := make([]string, 0, len(names))
	for _, name := range names {
		if IsMetadataName(name) {
			metaNames = append(metaNames, name)
			continue
		}
		if IsArchiveName(name) {
			tarNames = append(tarNames, name)
		}
	}
	rs, err := a.fetchSidecars(ctx, metaNames)
	if err != nil {
		return nil, fmt.Errorf("list backups failed, err:%w", err)
	}
	known := make(map[string]struct{}, len(rs))
	for _, info := range rs {
		known[info.BackupID] = struct{}{}
	}
	for _, name := range tarNames {
		id, ok := ParseArchiveID(name)
		if !ok {
			continue
		}
		if _, exist := known[id]; exist {
			continue
		}
		st, err := a.client.Stat(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("list backups failed, stat archive failed, name:%s, err:%w", name, err)
		}
		rs = append(rs, synthesizeFromStat(id, st))
	}
	// date为同构的ISO-8601串, 字典序即时间序
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Date > rs[j].Date
	})
	return rs, nil
}

func (a *backupAgent) fetchSidecars(ctx context.Context, metaNames []string) ([]*BackupInfo, error) {
	var mu sync.Mutex
	rs := make([]*BackupInfo, 0, len(metaNames))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(defaultMaxMetaFetch)
	for _, name := range metaNames {
		name := name
		eg.Go(func() error {
			raw, err := a.client.GetBytes(gctx, name)
			if err != nil {
				logutil.GetLogger(gctx).Warn("fetch metadata failed, skip entry", zap.String("name", name), zap.Error(err))
				return nil
			}
			info := &BackupInfo{}
			if err := json.Unmarshal(raw, info); err != nil {
				logutil.GetLogger(gctx).Warn("invalid metadata, skip entry", zap.String("name", name), zap.Error(err))
				return nil
			}
			a.cache.set(info.BackupID, info)
			mu.Lock()
			rs = append(rs, info)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return rs, nil
}

func synthesizeFromStat(id string, st *davclient.StatInfo) *BackupInfo {
	return &BackupInfo{
		BackupID:  id,
		Name:      fmt.Sprintf("ownCloud backup (%s)", id),
		Date:      st.Modified,
		Size:      st.Size,
		Protected: false,
	}
}

// Get reads the sidecar, falling back to an archive stat when the
// sidecar is missing. A present-but-broken sidecar is fatal here,
// unlike during listing.
func (a *backupAgent) Get(ctx context.Context, backupID string) (*BackupInfo, error) {
	if info, ok := a.cache.get(backupID); ok {
		return info, nil
	}
	raw, err := a.client.GetBytes(ctx, MakeMetadataName(backupID))
	if err == nil {
		info := &BackupInfo{}
		if err := json.Unmarshal(raw, info); err != nil {
			return nil, fmt.Errorf("%w: decode metadata failed, id:%s, err:%w", errs.ErrMetadataCorrupt, backupID, err)
		}
		a.cache.set(backupID, info)
		return info, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("get backup metadata failed, id:%s, err:%w", backupID, err)
	}
	st, err := a.client.Stat(ctx, MakeArchiveName(backupID))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: backup not found, id:%s", errs.ErrNotFound, backupID)
		}
		return nil, fmt.Errorf("get backup failed, id:%s, err:%w", backupID, err)
	}
	info := synthesizeFromStat(backupID, st)
	return info, nil
}

// Download hands back the live archive stream; closing it releases the
// connection no matter how much was consumed.
func (a *backupAgent) Download(ctx context.Context, backupID string) (io.ReadCloser, error) {
	rc, err := a.client.GetStream(ctx, MakeArchiveName(backupID))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: backup not found, id:%s", errs.ErrNotFound, backupID)
		}
		return nil, fmt.Errorf("%w: download backup failed, id:%s, err:%w", errs.ErrTransfer, backupID, err)
	}
	return rc, nil
}

// Delete removes archive and sidecar independently. Only the case where
// both were already gone reports not-found.
func (a *backupAgent) Delete(ctx context.Context, backupID string) error {
	tarMissing, err := a.deleteOne(ctx, MakeArchiveName(backupID))
	if err != nil {
		return fmt.Errorf("delete archive failed, id:%s, err:%w", backupID, err)
	}
	metaMissing, err := a.deleteOne(ctx, MakeMetadataName(backupID))
	if err != nil {
		return fmt.Errorf("delete metadata failed, id:%s, err:%w", backupID, err)
	}
	a.cache.del(backupID)
	if tarMissing && metaMissing {
		return fmt.Errorf("%w: backup not found, id:%s", errs.ErrNotFound, backupID)
	}
	a.listeners.notify()
	return nil
}

func (a *backupAgent) deleteOne(ctx context.Context, name string) (bool, error) {
	err := a.client.Delete(ctx, name)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, errs.ErrNotFound) {
		return true, nil
	}
	return false, err
}
