package davclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/davbackup/errs"
)

const (
	methodPropfind = "PROPFIND"
	methodMkcol    = "MKCOL"
)

var (
	propfindResourceTypeBody = []byte(`<?xml version="1.0"?><d:propfind xmlns:d="DAV:"><d:prop><d:resourcetype/></d:prop></d:propfind>`)
	propfindDisplayNameBody  = []byte(`<?xml version="1.0"?><d:propfind xmlns:d="DAV:"><d:prop><d:displayname/></d:prop></d:propfind>`)
	propfindStatBody         = []byte(`<?xml version="1.0"?><d:propfind xmlns:d="DAV:"><d:prop><d:getcontentlength/><d:getlastmodified/></d:prop></d:propfind>`)
)

// IClient 封装针对单个备份目录的webdav原语, name均为目录下的文件名,
// 不带路径
type IClient interface {
	EnsureFolder(ctx context.Context) error
	ListFolder(ctx context.Context) ([]string, error)
	PutBytes(ctx context.Context, name string, data []byte) error
	PutFile(ctx context.Context, name string, path string, size int64) error
	PutStream(ctx context.Context, name string, r io.Reader) error
	GetBytes(ctx context.Context, name string) ([]byte, error)
	GetStream(ctx context.Context, name string) (io.ReadCloser, error)
	Stat(ctx context.Context, name string) (*StatInfo, error)
	Delete(ctx context.Context, name string) error
}

type client struct {
	c    *config
	hc   *http.Client
	base string

	roots []string

	mu         sync.Mutex
	cachedRoot string
}

func New(opts ...Option) (IClient, error) {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.endpoint) == 0 {
		return nil, fmt.Errorf("no endpoint found")
	}
	if len(c.backupPath) == 0 {
		return nil, fmt.Errorf("no backup path found")
	}
	cl := &client{
		c:    c,
		base: strings.TrimRight(c.endpoint, "/") + "/",
		roots: []string{
			// ownCloud/Nextcloud新版的用户files根, 旧版的通用根
			"remote.php/dav/files/" + url.PathEscape(c.username) + "/",
			"remote.php/webdav/",
		},
	}
	cl.hc = c.client
	if cl.hc == nil {
		cl.hc = buildHTTPClient(c.skipVerify)
	}
	return cl, nil
}

// buildHTTPClient bounds connection setup only. Total/read time stays
// unbounded, archive transfers can be arbitrarily large and slow.
func buildHTTPClient(skipVerify bool) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 60 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 60 * time.Second,
			IdleConnTimeout:     20 * time.Second,
			MaxIdleConns:        5,
			MaxIdleConnsPerHost: 2,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: skipVerify,
			},
		},
	}
}

func (c *client) folderSegments() []string {
	items := strings.Split(c.c.backupPath, "/")
	rs := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		rs = append(rs, item)
	}
	return rs
}

func (c *client) folderLeaf() string {
	segs := c.folderSegments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// resolveRoot probes the candidate dav roots in order and memoizes the
// first one that answers a depth-0 PROPFIND. Probing repeats on the next
// call only if every candidate failed.
func (c *client) resolveRoot(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cachedRoot) > 0 {
		return c.cachedRoot, nil
	}
	var lastErr error
	for _, root := range c.roots {
		if err := c.probeRoot(ctx, c.base+root); err != nil {
			logutil.GetLogger(ctx).Debug("probe dav root failed", zap.String("root", root), zap.Error(err))
			lastErr = err
			continue
		}
		logutil.GetLogger(ctx).Info("dav root resolved", zap.String("root", root))
		c.cachedRoot = root
		return root, nil
	}
	return "", fmt.Errorf("%w: no working dav root found, err:%w", errs.ErrConnectivity, lastErr)
}

func (c *client) probeRoot(ctx context.Context, u string) error {
	req, err := c.newRequest(ctx, methodPropfind, u, bytes.NewReader(propfindResourceTypeBody))
	if err != nil {
		return err
	}
	req.Header.Set("Depth", "0")
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	rsp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	if rsp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status not ok, code:%d", rsp.StatusCode)
	}
	return nil
}

func (c *client) folderURL(ctx context.Context) (string, error) {
	root, err := c.resolveRoot(ctx)
	if err != nil {
		return "", err
	}
	u := c.base + root
	for _, seg := range c.folderSegments() {
		u += url.PathEscape(seg) + "/"
	}
	return u, nil
}

func (c *client) fileURL(ctx context.Context, name string) (string, error) {
	folder, err := c.folderURL(ctx)
	if err != nil {
		return "", err
	}
	return folder + url.PathEscape(name), nil
}

func (c *client) newRequest(ctx context.Context, method string, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.c.username, c.c.password)
	return req, nil
}

func readLimitedBody(rsp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(rsp.Body, 4096))
	return string(raw)
}

// checkStatus maps a non-2xx response to the error taxonomy. mapNotFound
// selects whether 404 maps to ErrNotFound or falls through to ErrProtocol.
func checkStatus(rsp *http.Response, mapNotFound bool) error {
	st := rsp.StatusCode
	if st < http.StatusBadRequest {
		return nil
	}
	switch {
	case st == http.StatusUnauthorized || st == http.StatusForbidden:
		return fmt.Errorf("%w: code:%d", errs.ErrUnauthorized, st)
	case mapNotFound && st == http.StatusNotFound:
		return errs.ErrNotFound
	default:
		return fmt.Errorf("%w: status not ok, code:%d, body:%s", errs.ErrProtocol, st, readLimitedBody(rsp))
	}
}

func (c *client) EnsureFolder(ctx context.Context) error {
	folder, err := c.folderURL(ctx)
	if err != nil {
		return err
	}
	ok, err := c.checkFolderExist(ctx, folder)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return c.createFolderPath(ctx)
}

// checkFolderExist returns an error only for auth rejections; any other
// failure just reports the folder as missing so the caller can try to
// create it.
func (c *client) checkFolderExist(ctx context.Context, folder string) (bool, error) {
	req, err := c.newRequest(ctx, methodPropfind, folder, bytes.NewReader(propfindResourceTypeBody))
	if err != nil {
		return false, err
	}
	req.Header.Set("Depth", "0")
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	rsp, err := c.hc.Do(req)
	if err != nil {
		logutil.GetLogger(ctx).Debug("check backup folder failed", zap.Error(err))
		return false, nil
	}
	defer rsp.Body.Close()
	if rsp.StatusCode == http.StatusUnauthorized || rsp.StatusCode == http.StatusForbidden {
		return false, fmt.Errorf("%w: code:%d", errs.ErrUnauthorized, rsp.StatusCode)
	}
	return rsp.StatusCode < http.StatusBadRequest, nil
}

func (c *client) createFolderPath(ctx context.Context) error {
	root, err := c.resolveRoot(ctx)
	if err != nil {
		return err
	}
	cur := c.base + root
	for _, seg := range c.folderSegments() {
		cur += url.PathEscape(seg) + "/"
		if err := c.mkcol(ctx, cur); err != nil {
			return fmt.Errorf("create folder failed, seg:%s, err:%w", seg, err)
		}
	}
	return nil
}

func (c *client) mkcol(ctx context.Context, u string) error {
	req, err := c.newRequest(ctx, methodMkcol, u, nil)
	if err != nil {
		return err
	}
	rsp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: mkcol request failed, err:%w", errs.ErrConnectivity, err)
	}
	defer rsp.Body.Close()
	st := rsp.StatusCode
	// 405表示目录已存在, 等同创建成功
	if st == http.StatusCreated || st == http.StatusMethodNotAllowed || st == http.StatusOK {
		return nil
	}
	if st == http.StatusUnauthorized || st == http.StatusForbidden {
		return fmt.Errorf("%w: code:%d", errs.ErrUnauthorized, st)
	}
	return fmt.Errorf("%w: mkcol failed, code:%d, body:%s", errs.ErrProtocol, st, readLimitedBody(rsp))
}

func (c *client) ListFolder(ctx context.Context) ([]string, error) {
	folder, err := c.folderURL(ctx)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, methodPropfind, folder, bytes.NewReader(propfindDisplayNameBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", "1")
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	rsp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: propfind request failed, err:%w", errs.ErrConnectivity, err)
	}
	defer rsp.Body.Close()
	if err := checkStatus(rsp, false); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read propfind response failed, err:%w", errs.ErrConnectivity, err)
	}
	ms, err := decodeMultistatus(raw)
	if err != nil {
		return nil, err
	}
	leaf := c.folderLeaf()
	set := make(map[string]struct{}, len(ms.Responses))
	for _, item := range ms.Responses {
		name := hrefLeaf(item.Href)
		if len(name) == 0 || name == leaf {
			continue
		}
		set[name] = struct{}{}
	}
	rs := make([]string, 0, len(set))
	for name := range set {
		rs = append(rs, name)
	}
	sort.Strings(rs)
	return rs, nil
}

func (c *client) PutBytes(ctx context.Context, name string, data []byte) error {
	u, err := c.fileURL(ctx, name)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	return c.doWrite(ctx, req)
}

// PutFile uploads a local file with an explicit Content-Length so the
// transfer is not chunk-encoded. size<=0 falls back to the on-disk size;
// when that also fails the upload degrades to chunked.
func (c *client) PutFile(ctx context.Context, name string, path string, size int64) error {
	if size <= 0 {
		if fi, err := os.Stat(path); err == nil {
			size = fi.Size()
		} else {
			size = 0
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open local file failed, err:%w", err)
	}
	defer f.Close()
	u, err := c.fileURL(ctx, name)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPut, u, f)
	if err != nil {
		return err
	}
	if size > 0 {
		req.ContentLength = size
	}
	return c.doWrite(ctx, req)
}

// PutStream is the legacy chunked upload path, kept for callers that
// cannot stage to disk. Prefer PutFile, proxies handle explicit lengths
// a lot better.
func (c *client) PutStream(ctx context.Context, name string, r io.Reader) error {
	u, err := c.fileURL(ctx, name)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPut, u, r)
	if err != nil {
		return err
	}
	return c.doWrite(ctx, req)
}

func (c *client) doWrite(ctx context.Context, req *http.Request) error {
	rsp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: put request failed, err:%w", errs.ErrConnectivity, err)
	}
	defer rsp.Body.Close()
	return checkStatus(rsp, false)
}

func (c *client) GetBytes(ctx context.Context, name string) ([]byte, error) {
	u, err := c.fileURL(ctx, name)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	rsp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get request failed, err:%w", errs.ErrConnectivity, err)
	}
	defer rsp.Body.Close()
	if err := checkStatus(rsp, true); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: name:%s", errs.ErrNotFound, name)
		}
		return nil, err
	}
	raw, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body failed, err:%w", errs.ErrConnectivity, err)
	}
	return raw, nil
}

// GetStream returns the live response body. The caller owns the closer;
// Close releases the underlying connection whether or not the stream was
// fully consumed.
func (c *client) GetStream(ctx context.Context, name string) (io.ReadCloser, error) {
	u, err := c.fileURL(ctx, name)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	rsp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get request failed, err:%w", errs.ErrConnectivity, err)
	}
	if err := checkStatus(rsp, true); err != nil {
		rsp.Body.Close()
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: name:%s", errs.ErrNotFound, name)
		}
		return nil, err
	}
	return rsp.Body, nil
}

func (c *client) Stat(ctx context.Context, name string) (*StatInfo, error) {
	u, err := c.fileURL(ctx, name)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, methodPropfind, u, bytes.NewReader(propfindStatBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", "0")
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	rsp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: propfind request failed, err:%w", errs.ErrConnectivity, err)
	}
	defer rsp.Body.Close()
	if err := checkStatus(rsp, true); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: name:%s", errs.ErrNotFound, name)
		}
		return nil, err
	}
	raw, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body failed, err:%w", errs.ErrConnectivity, err)
	}
	ms, err := decodeMultistatus(raw)
	if err != nil {
		return nil, err
	}
	if len(ms.Responses) == 0 {
		return nil, fmt.Errorf("%w: no response element in stat multistatus", errs.ErrProtocol)
	}
	item := ms.Responses[0]
	st := &StatInfo{
		Size:        item.contentLength(),
		ModifiedRaw: item.lastModified(),
	}
	st.Modified = normalizeModified(st.ModifiedRaw)
	return st, nil
}

// normalizeModified converts an http date to UTC RFC3339. An unparseable
// value is carried through raw, an absent one becomes the current time.
func normalizeModified(raw string) string {
	if len(raw) == 0 {
		return time.Now().UTC().Format(time.RFC3339)
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return raw
	}
	return t.UTC().Format(time.RFC3339)
}

func (c *client) Delete(ctx context.Context, name string) error {
	u, err := c.fileURL(ctx, name)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	rsp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: delete request failed, err:%w", errs.ErrConnectivity, err)
	}
	defer rsp.Body.Close()
	switch rsp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: name:%s", errs.ErrNotFound, name)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: code:%d", errs.ErrUnauthorized, rsp.StatusCode)
	default:
		return fmt.Errorf("%w: delete failed, code:%d, body:%s", errs.ErrProtocol, rsp.StatusCode, readLimitedBody(rsp))
	}
}
