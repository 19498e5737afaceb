package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xxxsen/davbackup/agent"
	"github.com/xxxsen/davbackup/errs"
	"github.com/xxxsen/davbackup/server/proxyutil"
)

type fakeAgent struct {
	backups  map[string]*agent.BackupInfo
	archives map[string][]byte
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		backups:  make(map[string]*agent.BackupInfo),
		archives: make(map[string][]byte),
	}
}

func (f *fakeAgent) Upload(ctx context.Context, info *agent.BackupInfo, open agent.OpenStreamFunc) error {
	rc, err := open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	f.backups[info.BackupID] = info
	f.archives[info.BackupID] = raw
	return nil
}

func (f *fakeAgent) List(ctx context.Context) ([]*agent.BackupInfo, error) {
	rs := make([]*agent.BackupInfo, 0, len(f.backups))
	for _, info := range f.backups {
		rs = append(rs, info)
	}
	return rs, nil
}

func (f *fakeAgent) Get(ctx context.Context, backupID string) (*agent.BackupInfo, error) {
	info, ok := f.backups[backupID]
	if !ok {
		return nil, fmt.Errorf("%w: id:%s", errs.ErrNotFound, backupID)
	}
	return info, nil
}

func (f *fakeAgent) Download(ctx context.Context, backupID string) (io.ReadCloser, error) {
	raw, ok := f.archives[backupID]
	if !ok {
		return nil, fmt.Errorf("%w: id:%s", errs.ErrNotFound, backupID)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *fakeAgent) Delete(ctx context.Context, backupID string) error {
	if _, ok := f.backups[backupID]; !ok {
		return fmt.Errorf("%w: id:%s", errs.ErrNotFound, backupID)
	}
	delete(f.backups, backupID)
	delete(f.archives, backupID)
	return nil
}

func (f *fakeAgent) OnChange(fn func()) func() {
	return func() {}
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	svr, err := New(":0", opts...)
	assert.NoError(t, err)
	return svr
}

func doUpload(t *testing.T, svr *Server, id string, data []byte) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	meta := fmt.Sprintf(`{"backup_id":"%s","name":"n","date":"2024-01-01T00:00:00+00:00","size":%d}`, id, len(data))
	assert.NoError(t, w.WriteField("meta", meta))
	fw, err := w.CreateFormFile("file", "backup.tar")
	assert.NoError(t, err)
	_, err = fw.Write(data)
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/backup/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	svr.engine.ServeHTTP(rec, req)
	return rec
}

func TestServerRequiresAgent(t *testing.T) {
	_, err := New(":0")
	assert.Error(t, err)
}

func TestUploadListDownloadPurge(t *testing.T) {
	fa := newFakeAgent()
	svr := newTestServer(t, WithAgent(fa))

	data := []byte("archive payload")
	rec := doUpload(t, svr, "b1", data)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, fa.archives["b1"])

	req := httptest.NewRequest(http.MethodGet, "/backup/list", nil)
	rec = httptest.NewRecorder()
	svr.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	frame := &proxyutil.CommonResponse{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), frame))
	assert.Equal(t, 0, frame.Code)

	req = httptest.NewRequest(http.MethodGet, "/backup/download/b1", nil)
	rec = httptest.NewRecorder()
	svr.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
	assert.Equal(t, "application/x-tar", rec.Header().Get("Content-Type"))

	body, err := json.Marshal(map[string]string{"backup_id": "b1"})
	assert.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/backup/purge", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	svr.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fa.backups, 0)
}

func TestNotFoundMapping(t *testing.T) {
	svr := newTestServer(t, WithAgent(newFakeAgent()))
	for _, target := range []string{"/backup/meta/nope", "/backup/download/nope"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		svr.engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
}

func TestUploadBadRequest(t *testing.T) {
	svr := newTestServer(t, WithAgent(newFakeAgent()))
	// meta字段缺失
	req := httptest.NewRequest(http.MethodPost, "/backup/upload", nil)
	rec := httptest.NewRecorder()
	svr.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	svr := newTestServer(t, WithAgent(newFakeAgent()), WithUser(map[string]string{"admin": "secret"}))
	req := httptest.NewRequest(http.MethodGet, "/backup/list", nil)
	rec := httptest.NewRecorder()
	svr.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/backup/list", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	svr.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
