package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/davbackup/agent"
	"github.com/xxxsen/davbackup/errs"
	"github.com/xxxsen/davbackup/server/model"
	"github.com/xxxsen/davbackup/server/proxyutil"
)

type BackupHandler struct {
	agent agent.IBackupAgent
}

func NewBackupHandler(a agent.IBackupAgent) *BackupHandler {
	return &BackupHandler{agent: a}
}

func (h *BackupHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	rs, err := h.agent.List(ctx)
	if err != nil {
		proxyutil.Fail(c, http.StatusInternalServerError, fmt.Errorf("list backups failed, err:%w", err))
		return
	}
	proxyutil.Success(c, &model.ListBackupResponse{List: rs})
}

func (h *BackupHandler) GetMeta(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	info, err := h.agent.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			proxyutil.Fail(c, http.StatusNotFound, err)
			return
		}
		proxyutil.Fail(c, http.StatusInternalServerError, fmt.Errorf("get backup failed, err:%w", err))
		return
	}
	proxyutil.Success(c, info)
}

func (h *BackupHandler) Download(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	rc, err := h.agent.Download(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			proxyutil.Fail(c, http.StatusNotFound, err)
			return
		}
		proxyutil.Fail(c, http.StatusInternalServerError, fmt.Errorf("download backup failed, err:%w", err))
		return
	}
	defer rc.Close()
	c.Writer.Header().Set("Content-Type", "application/x-tar")
	c.Writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", agent.MakeArchiveName(id)))
	if _, err := io.Copy(c.Writer, rc); err != nil {
		logutil.GetLogger(ctx).Error("write archive stream failed", zap.String("backup_id", id), zap.Error(err))
		return
	}
}

func (h *BackupHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	metaRaw := c.PostForm("meta")
	if len(metaRaw) == 0 {
		proxyutil.Fail(c, http.StatusBadRequest, fmt.Errorf("no meta field found"))
		return
	}
	info := &agent.BackupInfo{}
	if err := json.Unmarshal([]byte(metaRaw), info); err != nil {
		proxyutil.Fail(c, http.StatusBadRequest, fmt.Errorf("decode meta failed, err:%w", err))
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		proxyutil.Fail(c, http.StatusBadRequest, fmt.Errorf("no file part found, err:%w", err))
		return
	}
	open := func(ctx context.Context) (io.ReadCloser, error) {
		return fh.Open()
	}
	if err := h.agent.Upload(ctx, info, open); err != nil {
		proxyutil.Fail(c, http.StatusInternalServerError, fmt.Errorf("upload backup failed, err:%w", err))
		return
	}
	proxyutil.Success(c, &model.UploadBackupResponse{BackupID: info.BackupID})
}

func (h *BackupHandler) Purge(c *gin.Context) {
	ctx := c.Request.Context()
	req := &model.DeleteBackupRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		proxyutil.Fail(c, http.StatusBadRequest, fmt.Errorf("decode request failed, err:%w", err))
		return
	}
	if err := h.agent.Delete(ctx, req.BackupID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			proxyutil.Fail(c, http.StatusNotFound, err)
			return
		}
		proxyutil.Fail(c, http.StatusInternalServerError, fmt.Errorf("delete backup failed, err:%w", err))
		return
	}
	proxyutil.Success(c, &model.DeleteBackupResponse{})
}
