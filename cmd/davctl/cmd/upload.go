package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/retry"
	"go.uber.org/zap"

	"github.com/xxxsen/davbackup/agent"
)

type uploadArgs struct {
	file      string
	backupID  string
	name      string
	protected bool
}

func NewUploadCmd(c *Context) *cobra.Command {
	args := &uploadArgs{}
	ctx := context.Background()
	subc := &cobra.Command{
		Use:   "upload",
		Short: "Upload a backup archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onRunUpload(ctx, c, args)
		},
	}
	subc.PersistentFlags().StringVarP(&args.file, "file", "f", "", "local archive to upload")
	subc.PersistentFlags().StringVarP(&args.backupID, "id", "i", "", "backup id, generated when empty")
	subc.PersistentFlags().StringVarP(&args.name, "name", "n", "", "backup display name")
	subc.PersistentFlags().BoolVarP(&args.protected, "protected", "p", false, "mark backup as protected")
	return subc
}

func onRunUpload(ctx context.Context, c *Context, args *uploadArgs) error {
	if len(args.file) == 0 {
		return fmt.Errorf("no upload file found")
	}
	fi, err := os.Stat(args.file)
	if err != nil {
		return fmt.Errorf("stat upload file failed, err:%w", err)
	}
	if len(args.backupID) == 0 {
		args.backupID = uuid.NewString()
	}
	if len(args.name) == 0 {
		args.name = fi.Name()
	}
	info := &agent.BackupInfo{
		BackupID:  args.backupID,
		Name:      args.name,
		Date:      time.Now().UTC().Format(time.RFC3339),
		Size:      fi.Size(),
		Protected: args.protected,
	}
	open := func(ctx context.Context) (io.ReadCloser, error) {
		return os.Open(args.file)
	}
	start := time.Now()
	// 整体重试, 同id覆盖写, 幂等
	if err := retry.RetryDo(ctx, uint32(c.Config.Retry), 2*time.Second, func(ctx context.Context) error {
		if err := c.Agent.Upload(ctx, info, open); err != nil {
			logutil.GetLogger(ctx).Error("upload backup failed, wait retry", zap.Error(err))
			return err
		}
		return nil
	}); err != nil {
		return fmt.Errorf("upload backup failed, err:%w", err)
	}
	logutil.GetLogger(ctx).Info("upload backup succ",
		zap.String("backup_id", info.BackupID),
		zap.String("size", humanize.IBytes(uint64(info.Size))),
		zap.Duration("cost", time.Since(start)))
	return nil
}

func init() {
	register(NewUploadCmd)
}
