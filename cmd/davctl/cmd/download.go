package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/davbackup/agent"
)

type downloadArgs struct {
	backupID string
	out      string
}

func NewDownloadCmd(c *Context) *cobra.Command {
	args := &downloadArgs{}
	ctx := context.Background()
	subc := &cobra.Command{
		Use:   "download",
		Short: "Download a backup archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onRunDownload(ctx, c, args)
		},
	}
	subc.PersistentFlags().StringVarP(&args.backupID, "id", "i", "", "backup id")
	subc.PersistentFlags().StringVarP(&args.out, "out", "o", "", "output file, defaults to the archive name")
	return subc
}

func onRunDownload(ctx context.Context, c *Context, args *downloadArgs) error {
	if len(args.backupID) == 0 {
		return fmt.Errorf("no backup id found")
	}
	if len(args.out) == 0 {
		args.out = agent.MakeArchiveName(args.backupID)
	}
	start := time.Now()
	rc, err := c.Agent.Download(ctx, args.backupID)
	if err != nil {
		return fmt.Errorf("download backup failed, err:%w", err)
	}
	defer rc.Close()
	f, err := os.OpenFile(args.out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create output file failed, err:%w", err)
	}
	defer f.Close()
	n, err := io.Copy(f, rc)
	if err != nil {
		return fmt.Errorf("write output file failed, err:%w", err)
	}
	logutil.GetLogger(ctx).Info("download backup succ",
		zap.String("backup_id", args.backupID),
		zap.String("out", args.out),
		zap.String("size", humanize.IBytes(uint64(n))),
		zap.Duration("cost", time.Since(start)))
	return nil
}

func init() {
	register(NewDownloadCmd)
}
