package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/davbackup/errs"
)

type deleteArgs struct {
	backupID string
}

func NewDeleteCmd(c *Context) *cobra.Command {
	args := &deleteArgs{}
	ctx := context.Background()
	subc := &cobra.Command{
		Use:   "delete",
		Short: "Delete a backup and its metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onRunDelete(ctx, c, args)
		},
	}
	subc.PersistentFlags().StringVarP(&args.backupID, "id", "i", "", "backup id")
	return subc
}

func onRunDelete(ctx context.Context, c *Context, args *deleteArgs) error {
	if len(args.backupID) == 0 {
		return fmt.Errorf("no backup id found")
	}
	if err := c.Agent.Delete(ctx, args.backupID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			logutil.GetLogger(ctx).Warn("backup not found", zap.String("backup_id", args.backupID))
			return nil
		}
		return fmt.Errorf("delete backup failed, err:%w", err)
	}
	logutil.GetLogger(ctx).Info("delete backup succ", zap.String("backup_id", args.backupID))
	return nil
}

func init() {
	register(NewDeleteCmd)
}
