package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func NewListCmd(c *Context) *cobra.Command {
	ctx := context.Background()
	subc := &cobra.Command{
		Use:   "list",
		Short: "List stored backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onRunList(ctx, c)
		},
	}
	return subc
}

func onRunList(ctx context.Context, c *Context) error {
	rs, err := c.Agent.List(ctx)
	if err != nil {
		return fmt.Errorf("list backups failed, err:%w", err)
	}
	for _, item := range rs {
		protected := ""
		if item.Protected {
			protected = " [protected]"
		}
		fmt.Printf("%s\t%s\t%s\t%s%s\n", item.BackupID, item.Date, humanize.IBytes(uint64(item.Size)), item.Name, protected)
	}
	fmt.Printf("total: %d\n", len(rs))
	return nil
}

func init() {
	register(NewListCmd)
}
