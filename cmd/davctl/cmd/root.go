package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/davbackup/agent"
	"github.com/xxxsen/davbackup/cmd/davctl/config"
	"github.com/xxxsen/davbackup/davclient"
)

const (
	defaultConfigFileEnv = "DAVCTL_CONFIG"
)

var cmds []CreateFunc

type Context struct {
	Agent  agent.IBackupAgent
	Config *config.Config
}

type CreateFunc func(ctx *Context) *cobra.Command

func register(cr CreateFunc) {
	cmds = append(cmds, cr)
}

func initContext(ctx *Context, cfgs []string) error {
	var c *config.Config
	var err error
	for _, cfg := range cfgs {
		c, err = config.Parse(cfg)
		if err != nil {
			continue
		}
	}
	if err != nil {
		return fmt.Errorf("no valid config file found, last err:%w", err)
	}
	ctx.Config = c
	logger.Init("", c.LogLevel, 0, 0, 0, true)
	cli, err := davclient.New(
		davclient.WithEndpoint(c.BaseURL),
		davclient.WithAuth(c.Username, c.Password),
		davclient.WithBackupPath(c.BackupPath),
		davclient.WithSkipVerify(c.SkipVerify),
	)
	if err != nil {
		return err
	}
	ctx.Agent = agent.New(cli)
	return nil
}

func NewRoot() *cobra.Command {
	var configFile string
	ctx := &Context{}
	var rootCmd = &cobra.Command{
		Use:   "davctl",
		Short: "WebDAV backup CLI tool",
	}
	for _, cr := range cmds {
		rootCmd.AddCommand(cr(ctx))
	}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		envConfigFile, _ := os.LookupEnv(defaultConfigFileEnv)
		return initContext(ctx, []string{configFile, "/etc/davctl/davctl_config.json", envConfigFile})
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file")
	return rootCmd
}
