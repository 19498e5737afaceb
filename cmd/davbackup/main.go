package main

import (
	"context"
	"flag"

	"github.com/xxxsen/common/logger"
	"go.uber.org/zap"

	"github.com/xxxsen/davbackup/agent"
	"github.com/xxxsen/davbackup/config"
	"github.com/xxxsen/davbackup/davclient"
	"github.com/xxxsen/davbackup/server"
)

var file = flag.String("config", "./config.json", "config file path")

func main() {
	flag.Parse()

	c, err := config.Parse(*file)
	if err != nil {
		panic(err)
	}
	logitem := c.LogInfo
	logger := logger.Init(logitem.File, logitem.Level, int(logitem.FileCount), int(logitem.FileSize), int(logitem.KeepDays), logitem.Console)
	logger.Info("recv config", zap.String("bind", c.Bind), zap.String("base_url", c.Webdav.BaseURL), zap.String("backup_path", c.Webdav.BackupPath))
	cli, err := davclient.New(
		davclient.WithEndpoint(c.Webdav.BaseURL),
		davclient.WithAuth(c.Webdav.Username, c.Webdav.Password),
		davclient.WithBackupPath(c.Webdav.BackupPath),
		davclient.WithSkipVerify(c.Webdav.SkipVerify),
	)
	if err != nil {
		logger.Fatal("init webdav client fail", zap.Error(err))
	}
	// 尽力确保目录存在, 失败不阻塞启动, 后续操作会再次暴露问题
	if err := cli.EnsureFolder(context.Background()); err != nil {
		logger.Warn("ensure backup folder fail", zap.Error(err))
	}
	ag := agent.New(cli)
	svr, err := server.New(c.Bind, server.WithAgent(ag), server.WithUser(c.UserInfo))
	if err != nil {
		logger.Fatal("init server fail", zap.Error(err))
	}
	logger.Info("init server succ, start it...")
	if err := svr.Run(); err != nil {
		logger.Fatal("run server fail", zap.Error(err))
	}
}
