package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type WebdavConfig struct {
	BaseURL    string `json:"base_url"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	BackupPath string `json:"backup_path"`
	SkipVerify bool   `json:"skip_verify_ssl"`
}

type Config struct {
	Bind     string            `json:"bind"`
	LogInfo  logger.LogConfig  `json:"log_info"`
	Webdav   WebdavConfig      `json:"webdav"`
	UserInfo map[string]string `json:"user_info"`
}

func Parse(f string) (*Config, error) {
	raw, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("read file:%w", err)
	}
	c := &Config{
		Bind: ":9902",
		Webdav: WebdavConfig{
			BackupPath: "/HomeAssistant/Backups",
		},
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("decode json failed, err:%w", err)
	}
	if len(c.Webdav.BaseURL) == 0 {
		return nil, fmt.Errorf("no webdav base url found")
	}
	return c, nil
}
