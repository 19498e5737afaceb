package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	BaseURL    string `json:"base_url"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	BackupPath string `json:"backup_path"`
	SkipVerify bool   `json:"skip_verify_ssl"`
	LogLevel   string `json:"log_level"`
	Retry      int    `json:"retry"`
}

func Parse(f string) (*Config, error) {
	raw, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("read file:%w", err)
	}
	c := &Config{
		BackupPath: "/HomeAssistant/Backups",
		LogLevel:   "info",
		Retry:      3,
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("unmarshal file:%w", err)
	}
	return c, nil
}
