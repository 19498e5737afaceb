package model

import "github.com/xxxsen/davbackup/agent"

type ListBackupResponse struct {
	List []*agent.BackupInfo `json:"list"`
}

type UploadBackupResponse struct {
	BackupID string `json:"backup_id"`
}

type DeleteBackupRequest struct {
	BackupID string `json:"backup_id"`
}

type DeleteBackupResponse struct {
}
