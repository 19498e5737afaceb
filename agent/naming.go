package agent

import "strings"

// 命名约定与已有存量备份兼容, 不可变更
const (
	archivePrefix  = "ha_backup_"
	archiveSuffix  = ".tar"
	metadataSuffix = ".json"
)

func MakeArchiveName(backupID string) string {
	return archivePrefix + backupID + archiveSuffix
}

func MakeMetadataName(backupID string) string {
	return archivePrefix + backupID + metadataSuffix
}

func IsArchiveName(name string) bool {
	return strings.HasPrefix(name, archivePrefix) && strings.HasSuffix(name, archiveSuffix)
}

func IsMetadataName(name string) bool {
	return strings.HasPrefix(name, archivePrefix) && strings.HasSuffix(name, metadataSuffix)
}

// ParseArchiveID inverts MakeArchiveName. ok is false when name does not
// follow the archive convention.
func ParseArchiveID(name string) (string, bool) {
	if !IsArchiveName(name) {
		return "", false
	}
	return name[len(archivePrefix) : len(name)-len(archiveSuffix)], true
}

func ParseMetadataID(name string) (string, bool) {
	if !IsMetadataName(name) {
		return "", false
	}
	return name[len(archivePrefix) : len(name)-len(metadataSuffix)], true
}
