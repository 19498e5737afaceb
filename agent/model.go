package agent

import (
	"encoding/json"
	"fmt"
)

// BackupInfo 为备份描述信息, 即sidecar的内容. 宿主写入的未知字段会原样
// 保留并在重新序列化时写回, sidecar始终是完整的描述而非投影
type BackupInfo struct {
	BackupID  string
	Name      string
	Date      string
	Size      int64
	Protected bool

	extra map[string]json.RawMessage
}

func (b *BackupInfo) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if err := takeField(m, "backup_id", &b.BackupID); err != nil {
		return err
	}
	if len(b.BackupID) == 0 {
		return fmt.Errorf("no backup_id found")
	}
	if err := takeField(m, "name", &b.Name); err != nil {
		return err
	}
	if err := takeField(m, "date", &b.Date); err != nil {
		return err
	}
	if err := takeField(m, "size", &b.Size); err != nil {
		return err
	}
	if err := takeField(m, "protected", &b.Protected); err != nil {
		return err
	}
	if len(m) > 0 {
		b.extra = m
	}
	return nil
}

func takeField(m map[string]json.RawMessage, key string, out interface{}) error {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode field failed, key:%s, err:%w", key, err)
	}
	delete(m, key)
	return nil
}

func (b *BackupInfo) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(b.extra)+5)
	for k, v := range b.extra {
		m[k] = v
	}
	m["backup_id"] = b.BackupID
	m["name"] = b.Name
	m["date"] = b.Date
	m["size"] = b.Size
	m["protected"] = b.Protected
	return json.Marshal(m)
}
