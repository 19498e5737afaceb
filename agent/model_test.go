package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackupInfoRoundTripPreservesUnknownFields(t *testing.T) {
	raw := []byte(`{"backup_id":"b1","name":"daily","date":"2024-06-01T00:00:00+00:00","size":123,"protected":true,"homeassistant_version":"2024.6.0","folders":["share","media"]}`)
	info := &BackupInfo{}
	err := json.Unmarshal(raw, info)
	assert.NoError(t, err)
	assert.Equal(t, "b1", info.BackupID)
	assert.Equal(t, "daily", info.Name)
	assert.Equal(t, int64(123), info.Size)
	assert.True(t, info.Protected)

	out, err := json.Marshal(info)
	assert.NoError(t, err)
	m := map[string]interface{}{}
	assert.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "2024.6.0", m["homeassistant_version"])
	assert.Equal(t, []interface{}{"share", "media"}, m["folders"])
	assert.Equal(t, "b1", m["backup_id"])
	assert.Equal(t, float64(123), m["size"])
}

func TestBackupInfoRequiresBackupID(t *testing.T) {
	info := &BackupInfo{}
	err := json.Unmarshal([]byte(`{"name":"daily"}`), info)
	assert.Error(t, err)
	err = json.Unmarshal([]byte(`not json`), info)
	assert.Error(t, err)
}
