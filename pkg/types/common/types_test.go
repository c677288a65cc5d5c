package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_IsValid(t *testing.T) {
	id := NewID()
	assert.NoError(t, id.Validate())
	assert.NotEqual(t, id, NewID())
}

func TestID_Validate(t *testing.T) {
	assert.Error(t, ID("").Validate())
	assert.Error(t, ID("not-a-uuid").Validate())
}

func TestTimestamp_JSON(t *testing.T) {
	ts := Timestamp(time.Date(2025, 10, 14, 8, 30, 0, 0, time.UTC))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2025-10-14T08:30:00Z"`, string(data))

	var back Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, time.Time(ts).Equal(time.Time(back)))

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &back))
}

func TestAPIResponse_OmitsEmptyError(t *testing.T) {
	resp := APIResponse[string]{Success: true, Data: "ok", RequestID: "r1", Timestamp: Now()}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)
}

//Personal.AI order the ending
