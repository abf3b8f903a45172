package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoCF_WritesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, INFO)
	defer SetOutput(os.Stderr, INFO)

	InfoCF("dispatch", "handled", map[string]interface{}{"chat_id": 42})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "dispatch", line["component"])
	assert.Equal(t, "handled", line["message"])
	assert.EqualValues(t, 42, line["chat_id"])
}

func TestDebugSuppressedBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, WARN)
	defer SetOutput(os.Stderr, INFO)

	DebugC("dispatch", "quiet")
	InfoC("dispatch", "quiet")
	assert.Zero(t, buf.Len())

	ErrorC("dispatch", "loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestConfigure_RejectsUnknownLevel(t *testing.T) {
	err := Configure("chatty", "json")
	assert.Error(t, err)
}
