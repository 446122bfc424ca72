package homegraph

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/homegate/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.RequestSync(context.Background(), "user-1"))
	require.NoError(t, n.ReportState(context.Background(), "user-1", "device-light-1", model.StateDoc{"on": true}))

	out := buf.String()
	assert.Contains(t, out, "request sync sent")
	assert.Contains(t, out, "deviceId=device-light-1")
	assert.Contains(t, out, "component=homegraph")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.ReportState(context.Background(), "u", "d", model.StateDoc{"on": false}))
	sent := r.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "state", sent[0].Kind)
	assert.Equal(t, false, sent[0].State["on"])
}
