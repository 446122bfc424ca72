// Package homegraph pushes account and state changes toward the assistant's home graph.
package homegraph

import (
	"context"
	"log/slog"
	"sync"

	"github.com/homegate/server/internal/model"
)

// Notifier tells the assistant platform that something changed on our side.
type Notifier interface {
	// RequestSync asks the platform to re-run SYNC for the agent user.
	RequestSync(ctx context.Context, agentUserID string) error
	// ReportState publishes the latest state document of one device.
	ReportState(ctx context.Context, agentUserID, deviceID string, state model.StateDoc) error
}

// LogNotifier records notifications in the service log instead of calling the platform.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "homegraph")}
}

func (n *LogNotifier) RequestSync(ctx context.Context, agentUserID string) error {
	n.logger.InfoContext(ctx, "request sync sent", "agentUserId", agentUserID)
	return nil
}

func (n *LogNotifier) ReportState(ctx context.Context, agentUserID, deviceID string, state model.StateDoc) error {
	n.logger.InfoContext(ctx, "state reported", "agentUserId", agentUserID, "deviceId", deviceID, "keys", len(state))
	return nil
}

// Notification is one call captured by Recorder.
type Notification struct {
	Kind        string
	AgentUserID string
	DeviceID    string
	State       model.StateDoc
}

// Recorder keeps every notification in memory. Used in tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) RequestSync(_ context.Context, agentUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Notification{Kind: "sync", AgentUserID: agentUserID})
	return nil
}

func (r *Recorder) ReportState(_ context.Context, agentUserID, deviceID string, state model.StateDoc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Notification{Kind: "state", AgentUserID: agentUserID, DeviceID: deviceID, State: state})
	return nil
}

// Sent returns a copy of the captured notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
