package fulfillment

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/homegate/server/internal/model"
)

// Intent tags understood by the engine
const (
	IntentSync       = "action.devices.SYNC"
	IntentQuery      = "action.devices.QUERY"
	IntentExecute    = "action.devices.EXECUTE"
	IntentDisconnect = "action.devices.DISCONNECT"
)

// StatusSuccess is the only command status produced
const StatusSuccess = "SUCCESS"

// ErrorUnsupportedIntent is returned in place of a payload for intents the engine does not know
const ErrorUnsupportedIntent = "unsupportedIntent"

// Request is one fulfillment batch
type Request struct {
	RequestID string  `json:"requestId"`
	Inputs    []Input `json:"inputs"`
}

// Input is one intent of a batch. Payload is decoded by the intent handler.
type Input struct {
	Intent  string          `json:"intent"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response wraps the payload of a single input, or a Batch for several inputs
type Response struct {
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

// Batch is the payload of a response to more than one input
type Batch struct {
	Responses []any `json:"responses"`
}

// DeviceRef identifies a device in QUERY and EXECUTE payloads.
// Both {"id": "..."} and a bare string are accepted.
type DeviceRef string

func (r *DeviceRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = DeviceRef(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("device reference: %w", err)
	}
	*r = DeviceRef(obj.ID)
	return nil
}

type queryPayload struct {
	Devices []DeviceRef `json:"devices"`
}

type executePayload struct {
	Commands []Command `json:"commands"`
}

// Command targets a set of devices with a list of executions
type Command struct {
	Devices   []DeviceRef `json:"devices"`
	Execution []Execution `json:"execution"`
}

// Execution is a single command with its parameters
type Execution struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// SyncPayload lists every device of the agent user
type SyncPayload struct {
	AgentUserID string       `json:"agentUserId"`
	Devices     []SyncDevice `json:"devices"`
}

// SyncDevice is the assistant-facing description of a device
type SyncDevice struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Traits     []string       `json:"traits"`
	Name       DeviceName     `json:"name"`
	RoomHint   *string        `json:"roomHint,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

type DeviceName struct {
	Name string `json:"name"`
}

// QueryPayload maps device ids to their current state
type QueryPayload struct {
	Devices map[string]model.StateDoc `json:"devices"`
}

// ExecutePayload lists one result per device and execution
type ExecutePayload struct {
	Commands []CommandResult `json:"commands"`
}

type CommandResult struct {
	IDs    []string       `json:"ids"`
	Status string         `json:"status"`
	State  model.StateDoc `json:"state"`
}

// DisconnectPayload acknowledges unlinking
type DisconnectPayload struct{}

// ErrorPayload replaces the payload of an input that could not be handled
type ErrorPayload struct {
	ErrorCode string `json:"errorCode"`
}
