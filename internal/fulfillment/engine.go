// Package fulfillment answers assistant intent batches against the device registry and state store.
package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/homegate/server/internal/apperr"
	"github.com/homegate/server/internal/audit"
	"github.com/homegate/server/internal/authz"
	"github.com/homegate/server/internal/metrics"
	"github.com/homegate/server/internal/model"
	"github.com/homegate/server/internal/repo"
)

// timeLayout matches ISO-8601 with millisecond precision in UTC
const timeLayout = "2006-01-02T15:04:05.000Z"

// Engine processes fulfillment batches. It is the only place where
// assistant commands turn into state writes.
type Engine struct {
	devices repo.DeviceRepo
	states  repo.StateRepo
	audit   audit.Recorder
	now     func() time.Time
}

func NewEngine(devices repo.DeviceRepo, states repo.StateRepo, recorder audit.Recorder) *Engine {
	return &Engine{devices: devices, states: states, audit: recorder, now: time.Now}
}

// Fulfill handles every input in order. An unknown intent only affects its own slot;
// a malformed payload or a store failure fails the whole batch.
func (e *Engine) Fulfill(ctx context.Context, p authz.Principal, meta audit.Meta, req Request) (Response, error) {
	if len(req.Inputs) == 0 {
		return Response{}, apperr.Validation("No inputs provided")
	}

	userID := p.Owner()
	payloads := make([]any, 0, len(req.Inputs))
	for i, in := range req.Inputs {
		payload, err := e.dispatch(ctx, p, in)
		if err != nil {
			metrics.FulfillmentIntentsTotal.WithLabelValues(intentLabel(in.Intent), "error").Inc()
			slog.Error("fulfillment input failed", "userId", userID, "requestId", req.RequestID, "input", i, "intent", in.Intent, "error", err)
			return Response{}, err
		}
		payloads = append(payloads, payload)

		e.audit.Record(audit.Entry(userID, "", "google_home_"+strings.ToLower(in.Intent), meta, map[string]any{
			"intent": in.Intent,
		}))
	}

	resp := Response{RequestID: req.RequestID}
	if len(payloads) == 1 {
		resp.Payload = payloads[0]
	} else {
		resp.Payload = Batch{Responses: payloads}
	}
	return resp, nil
}

func (e *Engine) dispatch(ctx context.Context, p authz.Principal, in Input) (any, error) {
	var (
		payload any
		err     error
	)
	switch in.Intent {
	case IntentSync:
		payload, err = e.sync(ctx, p)
	case IntentQuery:
		var q queryPayload
		if err = decodePayload(in, &q); err == nil {
			payload, err = e.query(ctx, p, q)
		}
	case IntentExecute:
		var x executePayload
		if err = decodePayload(in, &x); err == nil {
			payload, err = e.execute(ctx, p, x)
		}
	case IntentDisconnect:
		slog.Info("DISCONNECT intent handled", "userId", p.Owner())
		payload = DisconnectPayload{}
	default:
		metrics.FulfillmentIntentsTotal.WithLabelValues("unknown", "unsupported").Inc()
		slog.Warn("unsupported intent", "userId", p.Owner(), "intent", in.Intent)
		return ErrorPayload{ErrorCode: ErrorUnsupportedIntent}, nil
	}
	if err != nil {
		return nil, err
	}
	metrics.FulfillmentIntentsTotal.WithLabelValues(intentLabel(in.Intent), "success").Inc()
	return payload, nil
}

func intentLabel(intent string) string {
	switch intent {
	case IntentSync, IntentQuery, IntentExecute, IntentDisconnect:
		return strings.TrimPrefix(intent, "action.devices.")
	default:
		return "unknown"
	}
}

func decodePayload(in Input, dst any) error {
	if len(in.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(in.Payload, dst); err != nil {
		return apperr.Validation(fmt.Sprintf("Invalid payload for %s", in.Intent))
	}
	return nil
}

func (e *Engine) owned(ctx context.Context, p authz.Principal) ([]model.Device, error) {
	devices, err := e.devices.ListByUser(ctx, p.Owner())
	if err != nil {
		return nil, apperr.Internal("list devices failed", err)
	}
	return devices, nil
}

func (e *Engine) sync(ctx context.Context, p authz.Principal) (SyncPayload, error) {
	devices, err := e.owned(ctx, p)
	if err != nil {
		return SyncPayload{}, err
	}
	out := SyncPayload{AgentUserID: p.Owner().String(), Devices: make([]SyncDevice, 0, len(devices))}
	for _, d := range devices {
		out.Devices = append(out.Devices, SyncDevice{
			ID:         d.ID,
			Type:       d.Type,
			Traits:     d.Traits,
			Name:       DeviceName{Name: d.Name},
			RoomHint:   d.Room,
			Attributes: d.Attributes,
		})
	}
	slog.Info("SYNC intent handled", "userId", p.Owner(), "deviceCount", len(out.Devices))
	return out, nil
}

// query reports state for the requested devices the caller owns. Others are left out.
func (e *Engine) query(ctx context.Context, p authz.Principal, q queryPayload) (QueryPayload, error) {
	wanted := make(map[string]bool, len(q.Devices))
	for _, ref := range q.Devices {
		wanted[string(ref)] = true
	}
	devices, err := e.owned(ctx, p)
	if err != nil {
		return QueryPayload{}, err
	}

	out := QueryPayload{Devices: make(map[string]model.StateDoc)}
	for _, d := range devices {
		if !wanted[d.ID] {
			continue
		}
		st, found, err := e.states.Get(ctx, d.ID)
		if err != nil {
			return QueryPayload{}, apperr.Internal("get device state failed", err)
		}
		if !found || st.State == nil {
			out.Devices[d.ID] = model.StateDoc{}
			continue
		}
		out.Devices[d.ID] = st.State
	}
	slog.Info("QUERY intent handled", "userId", p.Owner(), "requested", len(wanted), "deviceCount", len(out.Devices))
	return out, nil
}

// execute writes one state document per (device, execution) pair, in order.
// Targets the caller does not own are skipped.
func (e *Engine) execute(ctx context.Context, p authz.Principal, x executePayload) (ExecutePayload, error) {
	devices, err := e.owned(ctx, p)
	if err != nil {
		return ExecutePayload{}, err
	}
	owned := make(map[string]bool, len(devices))
	for _, d := range devices {
		owned[d.ID] = true
	}

	out := ExecutePayload{Commands: make([]CommandResult, 0)}
	for _, cmd := range x.Commands {
		for _, ref := range cmd.Devices {
			deviceID := string(ref)
			if !owned[deviceID] {
				slog.Warn("EXECUTE target skipped", "userId", p.Owner(), "deviceId", deviceID)
				continue
			}
			for _, exec := range cmd.Execution {
				doc := commandState(exec, e.now())
				if _, err := e.states.Upsert(ctx, deviceID, doc); err != nil {
					return ExecutePayload{}, apperr.Internal("update device state failed", err)
				}
				metrics.DeviceStateUpsertsTotal.WithLabelValues("execute").Inc()
				out.Commands = append(out.Commands, CommandResult{
					IDs:    []string{deviceID},
					Status: StatusSuccess,
					State:  doc,
				})
				slog.Info("EXECUTE command processed", "userId", p.Owner(), "deviceId", deviceID, "command", exec.Command)
			}
		}
	}
	return out, nil
}

// commandState is the execution's params plus lastCommand and lastCommandTime
func commandState(exec Execution, now time.Time) model.StateDoc {
	doc := make(model.StateDoc, len(exec.Params)+2)
	for k, v := range exec.Params {
		doc[k] = v
	}
	doc["lastCommand"] = exec.Command
	doc["lastCommandTime"] = now.UTC().Format(timeLayout)
	return doc
}
