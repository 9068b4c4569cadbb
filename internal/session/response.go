package session

import (
	"bytes"
	"encoding/json"
	"time"
)

// Response is the JSON envelope every session-control operation returns.
// On failure Result is null and Message is human readable.
type Response struct {
	SessionID string          `json:"session_id"`
	Status    Status          `json:"status"`
	Message   string          `json:"message"`
	Result    json.RawMessage `json:"result"`
	Timestamp string          `json:"timestamp"`
}

// NewResponse builds an envelope stamped with the current time.
func NewResponse(id string, status Status, message string, result json.RawMessage) Response {
	return Response{
		SessionID: id,
		Status:    status,
		Message:   message,
		Result:    nullable(result),
		Timestamp: timeNow().UTC().Format(time.RFC3339Nano),
	}
}

// ErrorResponse builds a failure envelope with a null result.
func ErrorResponse(id, message string) Response {
	return NewResponse(id, StatusError, message, nil)
}

// FromSnapshot builds an envelope describing a session's recorded state.
// For terminal sessions the timestamp is the moment the session reached
// that state, so repeated reads produce identical envelopes.
func FromSnapshot(snap Snapshot, message string) Response {
	ts := timeNow().UTC()
	if snap.Status.IsTerminal() {
		ts = snap.UpdatedAt
	}
	return Response{
		SessionID: snap.ID,
		Status:    snap.Status,
		Message:   message,
		Result:    nullable(snap.FinalResult),
		Timestamp: ts.Format(time.RFC3339Nano),
	}
}

// JSON renders the envelope.
func (r Response) JSON() string {
	data, err := EncodeJSON(r)
	if err != nil {
		return `{"status":"error","message":"encoding response failed","result":null}`
	}
	return string(data)
}

func nullable(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// EncodeJSON marshals v without HTML escaping, so model text such as
// <solution> tags stays readable in results.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
