package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Verdict is the parent's normalized view of one scenario's outcome.
type Verdict struct {
	ID      string
	Success bool
	Payload map[string]any

	// Raw is the verbatim JSON the child emitted, when it emitted any.
	Raw string
}

// MarshalJSON renders {id, success, ...payload}.
func (v Verdict) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Payload)+2)
	for k, val := range v.Payload {
		out[k] = val
	}
	out["id"] = v.ID
	out["success"] = v.Success
	return json.Marshal(out)
}

// Text is what gets fed back to the model: the child's own JSON when it
// produced one, otherwise the normalized verdict.
func (v Verdict) Text() string {
	if v.Raw != "" {
		return v.Raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"id":%q,"success":false,"error":"unencodable verdict"}`, v.ID)
	}
	return string(data)
}

// Wait makes an already known verdict usable wherever a running scenario is.
func (v Verdict) Wait(context.Context) Verdict { return v }

// Reason returns the failure reason carried in the payload, if any.
func (v Verdict) Reason() string {
	if s, ok := v.Payload["error"].(string); ok {
		return s
	}
	return ""
}

// Decode classifies a finished scenario process:
//
//	exit 0 with a JSON object on stdout    → success verdict
//	failure with a JSON object on stderr   → structured failure verdict
//	expected stream not a JSON object      → failed, decoding error
//	killed                                 → failed, same as a decoding error
//
// It never fails; every process maps to exactly one verdict.
func Decode(id string, stdout, stderr []byte, exitErr error, killed bool) Verdict {
	if killed {
		return Failed(id, "scenario terminated before reporting")
	}

	if exitErr == nil {
		if obj, raw, ok := parseObject(stdout); ok {
			success := true
			if s, isBool := obj["success"].(bool); isBool {
				success = s
			}
			return Verdict{ID: id, Success: success, Payload: obj, Raw: raw}
		}
		// A failure object on stderr is allowed with exit code zero.
		if len(bytes.TrimSpace(stdout)) == 0 {
			if obj, raw, ok := parseVerdictLine(stderr); ok {
				return Verdict{ID: id, Success: false, Payload: obj, Raw: raw}
			}
		}
		return Failed(id, "decoding scenario output: stdout is not a JSON object")
	}

	if obj, raw, ok := parseVerdictLine(stderr); ok {
		return Verdict{ID: id, Success: false, Payload: obj, Raw: raw}
	}
	reason := fmt.Sprintf("decoding scenario output: stderr is not a JSON object (%v)", exitErr)
	if tail := tailOf(stderr, 500); tail != "" {
		reason += ": " + tail
	}
	return Failed(id, reason)
}

// Failed builds a failure verdict carrying reason.
func Failed(id, reason string) Verdict {
	return Verdict{ID: id, Success: false, Payload: map[string]any{"error": reason}}
}

func parseObject(data []byte) (map[string]any, string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, "", false
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, "", false
	}
	return obj, string(trimmed), true
}

// parseVerdictLine finds the verdict on stderr. Log lines may precede it,
// so the whole stream is tried first, then the last line carrying a
// "success" field.
func parseVerdictLine(data []byte) (map[string]any, string, bool) {
	if obj, raw, ok := parseObject(data); ok {
		return obj, raw, true
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		obj, raw, ok := parseObject(lines[i])
		if !ok {
			continue
		}
		if _, has := obj["success"]; has {
			return obj, raw, true
		}
	}
	return nil, "", false
}

func tailOf(data []byte, n int) string {
	s := string(bytes.TrimSpace(data))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}

// Report is the payload a scenario writes when it reached a conclusion.
type Report struct {
	ID         string `json:"id"`
	Hypothesis string `json:"hypothesis"`
	Success    bool   `json:"success"`
	Report     string `json:"report"`
}

// Failure is the payload a scenario writes when it could not investigate.
type Failure struct {
	ID         string `json:"id"`
	Hypothesis string `json:"hypothesis"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
}

// WriteReport emits the success object. The caller exits 0 afterwards.
func WriteReport(w io.Writer, a Args, report string) error {
	return writeLine(w, Report{ID: a.ID, Hypothesis: a.Hypothesis, Success: true, Report: report})
}

// WriteFailure emits the failure object. The caller exits non-zero afterwards.
func WriteFailure(w io.Writer, a Args, cause error) error {
	return writeLine(w, Failure{ID: a.ID, Hypothesis: a.Hypothesis, Success: false, Error: cause.Error()})
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
