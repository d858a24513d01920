package tool

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/inboxmesh/core"
)

// Envelope is the JSON object a domain tool returns to the model:
//
//	{"status":"success","result":"removed event","id_of_event_removed":"e1"}
//	{"status":"failure","result":"failed to remove event","error":"..."}
type Envelope map[string]any

// Success builds a success envelope. kv are extra key/value pairs.
func Success(result string, kv ...any) Envelope {
	e := Envelope{"status": string(core.StatusSuccess), "result": result}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			e[k] = kv[i+1]
		}
	}
	return e
}

// Failure builds a failure envelope from a collaborator error.
func Failure(result string, err error) Envelope {
	e := Envelope{"status": string(core.StatusFailure), "result": result}
	if err != nil {
		e["error"] = err.Error()
	}
	return e
}

// OK reports whether the envelope carries a success status.
func (e Envelope) OK() bool { return e["status"] == string(core.StatusSuccess) }

// String renders the envelope as compact JSON.
func (e Envelope) String() string {
	b, err := json.Marshal(map[string]any(e))
	if err != nil {
		return fmt.Sprintf(`{"status":"failure","result":"unencodable result","error":%q}`, err.Error())
	}
	return string(b)
}

// Render turns any tool result into the text placed in a ToolResult turn.
func Render(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case Envelope:
		return r.String()
	case fmt.Stringer:
		return r.String()
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprintf("%v", r)
		}
		return string(b)
	}
}
