package nodeapi

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned for bodies that are not a JSON-RPC reply.
var ErrMalformedResponse = errors.New("malformed JSON-RPC response")

// RPCError is an error returned by the API, either as a JSON-RPC error
// object or as an {"Err": ...} result.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return "rpc error: " + e.Message
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type outcome struct {
	Ok  json.RawMessage `json:"Ok"`
	Err json.RawMessage `json:"Err"`
}

// ParseResponse unwraps a JSON-RPC reply whose result is {"Ok": v} or
// {"Err": e} and decodes v into out.
func ParseResponse(data []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Error != nil {
		return &RPCError{Code: env.Error.Code, Message: env.Error.Message}
	}
	if len(env.Result) == 0 {
		return fmt.Errorf("%w: missing result", ErrMalformedResponse)
	}

	var res outcome
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(res.Err) > 0 && string(res.Err) != "null" {
		return &RPCError{Message: errorText(res.Err)}
	}
	if len(res.Ok) == 0 {
		return fmt.Errorf("%w: result has neither Ok nor Err", ErrMalformedResponse)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Ok, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// errorText renders an Err payload, which the node sends either as a string
// or as a tagged object such as {"Internal": "..."}.
func errorText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var tagged map[string]any
	if json.Unmarshal(raw, &tagged) == nil && len(tagged) == 1 {
		for k, v := range tagged {
			return fmt.Sprintf("%s: %v", k, v)
		}
	}
	return string(raw)
}

// Tip is the head of the node's chain.
type Tip struct {
	Height          uint64 `json:"height"`
	LastBlockPushed string `json:"last_block_pushed"`
	PrevBlockToLast string `json:"prev_block_to_last"`
	TotalDifficulty uint64 `json:"total_difficulty"`
}

// Status is the get_status result.
type Status struct {
	ProtocolVersion uint32 `json:"protocol_version"`
	UserAgent       string `json:"user_agent"`
	Connections     uint32 `json:"connections"`
	Tip             Tip    `json:"tip"`
	SyncStatus      string `json:"sync_status"`
}
