package action

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is the outbound action envelope. Echo is only set on socket
// transports, where it carries the correlation id.
type Request struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo,omitempty"`
}

// Response statuses.
const (
	StatusOK     = "ok"
	StatusAsync  = "async"
	StatusFailed = "failed"
)

// Response is the envelope the peer answers every action with.
type Response struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Msg     string          `json:"msg,omitempty"`
	Wording string          `json:"wording,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Echo    json.RawMessage `json:"echo,omitempty"`
}

// OK reports whether the peer accepted the action.
func (r *Response) OK() bool {
	return (r.Status == StatusOK || r.Status == StatusAsync) && r.RetCode == 0
}

// Err converts a rejected response into an *ActionFailedError.
func (r *Response) Err(action string) error {
	if r.OK() {
		return nil
	}
	reason := r.Wording
	if reason == "" {
		reason = r.Msg
	}
	if reason == "" {
		reason = r.Status
	}
	return &ActionFailedError{Action: action, Code: r.RetCode, Reason: reason}
}

// Into decodes the response data into out. A null or missing data field
// leaves out untouched.
func (r *Response) Into(out any) error {
	if out == nil || len(r.Data) == 0 || bytes.Equal(r.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// DecodeResponse parses a response body. Bodies that are not a response
// envelope fail with a malformed-response *ActionFailedError.
func DecodeResponse(action string, body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, MalformedResponse(action, err)
	}
	if resp.Status == "" {
		return nil, MalformedResponse(action, nil)
	}
	return &resp, nil
}

// Echo is the correlation payload round-tripped by the peer. It is sent as
// a JSON-encoded string so peers that only echo strings still work.
type Echo struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
}

func (e Echo) String() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// ParseEcho extracts the correlation payload from a raw echo field. It
// accepts both the string form this runtime sends and a bare object.
func ParseEcho(raw json.RawMessage) (Echo, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Echo{}, false
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Echo{}, false
		}
		raw = []byte(inner)
	}
	var echo Echo
	if err := json.Unmarshal(raw, &echo); err != nil || echo.ID == "" {
		return Echo{}, false
	}
	return echo, true
}
