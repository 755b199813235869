package longpoll

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Update is one raw long-poll event. Only the type discriminator is decoded
// here; the object payload is decoded by the dispatcher at the boundary.
type Update struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

// FailureKind enumerates the recoverable long-poll failure signals.
type FailureKind int

const (
	// KindCursorStale means the server supplied a replacement cursor;
	// key and server stay valid.
	KindCursorStale FailureKind = 1
	// KindKeyExpired means the key must be re-acquired; the cursor stays valid.
	KindKeyExpired FailureKind = 2
	// KindKeyCursorExpired means both key and cursor must be re-acquired;
	// the server address stays valid.
	KindKeyCursorExpired FailureKind = 3
)

func (k FailureKind) String() string {
	switch k {
	case KindCursorStale:
		return "cursor_stale"
	case KindKeyExpired:
		return "key_expired"
	case KindKeyCursorExpired:
		return "key_cursor_expired"
	}
	return fmt.Sprintf("failed_%d", int(k))
}

// Result is the outcome of a single poll call. Retry policy is a total
// function of the concrete variant: Events advances the cursor, Recoverable
// repairs the descriptor and retries immediately, TransportError backs off
// and re-acquires a fresh descriptor.
type Result interface{ isResult() }

// Events carries a successful batch. The batch may be empty.
type Events struct {
	Cursor  string
	Updates []Update
}

// Recoverable is a protocol-level failure signal (failed=1/2/3).
// Cursor is the server-supplied replacement, set only for KindCursorStale.
type Recoverable struct {
	Kind   FailureKind
	Cursor string
}

// TransportError is a network-level poll failure.
type TransportError struct {
	Cause error
}

func (Events) isResult()         {}
func (Recoverable) isResult()    {}
func (TransportError) isResult() {}

func (e TransportError) Error() string {
	return fmt.Sprintf("longpoll transport: %v", e.Cause)
}

// flexTS tolerates the cursor arriving as either a JSON string or a number:
// a_check responds with a string ts on success but a numeric ts on failed=1.
type flexTS string

func (t *flexTS) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*t = flexTS(s)
		return nil
	}
	*t = flexTS(b)
	return nil
}

type checkResponse struct {
	TS      flexTS   `json:"ts"`
	Updates []Update `json:"updates"`
	Failed  int      `json:"failed"`
}

// parseCheckResponse maps the raw a_check body onto a Result.
func parseCheckResponse(body []byte) (Result, error) {
	var resp checkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode a_check response: %w", err)
	}
	if resp.Failed != 0 {
		kind := FailureKind(resp.Failed)
		switch kind {
		case KindCursorStale, KindKeyExpired, KindKeyCursorExpired:
			return Recoverable{Kind: kind, Cursor: string(resp.TS)}, nil
		default:
			return nil, fmt.Errorf("unknown failed code %d", resp.Failed)
		}
	}
	return Events{Cursor: string(resp.TS), Updates: resp.Updates}, nil
}
