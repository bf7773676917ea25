package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/beeper/chatgate/pkg/action"
	"github.com/beeper/chatgate/pkg/event"
	"github.com/beeper/chatgate/pkg/plugin"
	"github.com/beeper/chatgate/pkg/segment"
	"github.com/beeper/chatgate/pkg/session"
)

type sentText struct {
	action string
	text   string
}

type capturePeer struct {
	mu   sync.Mutex
	sent []sentText
}

func (p *capturePeer) Addr() string  { return "capture" }
func (p *capturePeer) SelfID() int64 { return 100 }
func (p *capturePeer) Close() error  { return nil }

func (p *capturePeer) Call(_ context.Context, name string, params any) (*action.Response, error) {
	if name == action.SendPrivateMsg || name == action.SendGroupMsg {
		wire := params.(map[string]any)["message"].([]segment.Wire)
		msg := make(segment.Message, 0, len(wire))
		for _, w := range wire {
			seg, err := segment.Decode(w)
			if err != nil {
				return nil, err
			}
			msg = append(msg, seg)
		}
		p.mu.Lock()
		p.sent = append(p.sent, sentText{action: name, text: msg.PlainText()})
		p.mu.Unlock()
	}
	return &action.Response{Status: action.StatusOK, Data: json.RawMessage(`{"message_id":1}`)}, nil
}

func (p *capturePeer) CallAsync(ctx context.Context, name string, params any, cb action.Callback) error {
	resp, err := p.Call(ctx, name, params)
	if cb != nil {
		cb(resp, err)
	}
	return nil
}

func (p *capturePeer) texts() []sentText {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentText(nil), p.sent...)
}

func setup(t *testing.T) (*plugin.Dispatcher, *session.Session, *capturePeer) {
	t.Helper()
	d := plugin.NewDispatcher(plugin.Options{Log: zerolog.Nop(), Superusers: []int64{1}})
	for _, p := range All() {
		if err := d.Load(p); err != nil {
			t.Fatalf("Load(%s): %v", p.Name(), err)
		}
	}
	peer := &capturePeer{}
	s := session.New(peer, session.Options{Log: zerolog.Nop()})
	t.Cleanup(s.Close)
	return d, s, peer
}

func privateMessage(userID int64, text string) event.Event {
	payload := fmt.Sprintf(`{"post_type":"message","message_type":"private","self_id":100,"user_id":%d,"message_id":3,"message":%q,"sender":{"user_id":%d}}`, userID, text, userID)
	return event.Classify([]byte(payload))
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name   string
		userID int64
		text   string
		want   string
	}{
		{"ping", 2, "/ping", "pong"},
		{"echo", 2, "!echo hello  world", "hello world"},
		{"say alias", 2, "/say hi", "hi"},
		{"echo without args", 2, "/echo", ""},
		{"status denied", 2, "/status", ""},
		{"status superuser", 1, "/status", "self 100 via capture (reachable): 0 groups, 0 cached members, 0 friends"},
		{"plain text", 2, "just chatting", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, s, peer := setup(t)
			d.Dispatch(context.Background(), s, privateMessage(tc.userID, tc.text))
			sent := peer.texts()
			if tc.want == "" {
				if len(sent) != 0 {
					t.Fatalf("unexpected replies %v", sent)
				}
				return
			}
			if len(sent) != 1 || sent[0].action != action.SendPrivateMsg || sent[0].text != tc.want {
				t.Fatalf("replies = %v, want %q", sent, tc.want)
			}
		})
	}
}

func TestTraceHandlesEveryKind(t *testing.T) {
	d, s, peer := setup(t)
	payloads := []string{
		`{"post_type":"message","message_type":"group","self_id":100,"group_id":5,"user_id":2,"message":"` + strings.Repeat("long ", 100) + `","sender":{"user_id":2}}`,
		`{"post_type":"notice","notice_type":"group_ban","sub_type":"ban","self_id":100,"group_id":5,"user_id":2,"operator_id":3,"duration":60}`,
		`{"post_type":"request","request_type":"friend","self_id":100,"user_id":2,"comment":"hi","flag":"x"}`,
		`{"post_type":"meta_event","meta_event_type":"heartbeat","self_id":100,"interval":5000}`,
	}
	for _, payload := range payloads {
		d.Dispatch(context.Background(), s, event.Classify([]byte(payload)))
	}
	if sent := peer.texts(); len(sent) != 0 {
		t.Fatalf("trace should not send anything, got %v", sent)
	}
}
