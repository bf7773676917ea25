package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/beeper/chatgate/pkg/action"
	"github.com/beeper/chatgate/pkg/event"
	"github.com/beeper/chatgate/pkg/session"
)

type funcPlugin struct {
	name  string
	setup func(r *Registry) error
}

func (p funcPlugin) Name() string            { return p.name }
func (p funcPlugin) Setup(r *Registry) error { return p.setup(r) }

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(label string) Handler {
	return func(*Context) error {
		r.mu.Lock()
		r.calls = append(r.calls, label)
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

type failureCounter struct{ failed []string }

func (f *failureCounter) ListenerFailed(plugin string) { f.failed = append(f.failed, plugin) }

func newDispatcher(t *testing.T, setup func(r *Registry) error) (*Dispatcher, *failureCounter) {
	t.Helper()
	failures := &failureCounter{}
	d := NewDispatcher(Options{Log: zerolog.Nop(), Observer: failures, Superusers: []int64{999}})
	if err := d.Load(funcPlugin{name: "test", setup: setup}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return d, failures
}

func classify(t *testing.T, payload string) event.Event {
	t.Helper()
	evt := event.Classify([]byte(payload))
	if _, ok := evt.(*event.Unknown); ok {
		t.Fatalf("payload did not classify: %s", payload)
	}
	return evt
}

const groupHello = `{"post_type":"message","message_type":"group","self_id":100,"group_id":1,"user_id":2,"message_id":5,"message":"hello world","sender":{"user_id":2,"role":"member"}}`

func TestDispatch_PriorityOrder(t *testing.T) {
	rec := &recorder{}
	d, _ := newDispatcher(t, func(r *Registry) error {
		for _, p := range []int{30, 10, 20, 10} {
			label := map[int]string{10: "p10", 20: "p20", 30: "p30"}[p]
			if err := r.OnMessage("hello", rec.handler(label), Priority(p)); err != nil {
				return err
			}
		}
		return nil
	})
	d.Dispatch(context.Background(), nil, classify(t, groupHello))
	want := []string{"p10", "p10", "p20", "p30"}
	if got := rec.got(); !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestDispatch_BlockStopsOnlyItsKey(t *testing.T) {
	rec := &recorder{}
	d, _ := newDispatcher(t, func(r *Registry) error {
		_ = r.OnMessage("hello", rec.handler("guarded"), Priority(1), Block(), When(func(*Context) bool { return false }))
		_ = r.OnMessage("hello", rec.handler("blocker"), Priority(2), Block())
		_ = r.OnMessage("hello", rec.handler("after"), Priority(3))
		_ = r.OnMessage("world", rec.handler("other-key"), Priority(100))
		_ = r.OnMessage("", rec.handler("wildcard"), Priority(1000))
		return nil
	})
	d.Dispatch(context.Background(), nil, classify(t, groupHello))
	want := []string{"blocker", "other-key", "wildcard"}
	if got := rec.got(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestDispatch_FailuresAreIsolated(t *testing.T) {
	rec := &recorder{}
	d, failures := newDispatcher(t, func(r *Registry) error {
		_ = r.OnMessage("hello", func(*Context) error { return errors.New("boom") }, Priority(1))
		_ = r.OnMessage("hello", func(*Context) error { panic("kaboom") }, Priority(2))
		_ = r.OnMessage("hello", rec.handler("survivor"), Priority(3))
		return nil
	})
	d.Dispatch(context.Background(), nil, classify(t, groupHello))
	if got := rec.got(); !slices.Equal(got, []string{"survivor"}) {
		t.Fatalf("calls = %v", got)
	}
	if len(failures.failed) != 2 {
		t.Fatalf("expected two recorded failures, got %v", failures.failed)
	}
}

func TestDispatch_RegexMessageKey(t *testing.T) {
	var matches []string
	d, _ := newDispatcher(t, func(r *Registry) error {
		return r.OnMessage(`re:^hello (\w+)$`, func(c *Context) error {
			matches = c.Matches
			return nil
		})
	})
	d.Dispatch(context.Background(), nil, classify(t, groupHello))
	if len(matches) != 2 || matches[1] != "world" {
		t.Fatalf("matches = %v", matches)
	}
	if err := NewRegistry("x").OnMessage("re:(", func(*Context) error { return nil }); err == nil {
		t.Fatalf("expected invalid regex to be rejected")
	}
}

func TestDispatch_Commands(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"exact", "/echo a b", []string{"echo:a,b", "any"}},
		{"alias", "!say a", []string{"echo:a", "any"}},
		{"case insensitive", "/ECHO", []string{"echo:", "any"}},
		{"case sensitive listener", "/Strict", []string{"any"}},
		{"sensitive match", "/strict", []string{"strict", "any"}},
		{"no prompt", "echo a", nil},
		{"mention prefix", `[CQ:at,qq=100] /echo x`, []string{"echo:x", "any"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			d, _ := newDispatcher(t, func(r *Registry) error {
				_ = r.OnCommand("echo", func(c *Context) error {
					return rec.handler("echo:" + joinArgs(c.Command.Args))(c)
				}, Aliases("say"))
				_ = r.OnCommand("strict", rec.handler("strict"), CaseSensitive(true))
				_ = r.OnCommand("", rec.handler("any"), Priority(1000))
				return nil
			})
			payload, _ := json.Marshal(map[string]any{
				"post_type":    "message",
				"message_type": "private",
				"self_id":      100,
				"user_id":      2,
				"message":      tc.message,
				"sender":       map[string]any{"user_id": 2},
			})
			d.Dispatch(context.Background(), nil, classify(t, string(payload)))
			if got := rec.got(); !slices.Equal(got, tc.want) {
				t.Fatalf("calls = %v, want %v", got, tc.want)
			}
		})
	}
}

func joinArgs(args []string) string {
	out := ""
	for i, arg := range args {
		if i > 0 {
			out += ","
		}
		out += arg
	}
	return out
}

func TestDispatch_OwnMessagesAreNotCommands(t *testing.T) {
	rec := &recorder{}
	d, _ := newDispatcher(t, func(r *Registry) error {
		return r.OnCommand("", rec.handler("cmd"))
	})
	d.Dispatch(context.Background(), nil, classify(t, `{"post_type":"message_sent","message_type":"private","self_id":100,"user_id":100,"message":"/echo"}`))
	if got := rec.got(); len(got) != 0 {
		t.Fatalf("own message triggered %v", got)
	}
}

func TestDispatch_NoticeAndRequestUnions(t *testing.T) {
	rec := &recorder{}
	d, _ := newDispatcher(t, func(r *Registry) error {
		_ = r.OnNotice("group_increase|group_decrease", rec.handler("membership"))
		_ = r.OnNotice("group", rec.handler("group-category"))
		_ = r.OnNotice("friend_add", rec.handler("friend"))
		_ = r.OnNotice("", rec.handler("all-notices"), Priority(1000))
		_ = r.OnRequest("friend|group", rec.handler("request"))
		return nil
	})
	d.Dispatch(context.Background(), nil, classify(t, `{"post_type":"notice","notice_type":"group_decrease","sub_type":"leave","self_id":100,"group_id":1,"user_id":2}`))
	d.Dispatch(context.Background(), nil, classify(t, `{"post_type":"request","request_type":"group","sub_type":"add","self_id":100,"group_id":1,"user_id":2,"flag":"f"}`))
	want := []string{"membership", "group-category", "all-notices", "request"}
	if got := rec.got(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestDispatch_PermissionFloor(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"member", groupHello, []string{"everyone", "member"}},
		{"admin", `{"post_type":"message","message_type":"group","self_id":100,"group_id":1,"user_id":3,"message":"hello","sender":{"user_id":3,"role":"admin"}}`, []string{"everyone", "member", "admin"}},
		{"superuser", `{"post_type":"message","message_type":"private","self_id":100,"user_id":999,"message":"hello"}`, []string{"everyone", "member", "admin", "superuser"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			d, _ := newDispatcher(t, func(r *Registry) error {
				_ = r.OnMessage("hello", rec.handler("everyone"), Priority(1))
				_ = r.OnMessage("hello", rec.handler("member"), Priority(2), Permit(Member))
				_ = r.OnMessage("hello", rec.handler("admin"), Priority(3), Permit(Admin))
				_ = r.OnMessage("hello", rec.handler("superuser"), Priority(4), Permit(Superuser))
				return nil
			})
			d.Dispatch(context.Background(), nil, classify(t, tc.payload))
			if got := rec.got(); !slices.Equal(got, tc.want) {
				t.Fatalf("calls = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDispatch_PluginsInLoadOrder(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(Options{Log: zerolog.Nop()})
	for _, name := range []string{"first", "second"} {
		err := d.Load(funcPlugin{name: name, setup: func(r *Registry) error {
			return r.OnMessage("", rec.handler(name), Priority(-1))
		}})
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
	}
	if err := d.Load(funcPlugin{name: "first", setup: func(*Registry) error { return nil }}); err == nil {
		t.Fatalf("expected duplicate plugin to be rejected")
	}
	d.Dispatch(context.Background(), nil, classify(t, groupHello))
	if got := rec.got(); !slices.Equal(got, []string{"first", "second"}) {
		t.Fatalf("calls = %v", got)
	}
	if names := d.Plugins(); !slices.Equal(names, []string{"first", "second"}) {
		t.Fatalf("Plugins = %v", names)
	}
}

type replyPeer struct {
	mu     sync.Mutex
	action string
	params any
}

func (p *replyPeer) Addr() string  { return "reply" }
func (p *replyPeer) SelfID() int64 { return 100 }
func (p *replyPeer) Close() error  { return nil }

func (p *replyPeer) Call(_ context.Context, name string, params any) (*action.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.action, p.params = name, params
	return &action.Response{Status: action.StatusOK, Data: json.RawMessage(`{"message_id":9}`)}, nil
}

func (p *replyPeer) CallAsync(ctx context.Context, name string, params any, cb action.Callback) error {
	resp, err := p.Call(ctx, name, params)
	if cb != nil {
		cb(resp, err)
	}
	return nil
}

func TestContext_ReplyRoutesToSource(t *testing.T) {
	peer := &replyPeer{}
	s := session.New(peer, session.Options{Log: zerolog.Nop()})
	t.Cleanup(s.Close)
	d, _ := newDispatcher(t, func(r *Registry) error {
		return r.OnCommand("ping", func(c *Context) error {
			_, err := c.ReplyText("pong")
			return err
		})
	})
	d.Dispatch(context.Background(), s, classify(t, `{"post_type":"message","message_type":"group","self_id":100,"group_id":7,"user_id":2,"message":"/ping","sender":{"user_id":2}}`))
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.action != action.SendGroupMsg {
		t.Fatalf("reply used %q", peer.action)
	}
	if params := peer.params.(map[string]any); params["group_id"] != int64(7) {
		t.Fatalf("reply params %v", params)
	}
}
