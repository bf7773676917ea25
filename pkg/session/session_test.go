package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/beeper/chatgate/pkg/action"
	"github.com/beeper/chatgate/pkg/event"
	"github.com/beeper/chatgate/pkg/segment"
)

// fakePeer answers actions from a table of canned data.
type fakePeer struct {
	mu      sync.Mutex
	answers map[string]string
	calls   []string
	params  []any
	err     error
}

func newFakePeer(answers map[string]string) *fakePeer {
	return &fakePeer{answers: answers}
}

func (p *fakePeer) Addr() string  { return "fake" }
func (p *fakePeer) SelfID() int64 { return 0 }
func (p *fakePeer) Close() error  { return nil }

func (p *fakePeer) Call(_ context.Context, name string, params any) (*action.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	p.params = append(p.params, params)
	if p.err != nil {
		return nil, p.err
	}
	data, ok := p.answers[name]
	if !ok {
		resp := &action.Response{Status: action.StatusFailed, RetCode: 1404}
		return resp, resp.Err(name)
	}
	return &action.Response{Status: action.StatusOK, Data: json.RawMessage(data)}, nil
}

func (p *fakePeer) CallAsync(ctx context.Context, name string, params any, cb action.Callback) error {
	go func() {
		resp, err := p.Call(ctx, name, params)
		if cb != nil {
			cb(resp, err)
		}
	}()
	return nil
}

func (p *fakePeer) called(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, call := range p.calls {
		if call == name {
			count++
		}
	}
	return count
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type nopPopulator struct {
	mu       sync.Mutex
	populate []int64
	resolve  []int64
}

func (p *nopPopulator) PopulateGroup(groupID int64) {
	p.mu.Lock()
	p.populate = append(p.populate, groupID)
	p.mu.Unlock()
}

func (p *nopPopulator) ResolveMembers(groupID int64) {
	p.mu.Lock()
	p.resolve = append(p.resolve, groupID)
	p.mu.Unlock()
}

func TestDirectory_MemberAddRemove(t *testing.T) {
	pop := &nopPopulator{}
	dir := NewDirectory(pop)

	if !dir.addGroupMember(1, Member{UserID: 10, Nickname: "a"}) {
		t.Fatalf("first add should create the member")
	}
	if dir.addGroupMember(1, Member{UserID: 10, Card: "card"}) {
		t.Fatalf("second add should update in place")
	}
	group, ok := dir.Group(1)
	if !ok || len(group.Members) != 1 {
		t.Fatalf("expected exactly one member, got %+v", group.Members)
	}
	member, _ := dir.Member(1, 10)
	if member.Nickname != "a" || member.Card != "card" || member.DisplayName() != "card" {
		t.Fatalf("unexpected merged member %+v", member)
	}
	if len(pop.populate) != 1 || pop.populate[0] != 1 {
		t.Fatalf("expected lazy population of group 1, got %v", pop.populate)
	}

	if dir.removeGroupMember(1, 99) {
		t.Fatalf("removing an unknown member should report false")
	}
	if dir.removeGroupMember(2, 10) {
		t.Fatalf("removing from an unknown group should report false")
	}
	if !dir.removeGroupMember(1, 10) {
		t.Fatalf("removing a cached member should report true")
	}
	if _, ok := dir.Member(1, 10); ok {
		t.Fatalf("member still cached after removal")
	}
}

func TestDirectory_UnresolvedMemberID(t *testing.T) {
	pop := &nopPopulator{}
	dir := NewDirectory(pop)
	if dir.addGroupMember(5, Member{UserID: -1}) {
		t.Fatalf("member without id must not be inserted")
	}
	if len(pop.resolve) != 1 || pop.resolve[0] != 5 {
		t.Fatalf("expected member list resolution, got %v", pop.resolve)
	}
}

func TestDirectory_SnapshotsAreCopies(t *testing.T) {
	dir := NewDirectory(nil)
	dir.addGroupMember(1, Member{UserID: 10, Role: event.RoleAdmin})
	group, _ := dir.Group(1)
	group.Members[11] = Member{UserID: 11}
	delete(group.Members, 10)
	if _, ok := dir.Member(1, 10); !ok {
		t.Fatalf("mutating a snapshot changed the cache")
	}
	if _, ok := dir.Member(1, 11); ok {
		t.Fatalf("mutating a snapshot changed the cache")
	}
	if !dir.IsAdmin(1, 10) {
		t.Fatalf("admin role not tracked")
	}
}

func TestDirectory_AdminCardAndFriends(t *testing.T) {
	dir := NewDirectory(nil)
	dir.addGroupMember(1, Member{UserID: 10, Role: event.RoleMember})
	if !dir.applyAdminChange(1, 10, true) {
		t.Fatalf("admin set should change state")
	}
	if m, _ := dir.Member(1, 10); m.Role != event.RoleAdmin {
		t.Fatalf("role not updated: %+v", m)
	}
	if !dir.applyAdminChange(1, 10, false) || dir.IsAdmin(1, 10) {
		t.Fatalf("admin unset not applied")
	}
	if !dir.applyCardChange(1, 10, "new") {
		t.Fatalf("card change not applied")
	}
	if dir.applyCardChange(1, 99, "x") {
		t.Fatalf("card change for unknown member should report false")
	}

	if !dir.addFriend(Friend{UserID: 7}) || dir.addFriend(Friend{UserID: 7, Nickname: "n"}) {
		t.Fatalf("friend add should report new only once")
	}
	if f, _ := dir.Friend(7); f.Nickname != "n" {
		t.Fatalf("friend not updated: %+v", f)
	}
	if !dir.removeFriend(7) || dir.removeFriend(7) {
		t.Fatalf("friend removal should succeed exactly once")
	}
}

func newTestSession(t *testing.T, peer *fakePeer, sink EventSink) *Session {
	t.Helper()
	s := New(peer, Options{Log: zerolog.Nop(), Sink: sink})
	s.Start()
	t.Cleanup(s.Close)
	return s
}

func TestSession_LazyGroupPopulation(t *testing.T) {
	peer := newFakePeer(map[string]string{
		action.GetGroupInfo:       `{"group_id":42,"group_name":"gophers","member_count":2,"max_member_count":200}`,
		action.GetGroupMemberList: `[{"user_id":1,"nickname":"owner","role":"owner"},{"user_id":2,"nickname":"bob","role":"member"}]`,
	})
	s := newTestSession(t, peer, nil)

	s.Apply(event.Classify([]byte(`{"post_type":"notice","notice_type":"group_card","group_id":42,"user_id":2,"card_new":"b"}`)))
	if _, ok := s.Directory().Group(42); ok {
		t.Fatalf("card change must not create groups")
	}

	s.Directory().addGroup(42)
	eventually(t, "group population", func() bool {
		g, ok := s.Directory().Group(42)
		return ok && g.Populated && len(g.Members) == 2
	})
	g, _ := s.Directory().Group(42)
	if g.Name != "gophers" || g.MaxMemberCount != 200 {
		t.Fatalf("unexpected group %+v", g)
	}
	if len(g.Admins) != 1 || g.Admins[0] != 1 {
		t.Fatalf("owner not tracked as admin: %v", g.Admins)
	}
}

func TestSession_EventsPatchDirectory(t *testing.T) {
	peer := newFakePeer(map[string]string{
		action.GetStrangerInfo: `{"user_id":9,"nickname":"dave"}`,
	})
	delivered := make(chan event.Event, 16)
	s := newTestSession(t, peer, func(_ context.Context, _ *Session, evt event.Event) {
		delivered <- evt
	})
	s.Directory().fillGroupInfo(GroupInfo{GroupID: 42, GroupName: "gophers"})

	payloads := []string{
		`{"post_type":"message","message_type":"group","self_id":100,"group_id":42,"user_id":2,"message":"hi","sender":{"user_id":2,"nickname":"bob","role":"member"}}`,
		`{"post_type":"notice","notice_type":"group_increase","self_id":100,"group_id":42,"user_id":3}`,
		`{"post_type":"notice","notice_type":"group_admin","sub_type":"set","self_id":100,"group_id":42,"user_id":2}`,
		`{"post_type":"notice","notice_type":"group_decrease","sub_type":"leave","self_id":100,"group_id":42,"user_id":3}`,
		`{"post_type":"notice","notice_type":"friend_add","self_id":100,"user_id":9}`,
	}
	for _, payload := range payloads {
		s.Deliver([]byte(payload))
	}
	for i := range payloads {
		select {
		case evt := <-delivered:
			if string(evt.Raw()) != payloads[i] {
				t.Fatalf("event %d delivered out of order", i)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
	if s.SelfID() != 100 {
		t.Fatalf("self id not learned, got %d", s.SelfID())
	}
	m, ok := s.Directory().Member(42, 2)
	if !ok || m.Role != event.RoleAdmin {
		t.Fatalf("admin change not applied: %+v", m)
	}
	if _, ok := s.Directory().Member(42, 3); ok {
		t.Fatalf("departed member still cached")
	}
	eventually(t, "friend nickname", func() bool {
		f, ok := s.Directory().Friend(9)
		return ok && f.Nickname == "dave"
	})
}

func TestSession_EventsWithoutGroupIDLeaveDirectoryAlone(t *testing.T) {
	peer := newFakePeer(nil)
	s := newTestSession(t, peer, nil)
	for _, payload := range []string{
		`{"post_type":"message","message_type":"group","self_id":100,"user_id":2,"message":"hi","sender":{"user_id":2,"role":"member"}}`,
		`{"post_type":"notice","notice_type":"group_increase","self_id":100,"user_id":3}`,
		`{"post_type":"notice","notice_type":"group_admin","sub_type":"set","self_id":100,"user_id":2}`,
	} {
		s.Apply(event.Classify([]byte(payload)))
	}
	if ids := s.Directory().GroupIDs(); len(ids) != 0 {
		t.Fatalf("groups cached from events without group_id: %v", ids)
	}
	time.Sleep(50 * time.Millisecond)
	for _, name := range []string{action.GetGroupInfo, action.GetGroupMemberList, action.GetGroupMemberInfo} {
		if n := peer.called(name); n != 0 {
			t.Fatalf("%s called %d times", name, n)
		}
	}
}

func TestSession_SelfLeaveRemovesGroup(t *testing.T) {
	peer := newFakePeer(nil)
	s := newTestSession(t, peer, nil)
	s.Directory().addGroupMember(42, Member{UserID: 2})
	s.Apply(event.Classify([]byte(`{"post_type":"notice","notice_type":"group_decrease","sub_type":"kick_me","self_id":100,"group_id":42,"user_id":100}`)))
	if _, ok := s.Directory().Group(42); ok {
		t.Fatalf("group should be removed when the bot leaves")
	}
}

func TestSession_Prime(t *testing.T) {
	peer := newFakePeer(map[string]string{
		action.GetLoginInfo:       `{"user_id":100,"nickname":"bot"}`,
		action.GetGroupList:       `[{"group_id":1,"group_name":"one"},{"group_id":2,"group_name":"two"}]`,
		action.GetFriendList:      `[{"user_id":7,"nickname":"f","remark":"r"}]`,
		action.GetGroupMemberList: `[{"user_id":100,"nickname":"bot","role":"member"}]`,
	})
	s := newTestSession(t, peer, nil)
	s.Directory().addGroupMember(3, Member{UserID: 5})

	if err := s.Prime(context.Background()); err != nil {
		t.Fatalf("Prime: %v", err)
	}
	if s.SelfID() != 100 {
		t.Fatalf("self id = %d", s.SelfID())
	}
	ids := s.Directory().GroupIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected groups %v", ids)
	}
	if f, ok := s.Directory().Friend(7); !ok || f.Remark != "r" {
		t.Fatalf("friend list not loaded: %+v", f)
	}
	eventually(t, "member lists", func() bool { return peer.called(action.GetGroupMemberList) >= 2 })
}

func TestSession_InvokeAndReachability(t *testing.T) {
	peer := newFakePeer(map[string]string{action.SendGroupMsg: `{"message_id":77}`})
	s := newTestSession(t, peer, nil)

	id, err := s.SendGroupMessage(context.Background(), 42, segment.TextMessage("hello"))
	if err != nil || id != 77 {
		t.Fatalf("SendGroupMessage = %d, %v", id, err)
	}
	peer.mu.Lock()
	params := peer.params[len(peer.params)-1].(map[string]any)
	peer.mu.Unlock()
	if params["group_id"] != int64(42) {
		t.Fatalf("unexpected params %v", params)
	}

	if _, err := s.Invoke(context.Background(), action.SendGroupMsg, map[string]any{"group_id": 1}); err == nil {
		t.Fatalf("expected missing param validation error")
	}

	peer.mu.Lock()
	peer.err = action.ErrConnectionClosed
	peer.mu.Unlock()
	if _, err := s.GetLoginInfo(context.Background()); !errors.Is(err, action.ErrConnectionClosed) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if s.Reachable() {
		t.Fatalf("session should be unreachable after a connection error")
	}

	s.Close()
	if _, err := s.GetLoginInfo(context.Background()); !errors.Is(err, action.ErrConnectionClosed) {
		t.Fatalf("expected closed session to refuse actions, got %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop")
	}
}
