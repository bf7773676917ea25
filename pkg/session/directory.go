package session

import (
	"maps"
	"slices"
	"sync"

	"github.com/beeper/chatgate/pkg/event"
)

// Member is a cached group member. It holds no reference to its group;
// the group is known from the lookup that returned it.
type Member struct {
	UserID   int64      `json:"user_id"`
	Nickname string     `json:"nickname"`
	Card     string     `json:"card"`
	Role     event.Role `json:"role"`
	Title    string     `json:"title"`
	Level    string     `json:"level"`
	JoinTime int64      `json:"join_time"`
	LastSent int64      `json:"last_sent_time"`
}

// DisplayName returns the group card if set, the nickname otherwise.
func (m Member) DisplayName() string {
	if m.Card != "" {
		return m.Card
	}
	return m.Nickname
}

// Group is a snapshot of a cached group. Fields filled by lazy population
// stay zero until the corresponding action responds.
type Group struct {
	ID             int64
	Name           string
	MemberCount    int
	MaxMemberCount int
	Admins         []int64
	Members        map[int64]Member
	// Populated reports whether the group info action has answered.
	Populated bool
}

// Friend is a cached friend entry.
type Friend struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Remark   string `json:"remark"`
}

type groupEntry struct {
	id             int64
	name           string
	memberCount    int
	maxMemberCount int
	admins         map[int64]struct{}
	members        map[int64]*Member
	populated      bool
}

func (g *groupEntry) snapshot() Group {
	out := Group{
		ID:             g.id,
		Name:           g.name,
		MemberCount:    g.memberCount,
		MaxMemberCount: g.maxMemberCount,
		Admins:         slices.Sorted(maps.Keys(g.admins)),
		Members:        make(map[int64]Member, len(g.members)),
		Populated:      g.populated,
	}
	for id, m := range g.members {
		out.Members[id] = *m
	}
	return out
}

// Populator issues the actions that fill a freshly created group. It must
// not block; results are written back through the directory's fill methods.
type Populator interface {
	PopulateGroup(groupID int64)
	ResolveMembers(groupID int64)
}

// Directory is the in-memory mirror of the groups, members and friends a
// session can see. Reads return copies; mutation happens only through the
// owning session.
type Directory struct {
	mu        sync.RWMutex
	groups    map[int64]*groupEntry
	friends   map[int64]*Friend
	populator Populator
}

func NewDirectory(populator Populator) *Directory {
	return &Directory{
		groups:    make(map[int64]*groupEntry),
		friends:   make(map[int64]*Friend),
		populator: populator,
	}
}

// Group returns a snapshot of the cached group.
func (d *Directory) Group(groupID int64) (Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[groupID]
	if !ok {
		return Group{}, false
	}
	return g.snapshot(), true
}

// GroupIDs returns the ids of every cached group in ascending order.
func (d *Directory) GroupIDs() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.groups))
}

// Member returns the cached member without touching the network.
func (d *Directory) Member(groupID, userID int64) (Member, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[groupID]
	if !ok {
		return Member{}, false
	}
	m, ok := g.members[userID]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// IsAdmin reports whether userID is a cached admin or owner of groupID.
func (d *Directory) IsAdmin(groupID, userID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[groupID]
	if !ok {
		return false
	}
	_, ok = g.admins[userID]
	return ok
}

// Friend returns the cached friend entry.
func (d *Directory) Friend(userID int64) (Friend, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.friends[userID]
	if !ok {
		return Friend{}, false
	}
	return *f, true
}

// Friends returns every cached friend ordered by user id.
func (d *Directory) Friends() []Friend {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Friend, 0, len(d.friends))
	for _, id := range slices.Sorted(maps.Keys(d.friends)) {
		out = append(out, *d.friends[id])
	}
	return out
}

// ensureGroup returns the entry for groupID, creating it and scheduling its
// population when it is not cached yet. The caller must hold d.mu.
func (d *Directory) ensureGroup(groupID int64, populate bool) (*groupEntry, bool) {
	if g, ok := d.groups[groupID]; ok {
		return g, false
	}
	g := &groupEntry{
		id:      groupID,
		admins:  make(map[int64]struct{}),
		members: make(map[int64]*Member),
	}
	d.groups[groupID] = g
	if populate && d.populator != nil {
		d.populator.PopulateGroup(groupID)
	}
	return g, true
}

// addGroup caches a group by id. It reports whether the group was new; new
// groups are populated asynchronously.
func (d *Directory) addGroup(groupID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, created := d.ensureGroup(groupID, true)
	return created
}

func (d *Directory) removeGroup(groupID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.groups[groupID]; !ok {
		return false
	}
	delete(d.groups, groupID)
	return true
}

// addGroupMember inserts or updates a member. A member without a usable id
// cannot be keyed, so the group's member list is re-fetched instead. It
// reports whether a new entry was created.
func (d *Directory) addGroupMember(groupID int64, member Member) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, _ := d.ensureGroup(groupID, true)
	if member.UserID <= 0 {
		if d.populator != nil {
			d.populator.ResolveMembers(groupID)
		}
		return false
	}
	if existing, ok := g.members[member.UserID]; ok {
		mergeMember(existing, member)
		return false
	}
	m := member
	g.members[member.UserID] = &m
	if m.Role == event.RoleAdmin || m.Role == event.RoleOwner {
		g.admins[m.UserID] = struct{}{}
	}
	if g.memberCount < len(g.members) {
		g.memberCount = len(g.members)
	}
	return true
}

// mergeMember overwrites fields of dst that src carries.
func mergeMember(dst *Member, src Member) {
	if src.Nickname != "" {
		dst.Nickname = src.Nickname
	}
	if src.Card != "" {
		dst.Card = src.Card
	}
	if src.Role != "" {
		dst.Role = src.Role
	}
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Level != "" {
		dst.Level = src.Level
	}
	if src.JoinTime != 0 {
		dst.JoinTime = src.JoinTime
	}
	if src.LastSent != 0 {
		dst.LastSent = src.LastSent
	}
}

func (d *Directory) removeGroupMember(groupID, userID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[groupID]
	if !ok {
		return false
	}
	if _, ok = g.members[userID]; !ok {
		return false
	}
	delete(g.members, userID)
	delete(g.admins, userID)
	if g.memberCount > 0 {
		g.memberCount--
	}
	return true
}

// applyAdminChange updates the admin set and the member's role. It reports
// whether the cached state changed.
func (d *Directory) applyAdminChange(groupID, userID int64, set bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, _ := d.ensureGroup(groupID, true)
	_, wasAdmin := g.admins[userID]
	if set {
		g.admins[userID] = struct{}{}
	} else {
		delete(g.admins, userID)
	}
	if m, ok := g.members[userID]; ok && m.Role != event.RoleOwner {
		if set {
			m.Role = event.RoleAdmin
		} else {
			m.Role = event.RoleMember
		}
	}
	return wasAdmin != set
}

func (d *Directory) applyCardChange(groupID, userID int64, card string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[groupID]
	if !ok {
		return false
	}
	m, ok := g.members[userID]
	if !ok {
		return false
	}
	m.Card = card
	return true
}

func (d *Directory) applyTitleChange(groupID, userID int64, title string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[groupID]
	if !ok {
		return false
	}
	m, ok := g.members[userID]
	if !ok {
		return false
	}
	m.Title = title
	return true
}

// addFriend inserts or updates a friend. It reports whether the entry was
// new.
func (d *Directory) addFriend(friend Friend) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.friends[friend.UserID]; ok {
		if friend.Nickname != "" {
			existing.Nickname = friend.Nickname
		}
		if friend.Remark != "" {
			existing.Remark = friend.Remark
		}
		return false
	}
	f := friend
	d.friends[friend.UserID] = &f
	return true
}

func (d *Directory) removeFriend(userID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.friends[userID]; !ok {
		return false
	}
	delete(d.friends, userID)
	return true
}

// GroupInfo is the data of get_group_info and get_group_list entries.
type GroupInfo struct {
	GroupID        int64  `json:"group_id"`
	GroupName      string `json:"group_name"`
	MemberCount    int    `json:"member_count"`
	MaxMemberCount int    `json:"max_member_count"`
}

// fillGroupInfo writes group info into an existing or new entry without
// scheduling population.
func (d *Directory) fillGroupInfo(info GroupInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, _ := d.ensureGroup(info.GroupID, false)
	g.name = info.GroupName
	g.memberCount = info.MemberCount
	g.maxMemberCount = info.MaxMemberCount
	g.populated = true
}

// fillMembers replaces the member table of a cached group. Groups removed
// in the meantime are not recreated.
func (d *Directory) fillMembers(groupID int64, members []Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[groupID]
	if !ok {
		return
	}
	g.members = make(map[int64]*Member, len(members))
	g.admins = make(map[int64]struct{})
	for _, member := range members {
		m := member
		g.members[m.UserID] = &m
		if m.Role == event.RoleAdmin || m.Role == event.RoleOwner {
			g.admins[m.UserID] = struct{}{}
		}
	}
	if g.memberCount < len(g.members) {
		g.memberCount = len(g.members)
	}
}

// replaceGroups makes the cached group set match list. Existing members are
// kept; unknown groups get their member list fetched.
func (d *Directory) replaceGroups(list []GroupInfo) {
	d.mu.Lock()
	keep := make(map[int64]struct{}, len(list))
	var fresh []int64
	for _, info := range list {
		keep[info.GroupID] = struct{}{}
		g, created := d.ensureGroup(info.GroupID, false)
		g.name = info.GroupName
		g.memberCount = info.MemberCount
		g.maxMemberCount = info.MaxMemberCount
		g.populated = true
		if created {
			fresh = append(fresh, info.GroupID)
		}
	}
	for id := range d.groups {
		if _, ok := keep[id]; !ok {
			delete(d.groups, id)
		}
	}
	d.mu.Unlock()
	if d.populator != nil {
		for _, id := range fresh {
			d.populator.ResolveMembers(id)
		}
	}
}

// replaceFriends makes the cached friend set match list.
func (d *Directory) replaceFriends(list []Friend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.friends = make(map[int64]*Friend, len(list))
	for _, friend := range list {
		f := friend
		d.friends[f.UserID] = &f
	}
}
