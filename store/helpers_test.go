package store_test

import (
	"testing"

	"github.com/jacentio/antler/kv"
	"github.com/jacentio/antler/store"
)

// Organization owns studios and shares its key with settings and billing.
type Organization struct {
	ID   uint32
	Name string
}

func (*Organization) StoreName() string  { return "organizations" }
func (o *Organization) GetKey() uint32   { return o.ID }
func (o *Organization) SetKey(id uint32) { o.ID = id }

func (*Organization) SiblingStores() []store.Edge {
	return []store.Edge{
		{Store: "org_settings", OnDelete: store.BehaviorCascade},
		{Store: "org_billing", OnDelete: store.BehaviorError},
		{Store: "org_notes", OnDelete: store.BehaviorBreakLink},
	}
}

func (*Organization) ChildStores() []store.Edge {
	return []store.Edge{
		{Store: "studios", OnDelete: store.BehaviorCascade},
	}
}

// Settings refuses to lose its organization, which only matters when it is
// deleted on its own.
type Settings struct {
	ID    uint32
	Theme string
}

func (*Settings) StoreName() string  { return "org_settings" }
func (s *Settings) GetKey() uint32   { return s.ID }
func (s *Settings) SetKey(id uint32) { s.ID = id }

func (*Settings) SiblingStores() []store.Edge {
	return []store.Edge{{Store: "organizations", OnDelete: store.BehaviorError}}
}

type Billing struct {
	ID   uint32
	Plan string
}

func (*Billing) StoreName() string  { return "org_billing" }
func (b *Billing) GetKey() uint32   { return b.ID }
func (b *Billing) SetKey(id uint32) { b.ID = id }

type Note struct {
	ID   uint32
	Text string
}

func (*Note) StoreName() string  { return "org_notes" }
func (n *Note) GetKey() uint32   { return n.ID }
func (n *Note) SetKey(id uint32) { n.ID = id }

type Studio struct {
	Key  store.ChildKey[uint32]
	Name string
}

func (*Studio) StoreName() string                   { return "studios" }
func (s *Studio) GetKey() store.ChildKey[uint32]    { return s.Key }
func (s *Studio) SetKey(key store.ChildKey[uint32]) { s.Key = key }

func (*Studio) ChildStores() []store.Edge {
	return []store.Edge{{Store: "titles", OnDelete: store.BehaviorCascade}}
}

type Title struct {
	Key  store.ChildKey[store.ChildKey[uint32]]
	Name string
}

func (*Title) StoreName() string                                   { return "titles" }
func (t *Title) GetKey() store.ChildKey[store.ChildKey[uint32]]    { return t.Key }
func (t *Title) SetKey(key store.ChildKey[store.ChildKey[uint32]]) { t.Key = key }

// Tag is linked to titles through free relations.
type Tag struct {
	Name  string
	Color string
}

func (*Tag) StoreName() string    { return "tags" }
func (t *Tag) GetKey() string     { return t.Name }
func (t *Tag) SetKey(name string) { t.Name = name }

// Team refuses deletion while it has members.
type Team struct {
	ID   uint32
	Name string
}

func (*Team) StoreName() string  { return "teams" }
func (t *Team) GetKey() uint32   { return t.ID }
func (t *Team) SetKey(id uint32) { t.ID = id }

func (*Team) ChildStores() []store.Edge {
	return []store.Edge{{Store: "members", OnDelete: store.BehaviorError}}
}

type Member struct {
	Key   store.ChildKey[uint32]
	Email string
}

func (*Member) StoreName() string                   { return "members" }
func (m *Member) GetKey() store.ChildKey[uint32]    { return m.Key }
func (m *Member) SetKey(key store.ChildKey[uint32]) { m.Key = key }

// Draft is never registered.
type Draft struct {
	ID   uint32
	Body string
}

func (*Draft) StoreName() string  { return "drafts" }
func (d *Draft) GetKey() uint32   { return d.ID }
func (d *Draft) SetKey(id uint32) { d.ID = id }

type fixture struct {
	store    *store.Store
	orgs     *store.Collection[Organization, uint32, *Organization]
	settings *store.Collection[Settings, uint32, *Settings]
	billing  *store.Collection[Billing, uint32, *Billing]
	notes    *store.Collection[Note, uint32, *Note]
	studios  *store.Collection[Studio, store.ChildKey[uint32], *Studio]
	titles   *store.Collection[Title, store.ChildKey[store.ChildKey[uint32]], *Title]
	tags     *store.Collection[Tag, string, *Tag]
	teams    *store.Collection[Team, uint32, *Team]
	members  *store.Collection[Member, store.ChildKey[uint32], *Member]
	drafts   *store.Collection[Draft, uint32, *Draft]
}

// newFixture binds and registers every test collection except drafts on a
// fresh in-memory store.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, kv.NewMemory())
}

func newFixtureOn(t *testing.T, backend kv.Backend) *fixture {
	t.Helper()
	s := store.New(backend, store.DefaultConfig())
	t.Cleanup(func() { _ = s.Close() })

	studioKeys := store.Composite(store.Uint32Key)
	f := &fixture{
		store:    s,
		orgs:     store.Bind[Organization](s, store.Uint32Key),
		settings: store.Bind[Settings](s, store.Uint32Key),
		billing:  store.Bind[Billing](s, store.Uint32Key),
		notes:    store.Bind[Note](s, store.Uint32Key),
		studios:  store.Bind[Studio](s, studioKeys),
		titles:   store.Bind[Title](s, store.Composite(studioKeys)),
		tags:     store.Bind[Tag](s, store.StringKey),
		teams:    store.Bind[Team](s, store.Uint32Key),
		members:  store.Bind[Member](s, store.Composite(store.Uint32Key)),
		drafts:   store.Bind[Draft](s, store.Uint32Key),
	}
	f.orgs.Register()
	f.settings.Register()
	f.billing.Register()
	f.notes.Register()
	f.studios.Register()
	f.titles.Register()
	f.tags.Register()
	f.teams.Register()
	f.members.Register()
	return f
}
