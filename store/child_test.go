package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/antler/store"
)

// Label is a child keyed under a string parent.
type Label struct {
	Key  store.ChildKey[string]
	Text string
}

func (*Label) StoreName() string                   { return "labels" }
func (l *Label) GetKey() store.ChildKey[string]    { return l.Key }
func (l *Label) SetKey(key store.ChildKey[string]) { l.Key = key }

func TestSaveChild_Sequences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	org := &Organization{ID: 3}
	require.NoError(t, f.orgs.Save(ctx, org))

	for i := uint32(0); i < 5; i++ {
		studio := &Studio{Key: store.ChildKey[uint32]{Parent: 77, Seq: 77}}
		key, err := store.SaveChild(ctx, f.orgs, org, f.studios, studio)
		require.NoError(t, err)
		assert.Equal(t, store.ChildKey[uint32]{Parent: 3, Seq: i}, key)
		assert.Equal(t, key, studio.Key)
	}

	studios, err := store.GetChildren(ctx, f.orgs, org, f.studios)
	require.NoError(t, err)
	require.Len(t, studios, 5)
	for i, s := range studios {
		assert.Equal(t, uint32(3), s.Key.Parent)
		assert.Equal(t, uint32(i), s.Key.Seq)
	}
}

func TestSaveChild_SequenceAfterGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := &Organization{ID: 1}

	for i := 0; i < 3; i++ {
		_, err := store.SaveChild(ctx, f.orgs, org, f.studios, &Studio{})
		require.NoError(t, err)
	}
	require.NoError(t, f.studios.Remove(ctx, store.ChildKey[uint32]{Parent: 1, Seq: 1}))

	key, err := store.SaveChild(ctx, f.orgs, org, f.studios, &Studio{})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), key.Seq)
}

func TestSaveChild_ParentsAreIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	labels := store.Bind[Label](f.store, store.Composite(store.StringKey))

	id1 := &Tag{Name: "id1"}
	id10 := &Tag{Name: "id10"}
	for i := 0; i < 2; i++ {
		_, err := store.SaveChild(ctx, f.tags, id10, labels, &Label{Text: "ten"})
		require.NoError(t, err)
	}
	key, err := store.SaveChild(ctx, f.tags, id1, labels, &Label{Text: "one"})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), key.Seq)

	children, err := store.GetChildren(ctx, f.tags, id1, labels)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "one", children[0].Text)

	var seen int
	for l, err := range store.Children(ctx, f.tags, id10, labels) {
		require.NoError(t, err)
		assert.Equal(t, "id10", l.Key.Parent)
		seen++
	}
	assert.Equal(t, 2, seen)
}

func TestAdoptChild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	acme := &Organization{ID: 1}
	globex := &Organization{ID: 2}
	require.NoError(t, f.orgs.Save(ctx, acme))
	require.NoError(t, f.orgs.Save(ctx, globex))

	_, err := store.SaveChild(ctx, f.orgs, globex, f.studios, &Studio{Name: "existing"})
	require.NoError(t, err)

	studio := &Studio{Name: "moving"}
	oldKey, err := store.SaveChild(ctx, f.orgs, acme, f.studios, studio)
	require.NoError(t, err)
	title := &Title{Name: "pilot"}
	_, err = store.SaveChild(ctx, f.studios, studio, f.titles, title)
	require.NoError(t, err)
	tag := &Tag{Name: "drama"}
	require.NoError(t, f.tags.Save(ctx, tag))
	require.NoError(t, store.CreateRelation(ctx, f.titles, title, f.tags, tag, store.BehaviorBreakLink, store.BehaviorBreakLink))

	newKey, err := store.AdoptChild(ctx, f.orgs, globex, f.studios, studio)
	require.NoError(t, err)
	assert.Equal(t, store.ChildKey[uint32]{Parent: 2, Seq: 1}, newKey)
	assert.Equal(t, newKey, studio.Key)

	assert.False(t, exists(t, f.studios, oldKey))
	moved, err := f.studios.Get(ctx, newKey)
	require.NoError(t, err)
	assert.Equal(t, "moving", moved.Name)

	left, err := store.GetChildren(ctx, f.orgs, acme, f.studios)
	require.NoError(t, err)
	assert.Empty(t, left)

	titles, err := store.GetChildren(ctx, f.studios, moved, f.titles)
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, "pilot", titles[0].Name)
	assert.Equal(t, newKey, titles[0].Key.Parent)

	related, err := store.GetRelated(ctx, f.tags, tag, f.titles)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, titles[0].Key, related[0].Key)

	tagged, err := store.GetSingleRelated(ctx, f.titles, titles[0], f.tags)
	require.NoError(t, err)
	assert.Equal(t, "drama", tagged.Name)

	oldTitle := &Title{Key: store.ChildKey[store.ChildKey[uint32]]{Parent: oldKey, Seq: 0}}
	ok, err := store.IsRelatedTo(ctx, f.titles, oldTitle, f.tags, tag)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdoptChild_Missing(t *testing.T) {
	f := newFixture(t)
	_, err := store.AdoptChild(context.Background(), f.orgs, &Organization{ID: 1}, f.studios,
		&Studio{Key: store.ChildKey[uint32]{Parent: 9, Seq: 9}})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
