package appindex

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"srishti/block"
	"srishti/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "appindex.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func appEvent(t *testing.T, sender, appID, action, ref, target string) event.Event {
	t.Helper()
	e, err := event.NewAppEvent(1700000000, sender, "", appID, action, ref, target, map[string]string{"k": "v"})
	require.NoError(t, err)
	return e
}

func TestIndexBlockAndQueryByApp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := block.Block{Index: 1, Body: block.Body{Events: []event.Event{
		appEvent(t, "node_a", "attendance", "check-in", "event-42", "node_a"),
		appEvent(t, "node_b", "attendance", "check-in", "event-42", "node_b"),
	}}}
	require.NoError(t, s.IndexBlock(ctx, b))

	records, err := s.QueryByApp(ctx, "attendance", "check-in", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "event-42", records[0].Ref)

	last, ok, err := s.LastIndexedBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), last)
}

func TestIndexBlockIgnoresNonAppEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	joinEvent, err := event.NewNodeJoin(1700000000, "node_a", "node_a", "Alice", "", "pub", "")
	require.NoError(t, err)

	b := block.Block{Index: 1, Body: block.Body{Events: []event.Event{joinEvent}}}
	require.NoError(t, s.IndexBlock(ctx, b))

	records, err := s.QueryByApp(ctx, "attendance", "", 10)
	require.NoError(t, err)
	require.Empty(t, records)

	last, ok, err := s.LastIndexedBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), last)
}

func TestQueryByRefAndTarget(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := block.Block{Index: 2, Body: block.Body{Events: []event.Event{
		appEvent(t, "node_a", "qr", "scan", "badge-1", "booth-7"),
	}}}
	require.NoError(t, s.IndexBlock(ctx, b))

	byRef, err := s.QueryByRef(ctx, "badge-1", 10)
	require.NoError(t, err)
	require.Len(t, byRef, 1)

	byTarget, err := s.QueryByTarget(ctx, "booth-7", 10)
	require.NoError(t, err)
	require.Len(t, byTarget, 1)

	var data map[string]string
	require.NoError(t, json.Unmarshal(byTarget[0].Data, &data))
	require.Equal(t, "v", data["k"])
}

type fakeChain struct {
	blocks []block.Block
}

func (f *fakeChain) Length() uint64        { return uint64(len(f.blocks)) }
func (f *fakeChain) Blocks() []block.Block { return f.blocks }

func TestCatchUpIndexesOnlyNewBlocks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chain := &fakeChain{blocks: []block.Block{
		{Index: 0, Body: block.Body{}},
		{Index: 1, Body: block.Body{Events: []event.Event{appEvent(t, "node_a", "attendance", "check-in", "e1", "node_a")}}},
	}}
	require.NoError(t, s.catchUp(ctx, chain))

	records, err := s.QueryByApp(ctx, "attendance", "", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	chain.blocks = append(chain.blocks, block.Block{
		Index: 2,
		Body:  block.Body{Events: []event.Event{appEvent(t, "node_b", "attendance", "check-in", "e2", "node_b")}},
	})
	require.NoError(t, s.catchUp(ctx, chain))

	records, err = s.QueryByApp(ctx, "attendance", "", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
}
