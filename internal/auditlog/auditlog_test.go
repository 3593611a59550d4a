package auditlog

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestNewMemoryLog_genesis(t *testing.T) {
	l := NewMemoryLog()

	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r, err := l.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ActionGenesis, r.Action)
	assert.Equal(t, GenesisHash, r.Hash)
}

func TestAppend_chains(t *testing.T) {
	l := NewMemoryLog()

	r1, err := l.Append(ctx, Subject("ad", 12), ActionFlagCreated, SystemActor, map[string]any{"reasons": []string{"scam_keywords"}})
	require.NoError(t, err)
	r2, err := l.Append(ctx, Subject("ad", 12), ActionFlagReviewed, "7", map[string]string{"disposition": "rejected"})
	require.NoError(t, err)

	assert.Equal(t, "ad:12", r1.Subject)
	assert.Equal(t, r1.Hash, r2.PrevHash)
	assert.Equal(t, 2, r2.Index)

	root, err := l.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, r2.Hash, root)
	assert.NoError(t, l.Verify(ctx))
}

func TestAppend_unmarshalablePayload(t *testing.T) {
	l := NewMemoryLog()
	_, err := l.Append(ctx, "ad:1", ActionFlagCreated, SystemActor, make(chan int))
	assert.Error(t, err)

	n, _ := l.Len(ctx)
	assert.Equal(t, 1, n)
}

func TestVerify_detectsTampering(t *testing.T) {
	l := NewMemoryLog()
	_, _ = l.Append(ctx, "ad:1", ActionFlagCreated, SystemActor, nil)
	_, _ = l.Append(ctx, "ad:1", ActionFlagReviewed, "3", nil)

	l.records[1].Actor = "someone-else"
	assert.ErrorContains(t, l.Verify(ctx), "invalid hash")

	l = NewMemoryLog()
	_, _ = l.Append(ctx, "ad:1", ActionFlagCreated, SystemActor, nil)
	_, _ = l.Append(ctx, "ad:1", ActionFlagReviewed, "3", nil)
	l.records[2].PrevHash = GenesisHash
	assert.ErrorContains(t, l.Verify(ctx), "chain broken")
}

func TestHistory_bySubject(t *testing.T) {
	l := NewMemoryLog()
	_, _ = l.Append(ctx, "ad:11", ActionFlagCreated, SystemActor, nil)
	_, _ = l.Append(ctx, "ad:12", ActionFlagCreated, SystemActor, nil)
	_, _ = l.Append(ctx, "ad:11", ActionFlagMerged, SystemActor, nil)
	_, _ = l.Append(ctx, "report:11", ActionReportFiled, "7", nil)
	_, _ = l.Append(ctx, "ad:11", ActionFlagReviewed, "100", nil)

	trail, err := l.History(ctx, "ad:11")
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, []string{ActionFlagCreated, ActionFlagMerged, ActionFlagReviewed},
		[]string{trail[0].Action, trail[1].Action, trail[2].Action})
	assert.Equal(t, "100", trail[2].Actor)

	trail, err = l.History(ctx, "user:11")
	require.NoError(t, err)
	assert.Empty(t, trail)

	trail, err = l.History(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, trail, "genesis has no subject trail")
}

func TestList_newestFirst(t *testing.T) {
	l := NewMemoryLog()
	for i := int64(1); i <= 5; i++ {
		_, err := l.Append(ctx, Subject("message", i), ActionFlagCreated, SystemActor, nil)
		require.NoError(t, err)
	}

	page, err := l.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 5, page[0].Index)
	assert.Equal(t, 4, page[1].Index)

	page, err = l.List(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 1, page[0].Index)
	assert.Equal(t, ActionGenesis, page[1].Action)

	page, err = l.List(ctx, 50, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestAppend_concurrent(t *testing.T) {
	l := NewMemoryLog()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			_, _ = l.Append(ctx, Subject("user", i), ActionReportFiled, SystemActor, i)
		}(int64(i))
	}
	wg.Wait()

	n, _ := l.Len(ctx)
	assert.Equal(t, 33, n)
	assert.NoError(t, l.Verify(ctx))
}
