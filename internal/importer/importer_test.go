package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverscope/internal/forest"
)

func buildForest(t *testing.T) *forest.Forest {
	t.Helper()
	b := forest.NewBuilder()
	b.Insert("app.war", "com.app.web.Handler.get()V", 30)
	b.Insert("app.war", "com.app.web.Handler.post()V", 20)
	b.InsertLeaf("JSPs", "index.jsp", 100)
	f, err := b.Finish()
	require.NoError(t, err)
	return f
}

func TestFlattenParentsBeforeChildren(t *testing.T) {
	f := buildForest(t)
	rows := Flatten(f)
	require.NotEmpty(t, rows)

	byID := make(map[int]FlatNode, len(rows))
	for i, row := range rows {
		if row.ParentID == -1 {
			byID[row.ID] = row
			continue
		}
		parent, ok := byID[row.ParentID]
		require.True(t, ok, "row %d references parent %d before it was emitted", i, row.ParentID)
		assert.NotEqual(t, forest.KindMethod, parent.Kind)
		byID[row.ID] = row
	}

	roots := 0
	for _, row := range rows {
		if row.ParentID == -1 {
			roots++
			assert.Equal(t, forest.KindGroup, row.Kind)
		}
	}
	assert.Equal(t, len(f.Roots), roots)
}

func TestFlattenNilForest(t *testing.T) {
	assert.Nil(t, Flatten(nil))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	f := buildForest(t)

	require.NoError(t, s.ImportTree(ctx, "p1", f))
	require.NoError(t, s.MapMethodSignatures(ctx, "p1", map[string]int{"com.app.web.Handler.get()V": 3}))
	require.NoError(t, s.MapTemplatePaths(ctx, "p1", map[string]int{"index.jsp": 9}))

	assert.Len(t, s.Nodes("p1"), len(Flatten(f)))
	assert.Equal(t, 3, s.MethodSignatures("p1")["com.app.web.Handler.get()V"])
	assert.Equal(t, 9, s.TemplatePaths("p1")["index.jsp"])
	assert.Empty(t, s.Nodes("other"))
}

func TestImportTreeReplacesPreviousImport(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.ImportTree(ctx, "p1", buildForest(t)))
	first := len(s.Nodes("p1"))

	b := forest.NewBuilder()
	b.Insert("small.jar", "a.B.c()V", 1)
	small, err := b.Finish()
	require.NoError(t, err)
	require.NoError(t, s.ImportTree(ctx, "p1", small))

	assert.NotEqual(t, first, len(s.Nodes("p1")))
	assert.Len(t, s.Nodes("p1"), len(Flatten(small)))
}
