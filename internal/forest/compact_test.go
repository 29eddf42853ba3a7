package forest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample(t *testing.T) (*Forest, map[string]int) {
	t.Helper()
	b := NewBuilder()
	ids := map[string]int{
		"com.example.deep.Only.run()V": b.Insert("app.war", "com.example.deep.Only.run()V", 5).ID,
		"org.Other.main()V":            b.Insert("app.war", "org.Other.main()V", 3).ID,
	}
	f, err := b.Finish()
	require.NoError(t, err)
	return f, ids
}

func TestCompactMergesSingleChildPackageChains(t *testing.T) {
	f, _ := buildSample(t)
	root, ok := f.Group("app.war")
	require.True(t, ok)

	names := make([]string, 0, len(root.Children))
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	// "com" -> "example" -> "deep" each had one child, so the whole chain
	// collapses into the class; "org" collapses into "org.Other".
	assert.ElementsMatch(t, []string{"com.example.deep.Only", "org.Other"}, names)

	merged, ok := root.Child("com.example.deep.Only")
	require.True(t, ok)
	assert.Equal(t, KindClass, merged.Kind)
	assert.Equal(t, int64(5), merged.Size)
}

func TestCompactNeverMergesRootGroups(t *testing.T) {
	b := NewBuilder()
	b.Insert("JARs/inner.jar", "com.x.Y.m()V", 2)
	f, err := b.Finish()
	require.NoError(t, err)

	root, ok := f.Group("JARs/inner.jar")
	require.True(t, ok)
	assert.Equal(t, KindGroup, root.Kind)
}

func TestCompactNeverMergesClassIntoOnlyMethod(t *testing.T) {
	b := NewBuilder()
	leaf := b.Insert("g", "a.B.solo()V", 1)
	f, err := b.Finish()
	require.NoError(t, err)

	merged, ok := f.FindByID(leaf.ID)
	require.True(t, ok)
	assert.Equal(t, "solo()V", merged.Name)
}

func TestCompactIsIdempotent(t *testing.T) {
	f, _ := buildSample(t)
	snapshot := f.Clone()
	Compact(f)
	assertForestEqual(t, snapshot, f)
	Compact(f)
	assertForestEqual(t, snapshot, f)
}

func TestCloneIsDeep(t *testing.T) {
	f, ids := buildSample(t)
	c := f.Clone()
	assertForestEqual(t, f, c)

	for _, id := range ids {
		n, ok := c.FindByID(id)
		require.True(t, ok)
		n.Vulnerable = true
	}
	f.Walk(func(n *Node) {
		assert.False(t, n.Vulnerable, "mutating the clone must not touch the original")
	})
}

func TestCompactPreservesLeafIdentifiers(t *testing.T) {
	f, ids := buildSample(t)
	for key, id := range ids {
		n, ok := f.FindByID(id)
		require.True(t, ok, "leaf for %s must stay resolvable", key)
		assert.True(t, n.IsLeaf())
	}
}

func assertForestEqual(t *testing.T, want, got *Forest) {
	t.Helper()
	require.Equal(t, len(want.Roots), len(got.Roots))
	for i := range want.Roots {
		assertNodeEqual(t, want.Roots[i], got.Roots[i])
	}
}

func assertNodeEqual(t *testing.T, want, got *Node) {
	t.Helper()
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.Kind, got.Kind)
	require.Equal(t, want.Size, got.Size)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, len(want.Children), len(got.Children))
	for i := range want.Children {
		assertNodeEqual(t, want.Children[i], got.Children[i])
	}
}
