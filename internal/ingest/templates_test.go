package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverscope/internal/forest"
)

func TestTemplateAdapterRelativizesAgainstMarkerRoot(t *testing.T) {
	a := NewTemplateAdapter()
	a.ObserveMarker("app/WEB-INF")
	a.ObserveMarker("app/sub/WEB-INF")
	a.ObserveMarker("app/sub/WEB-INF") // duplicates are collapsed

	assert.Equal(t, "x.jsp", a.relative("app/sub/x.jsp"), "longest matching root wins")
	assert.Equal(t, "y.jsp", a.relative("app/y.jsp"))
	assert.Equal(t, "other/z.jsp", a.relative("other/z.jsp"), "no matching root leaves the path alone")
}

func TestTemplateAdapterTopLevelMarker(t *testing.T) {
	a := NewTemplateAdapter()
	a.ObserveMarker("WEB-INF")

	assert.Equal(t, "index.jsp", a.relative("index.jsp"))
	assert.Equal(t, "pages/detail.jsp", a.relative("pages/detail.jsp"))
}

func TestTemplateAdapterBuild(t *testing.T) {
	a := NewTemplateAdapter()
	a.ObserveMarker("app/WEB-INF")
	a.Add("app/index.jsp", 120)
	a.Add("app/pages/detail.jsp", 300)

	b := forest.NewBuilder()
	b.Insert("app.war", "com.app.Main.main()V", 10)
	ci := forest.NewCorrelationIndex()
	a.Build(b, ci)

	f, err := b.Finish()
	require.NoError(t, err)

	root, ok := f.Group(TemplateGroup)
	require.True(t, ok)
	assert.Len(t, root.Children, 2)
	assert.Equal(t, int64(420), root.Size)

	require.Contains(t, ci.Templates, "index.jsp")
	require.Contains(t, ci.Templates, "pages/detail.jsp")
	n, ok := f.FindByID(ci.Templates["pages/detail.jsp"])
	require.True(t, ok)
	assert.Equal(t, "pages/detail.jsp", n.Name)
	assert.Equal(t, int64(300), n.Size)
	assert.True(t, n.Traced)
}
