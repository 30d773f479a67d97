package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraph(t *testing.T) {
	tests := []struct {
		name    string
		edges   []Edge
		order   []string
		wantErr string
	}{
		{
			name:  "three levels",
			edges: testEdges,
			order: []string{"comments", "tasks", "projects"},
		},
		{
			name: "duplicates collapse",
			edges: []Edge{
				OrgEdge("projects"), OrgEdge("projects"),
			},
			order: []string{"projects"},
		},
		{
			name: "depth is the longest chain",
			edges: []Edge{
				OrgEdge("a"),
				{Table: "b", ForeignKey: "aId", Parent: "a"},
				{Table: "c", ForeignKey: "bId", Parent: "b"},
				{Table: "c", ForeignKey: "aId", Parent: "a"},
				OrgEdge("c"),
			},
			order: []string{"c", "b", "a"},
		},
		{
			name:    "unknown parent",
			edges:   []Edge{{Table: "tasks", ForeignKey: "projectId", Parent: "projects"}},
			wantErr: `unknown table "projects"`,
		},
		{
			name: "cycle",
			edges: []Edge{
				{Table: "a", ForeignKey: "bId", Parent: "b"},
				{Table: "b", ForeignKey: "aId", Parent: "a"},
			},
			wantErr: "cycle",
		},
		{
			name:    "self reference",
			edges:   []Edge{OrgEdge("nodes"), {Table: "nodes", ForeignKey: "parentId", Parent: "nodes"}},
			wantErr: "cycle",
		},
		{
			name:    "missing foreign key",
			edges:   []Edge{{Table: "a"}},
			wantErr: "foreign key are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGraph(tt.edges)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.order, g.Tables())
		})
	}
}

func TestGraph_Depth(t *testing.T) {
	g, err := NewGraph(testEdges)
	require.NoError(t, err)

	assert.Equal(t, 0, g.Depth("projects"))
	assert.Equal(t, 1, g.Depth("tasks"))
	assert.Equal(t, 2, g.Depth("comments"))
	assert.Equal(t, [][]string{{"projects"}, {"tasks"}, {"comments"}}, g.levels())
	assert.Len(t, g.Edges(), 5)
}

func TestEdge_String(t *testing.T) {
	assert.Equal(t, "projects.orgId -> organization", OrgEdge("projects").String())
	assert.Equal(t, "tasks.projectId -> projects", Edge{Table: "tasks", ForeignKey: "projectId", Parent: "projects"}.String())
}

func TestChunks(t *testing.T) {
	assert.Nil(t, chunks(nil, 2))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunks([]string{"a", "b", "c"}, 2))
}
