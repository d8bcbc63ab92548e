package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
)

func childNames(n *Node) []string {
	out := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, c.Name)
	}
	return out
}

func TestBuildTree_LinksSubordinates(t *testing.T) {
	set := Normalize(sampleRows()).Positions
	tree, err := BuildTree(set, nil, "")
	require.NoError(t, err)
	require.Equal(t, "CEO", tree.Root.Name)
	require.Equal(t, []string{"Gerente Ventas", "Auxiliar"}, childNames(tree.Root))
	require.Equal(t, []string{"Analista"}, childNames(tree.Root.Children[0]))
	require.Equal(t, 4, tree.Len())
}

func TestBuildTree_OrphansHangFromRoot(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "CEO"},
		position.Position{Name: "Lost", Superior: "Ghost"},
		position.Position{Name: "Self", Superior: "Self"},
	)
	tree, err := BuildTree(set, nil, "")
	require.NoError(t, err)
	require.Equal(t, "CEO", tree.Root.Name)
	require.Equal(t, []string{"Lost", "Self"}, childNames(tree.Root))
}

func TestBuildTree_RejectsLongCycles(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "A", Superior: "B"},
		position.Position{Name: "B", Superior: "A"},
	)
	_, err := BuildTree(set, nil, "")
	var cyclic *CyclicHierarchyError
	require.ErrorAs(t, err, &cyclic)
}

func TestBuildTree_Empty(t *testing.T) {
	tree, err := BuildTree(position.NewSet(), nil, "")
	require.NoError(t, err)
	require.Nil(t, tree.Root)
	require.Zero(t, tree.Len())
	require.Empty(t, tree.Graph().Nodes)
}

func TestTree_SubtreeFallsBackToWholeTree(t *testing.T) {
	tree, err := BuildTree(Normalize(sampleRows()).Positions, nil, "")
	require.NoError(t, err)
	require.Equal(t, "Gerente Ventas", tree.Subtree(" Gerente Ventas ").Root.Name)
	require.Equal(t, 2, tree.Subtree("Gerente Ventas").Len())
	require.Same(t, tree, tree.Subtree("Nobody"))
}

func TestTree_Graph(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "CEO", KPIs: []string{"Revenue"}},
		position.Position{Name: "Gerente", Superior: "CEO", KPIs: []string{"Sales", "Churn"}},
	)
	tree, err := BuildTree(set, nil, "")
	require.NoError(t, err)

	g := tree.Graph()
	require.Equal(t, []GraphNode{
		{ID: "CEO", Content: "CEO", Kind: GraphNodeInput},
		{ID: "CEO__KPIs", Content: "- Revenue", Kind: GraphNodeDefault},
		{ID: "Gerente", Content: "Gerente", Kind: GraphNodeDefault},
		{ID: "Gerente__KPIs", Content: "- Sales\n- Churn", Kind: GraphNodeOutput},
	}, g.Nodes)
	require.Equal(t, []GraphEdge{
		{ID: "CEO=>CEO__KPIs", Source: "CEO", Target: "CEO__KPIs"},
		{ID: "CEO__KPIs=>Gerente", Source: "CEO__KPIs", Target: "Gerente"},
		{ID: "Gerente=>Gerente__KPIs", Source: "Gerente", Target: "Gerente__KPIs"},
	}, g.Edges)
}

func TestBuildTree_PrefersGivenRoot(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "Gerente", Level: "Gerente"},
		position.Position{Name: "CEO", Level: "CEO"},
		position.Position{Name: "Analista", Superior: "Gerente"},
	)
	tree, err := BuildTree(set, nil, "CEO")
	require.NoError(t, err)
	require.Equal(t, "CEO", tree.Root.Name)
	require.Equal(t, []string{"Gerente"}, childNames(tree.Root))

	tree, err = BuildTree(set, nil, "Analista")
	require.NoError(t, err)
	require.Equal(t, "Gerente", tree.Root.Name, "a root with a superior is ignored")
}

func TestBuildTree_SelfReferencingRoot(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "CEO", Superior: "CEO", Level: "CEO"},
		position.Position{Name: "Gerente", Superior: "CEO"},
	)
	tree, err := BuildTree(set, nil, "")
	require.NoError(t, err)
	require.Equal(t, "CEO", tree.Root.Name)
	require.Equal(t, []string{"Gerente"}, childNames(tree.Root))
}

func TestTree_GraphFollowsLedger(t *testing.T) {
	ctx := context.Background()
	set := position.NewSet(
		position.Position{Name: "CEO", KPIs: []string{position.NoKPI}},
		position.Position{Name: "Gerente", Superior: "CEO", KPIs: []string{"Sales"}},
	)
	l := NewLedger(set)
	_, _, err := l.AddKpi(ctx, "Growth", "", "")
	require.NoError(t, err)
	_, _, err = l.AddKpi(ctx, "Sales", "", "")
	require.NoError(t, err)
	_, err = l.Assign("CEO", "Growth", 100)
	require.NoError(t, err)

	tree, err := BuildTree(set, l, "")
	require.NoError(t, err)
	require.Equal(t, []string{"Growth"}, tree.Root.KPIs)
	require.Equal(t, []string{position.NoKPI}, tree.Root.Children[0].KPIs)

	g := tree.Graph()
	require.Equal(t, GraphNode{ID: "CEO__KPIs", Content: "- Growth", Kind: GraphNodeDefault}, g.Nodes[1])
	require.Equal(t, GraphNode{ID: "Gerente__KPIs", Content: "- N/A", Kind: GraphNodeOutput}, g.Nodes[3])
}
