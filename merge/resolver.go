package merge

// Union-find over offset labels.  Classes are the connected components of
// the qualifying overlap edges; each class's representative is its smallest
// member, which makes global ID assignment reproducible across re-runs.

type unionFind struct {
	parent map[uint64]uint64
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[uint64]uint64)}
}

func (uf *unionFind) find(x uint64) uint64 {
	root, found := uf.parent[x]
	if !found {
		uf.parent[x] = x
		return x
	}
	if root == x {
		return x
	}
	root = uf.find(root)
	uf.parent[x] = root // path compression
	return root
}

// union joins the classes of a and b.  The smaller root wins so the final
// representative of any class is its minimum member regardless of edge order.
func (uf *unionFind) union(a, b uint64) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		uf.parent[rb] = ra
	} else {
		uf.parent[ra] = rb
	}
}

// BuildRepMap partitions offset labels into connected components over the
// given edges and maps every member of a multi-label class to its smallest
// member.  Labels untouched by any edge get no entry: they are singleton
// classes and remain their own global ID.  The result is identical for any
// permutation of the input edges.
func BuildRepMap(edges []labelPair) map[uint64]uint64 {
	uf := newUnionFind()
	for _, edge := range edges {
		uf.union(edge.A, edge.B)
	}

	rep := make(map[uint64]uint64)
	for label := range uf.parent {
		root := uf.find(label)
		if root != label {
			rep[label] = root
		}
	}
	return rep
}
