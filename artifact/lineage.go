package artifact

// SourceLookup returns the direct sources of an artifact id and whether the
// id is known.
type SourceLookup func(id string) ([]string, bool)

// DefaultMaxLineageNodes bounds lineage traversals.
const DefaultMaxLineageNodes = 10000

// WouldIntroduceCycle reports whether adding candidates as sources of target
// would make target (transitively) its own source. It walks upstream from each
// candidate; reaching target means the new edge closes a cycle.
func WouldIntroduceCycle(target string, candidates []string, sourcesOf SourceLookup) bool {
	visited := make(map[string]bool)
	stack := append([]string(nil), candidates...)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id == target {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true

		sources, ok := sourcesOf(id)
		if !ok {
			continue
		}
		stack = append(stack, sources...)
	}
	return false
}

// LineageNode is one artifact in a rendered provenance tree.
type LineageNode struct {
	ArtifactID       string         `json:"artifact_id"`
	Type             ArtifactType   `json:"type,omitempty"`
	Status           ArtifactStatus `json:"status,omitempty"`
	ProcessingModule string         `json:"processing_module,omitempty"`
	Sources          []*LineageNode `json:"sources"`
	// Seen marks a node already expanded elsewhere in the tree (shared
	// ancestor); its sources are not repeated.
	Seen     bool `json:"seen,omitempty"`
	NotFound bool `json:"not_found,omitempty"`
}

// Lineage is the upstream provenance of an artifact.
type Lineage struct {
	Root *LineageNode `json:"root"`
	// Ancestors is the deduplicated transitive closure of source_artifacts in
	// breadth-first order, nearest sources first.
	Ancestors []string `json:"ancestors"`
	Truncated bool     `json:"truncated,omitempty"`
}

// BuildLineage walks upstream from id. lookup returns the artifact for an id
// (nil if unknown). maxNodes <= 0 uses DefaultMaxLineageNodes.
func BuildLineage(id string, lookup func(string) *Artifact, maxNodes int) *Lineage {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxLineageNodes
	}

	result := &Lineage{Ancestors: []string{}}
	expanded := map[string]bool{}
	inAncestors := map[string]bool{id: true}

	newNode := func(aid string) *LineageNode {
		node := &LineageNode{ArtifactID: aid, Sources: []*LineageNode{}}
		a := lookup(aid)
		if a == nil {
			node.NotFound = true
			return node
		}
		node.Type = a.Type
		node.Status = a.Status
		node.ProcessingModule = a.ProcessingModule
		return node
	}

	result.Root = newNode(id)
	queue := []*LineageNode{result.Root}
	count := 1

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node.NotFound {
			continue
		}
		if expanded[node.ArtifactID] {
			node.Seen = true
			continue
		}
		expanded[node.ArtifactID] = true

		a := lookup(node.ArtifactID)
		for _, src := range a.SourceArtifacts {
			if count >= maxNodes {
				result.Truncated = true
				return result
			}
			child := newNode(src)
			node.Sources = append(node.Sources, child)
			count++
			if !inAncestors[src] {
				inAncestors[src] = true
				result.Ancestors = append(result.Ancestors, src)
			}
			queue = append(queue, child)
		}
	}
	return result
}
