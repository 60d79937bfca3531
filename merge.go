// FILE: lixenwraith/config/merge.go
package config

// Merge combines two trees with override precedence. When both are mappings
// the result holds the union of keys (base order, then override-only keys in
// override order) and overlapping keys are merged recursively. In every other
// case override replaces base; sequences and scalars are never merged
// element-wise. A nil side yields the other side. Neither input is modified
// and unchanged subtrees are shared with the inputs.
func Merge(base, override *Node) *Node {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}
	if base.kind != KindMapping || override.kind != KindMapping {
		return override
	}

	merged := &Node{
		kind:     KindMapping,
		keys:     make([]string, 0, len(base.keys)+len(override.keys)),
		children: make(map[string]*Node, len(base.keys)+len(override.keys)),
	}
	for _, key := range base.keys {
		child := base.children[key]
		if over, ok := override.children[key]; ok {
			child = Merge(child, over)
		}
		merged.put(key, child)
	}
	for _, key := range override.keys {
		if _, ok := base.children[key]; !ok {
			merged.put(key, override.children[key])
		}
	}
	return merged
}

// MergeAll folds trees from left to right; later trees take precedence.
func MergeAll(trees ...*Node) *Node {
	var result *Node
	for _, tree := range trees {
		result = Merge(result, tree)
	}
	return result
}
