package filter

// octetNode is one level of the four-level IPv4 octet index (spec §4.1).
// Each node holds the rules whose network's octet chain ends exactly at
// this depth, plus children keyed by the next octet value.
type octetNode struct {
	rules    []Rule
	children map[byte]*octetNode
}

func newOctetNode() *octetNode {
	return &octetNode{}
}

func (n *octetNode) child(octet byte) *octetNode {
	if n.children == nil {
		n.children = make(map[byte]*octetNode)
	}
	c, ok := n.children[octet]
	if !ok {
		c = newOctetNode()
		n.children[octet] = c
	}
	return c
}

// v4Depth returns how many leading octets of a rule's network are significant:
// ceil(mask/8), capped at 4. A rule with mask 0 lives at the root (depth 0).
func v4Depth(mask int) int {
	d := (mask + 7) / 8
	if d > 4 {
		d = 4
	}
	return d
}

// insert places r at the node reached by following the first v4Depth(r.Mask)
// octets of its network from root.
func (root *octetNode) insert(r Rule) {
	depth := v4Depth(r.Mask)
	node := root
	for i := 0; i < depth; i++ {
		node = node.child(r.Network[i])
	}
	node.rules = append(node.rules, r)
}

// candidates implements the indexed lookup of spec §4.1: descend following
// ip's octets as far as the tree populates, then return every rule at or
// below the deepest reached node, plus every ancestor node's own rules.
// The result is a superset of the true match set; callers must still apply
// the precise mode-aware check.
func (root *octetNode) candidates(ip []byte) []Rule {
	path := []*octetNode{root}
	node := root
	for i := 0; i < 4 && i < len(ip); i++ {
		if node.children == nil {
			break
		}
		child, ok := node.children[ip[i]]
		if !ok {
			break
		}
		node = child
		path = append(path, node)
	}

	var result []Rule
	for _, n := range path[:len(path)-1] {
		result = append(result, n.rules...)
	}
	result = append(result, path[len(path)-1].collectSubtree()...)
	return result
}

// collectSubtree returns every rule stored at n or any of its descendants.
func (n *octetNode) collectSubtree() []Rule {
	result := append([]Rule(nil), n.rules...)
	for _, c := range n.children {
		result = append(result, c.collectSubtree()...)
	}
	return result
}

// allRules walks the whole tree and returns every rule stored in it.
func (root *octetNode) allRules() []Rule {
	return root.collectSubtree()
}
