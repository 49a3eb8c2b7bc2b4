package epubreplace

// Walk applies plan to every text and tail payload of doc and returns the
// number of substitutions made. Element names, attributes, comments and
// processing instructions are never visited.
func Walk(doc *Document, plan *Plan) int {
	total := 0
	for _, n := range doc.Nodes {
		total += walkNode(n, plan, false)
	}
	return total
}

func walkNode(n *Node, plan *Plan, withTail bool) int {
	count := 0
	if n.Type == ElementNode {
		var c int
		n.Text, c = plan.Apply(n.Text)
		count += c
		for _, child := range n.Children {
			count += walkNode(child, plan, true)
		}
	}
	if withTail {
		var c int
		n.Tail, c = plan.Apply(n.Tail)
		count += c
	}
	return count
}
