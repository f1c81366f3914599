package cluster

// NodeInfo describes one slot range's owning primary and its replicas,
// as reported by a CLUSTER SLOTS reply.
type NodeInfo struct {
	StartSlot int
	EndSlot   int
	Primary   string
	Replicas  []string
}

// BuildSlotMap folds CLUSTER SLOTS rows into a SlotMap.
func BuildSlotMap(nodes []NodeInfo) *SlotMap {
	m := NewSlotMap()
	for _, n := range nodes {
		m.Set(n.StartSlot, n.EndSlot, n.Primary, n.Replicas)
	}
	return m
}
