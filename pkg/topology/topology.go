package topology

import (
	"errors"
	"fmt"

	"github.com/netlab-sim/netlab/pkg/util"
)

// Topology owns an ordered set of nodes and sequences their lifecycle:
// router-kind nodes are created before switch-kind nodes so that every
// host-side veth endpoint exists before a bridge enslaves it.
type Topology struct {
	nodes  []Node
	byName map[string]Node
}

// New returns an empty topology.
func New() *Topology {
	return &Topology{byName: make(map[string]Node)}
}

// AddNode registers a node. Adding a second node with an existing name is
// a configuration error, reported before any resource is created.
func (t *Topology) AddNode(node Node) error {
	if _, exists := t.byName[node.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, node.Name())
	}
	util.WithNode(node.Name()).Debug("Adding node to topology")
	t.byName[node.Name()] = node
	t.nodes = append(t.nodes, node)
	return nil
}

// Node returns the named node, if present.
func (t *Topology) Node(name string) (Node, bool) {
	node, ok := t.byName[name]
	return node, ok
}

// Nodes returns the nodes in insertion order.
func (t *Topology) Nodes() []Node {
	return t.nodes
}

// Run builds the topology: all router-kind nodes in insertion order, then
// all switch-kind nodes. On any failure the nodes created so far are
// unwound in reverse (best effort, removal failures logged) and a wrapped
// error identifying the failing node is returned. A failed Run therefore
// never leaks namespaces, veths, or bridges.
func (t *Topology) Run() error {
	util.Info("Building topology")

	// The failing node goes onto the stack before its Create runs: a
	// partially created node cleans up after itself because Remove on
	// never-created resources is a no-op.
	var created []Node
	for _, kind := range []NodeKind{KindRouter, KindSwitch} {
		for _, node := range t.nodes {
			if node.Kind() != kind {
				continue
			}
			created = append(created, node)
			if err := node.Create(); err != nil {
				util.WithNode(node.Name()).Errorf("Node creation failed: %v", err)
				rollback(created)
				return fmt.Errorf("topology: create node %q: %w", node.Name(), err)
			}
		}
	}
	return nil
}

// rollback unwinds the creation stack in reverse. Failures are logged,
// not raised: one stubborn resource must not stop the rest of the
// cleanup.
func rollback(created []Node) {
	util.Warn("Rolling back partially built topology")
	for idx := len(created) - 1; idx >= 0; idx-- {
		node := created[idx]
		if err := node.Remove(); err != nil {
			util.WithNode(node.Name()).Warnf("Rollback removal failed: %v", err)
		}
	}
}

// Destroy tears the topology down: router-kind nodes in insertion order,
// then switch-kind nodes. Individual removal failures are logged and
// collected but never stop the remaining cleanup.
func (t *Topology) Destroy() error {
	util.Info("Destroying topology")

	var errs []error
	for _, kind := range []NodeKind{KindRouter, KindSwitch} {
		for _, node := range t.nodes {
			if node.Kind() != kind {
				continue
			}
			if err := node.Remove(); err != nil {
				util.WithNode(node.Name()).Warnf("Node removal failed: %v", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
