// Package topology builds and tears down disposable network topologies on
// a single Linux host: routers are network namespaces, links are veth
// pairs, and switches are bridges. Nothing here survives the process
// beyond the named namespaces and run directories, which teardown removes.
package topology

import "errors"

// NodeKind partitions nodes for creation ordering: router-kind nodes are
// always fully created before any switch-kind node enslaves their
// host-side interfaces.
type NodeKind int

const (
	// KindRouter marks nodes that own a network namespace.
	KindRouter NodeKind = iota
	// KindSwitch marks nodes that own a host bridge.
	KindSwitch
)

// Node is the lifecycle contract shared by every topology participant.
//
// Create and Remove must be idempotent with respect to the node's own
// created state: Remove on a never-created or already-removed node is a
// no-op, and a node that failed partway through Create must clean up
// whatever it did create when Remove runs.
type Node interface {
	Name() string
	Kind() NodeKind
	Create() error
	Remove() error
}

// Configuration errors. These are reported before any kernel resource is
// touched and are never retried.
var (
	ErrDuplicateNode      = errors.New("topology: node name already exists")
	ErrDuplicateInterface = errors.New("topology: interface name already exists")
)
