package topology

import "testing"

func TestSnapshotCapturesNodeIdentity(t *testing.T) {
	topo := New()
	router := NewRouter("r1")
	sw := NewSwitch("s1")
	for _, node := range []Node{router, sw} {
		if err := topo.AddNode(node); err != nil {
			t.Fatalf("AddNode(%s): %v", node.Name(), err)
		}
	}

	state := Snapshot(topo, "topology.yaml")

	if state.SpecFile != "topology.yaml" {
		t.Errorf("SpecFile = %q, want topology.yaml", state.SpecFile)
	}
	routerState, ok := state.Routers["r1"]
	if !ok {
		t.Fatal("router r1 missing from snapshot")
	}
	if routerState.Namespace != router.Namespace() || routerState.RunDir != router.RunDir() {
		t.Errorf("router state = %+v, want namespace %q run dir %q",
			routerState, router.Namespace(), router.RunDir())
	}
	switchState, ok := state.Switches["s1"]
	if !ok {
		t.Fatal("switch s1 missing from snapshot")
	}
	if switchState.Bridge != sw.BridgeName() {
		t.Errorf("switch bridge = %q, want %q", switchState.Bridge, sw.BridgeName())
	}
}
