// Package clustermap defines the persisted record of a deployed cluster.
//
// The cluster map is the only durable artifact a deployment produces. It
// lists every VM the deployment allocated, keyed by node name, and is the
// sole input to teardown. The JSON shape is stable:
//
//	{
//	  "cluster_name": "demo",
//	  "controlplanes": {"demo-controlplane-100": {"vmid": 100, "ip": "10.0.0.5"}},
//	  "workers":       {"demo-worker-101":       {"vmid": 101, "ip": "10.0.0.6"}}
//	}
package clustermap

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Node roles.
const (
	RoleControlPlane = "controlplane"
	RoleWorker       = "worker"
)

// NodeRecord describes one provisioned node. The IP is populated exactly
// once, by address discovery, and never mutated afterward.
type NodeRecord struct {
	Role string
	Name string
	VMID int
	IP   string
}

// Map is the full record of one deployment. Nodes are kept in allocation
// order within each role.
type Map struct {
	ClusterName   string
	ControlPlanes []NodeRecord
	Workers       []NodeRecord
}

// nodeEntry is the on-disk representation of a single node.
type nodeEntry struct {
	VMID int    `json:"vmid"`
	IP   string `json:"ip"`
}

// fileFormat is the on-disk representation of the cluster map.
type fileFormat struct {
	ClusterName   string               `json:"cluster_name"`
	ControlPlanes map[string]nodeEntry `json:"controlplanes"`
	Workers       map[string]nodeEntry `json:"workers"`
}

// MarshalJSON serializes the map into the name-keyed artifact format.
func (m Map) MarshalJSON() ([]byte, error) {
	out := fileFormat{
		ClusterName:   m.ClusterName,
		ControlPlanes: make(map[string]nodeEntry, len(m.ControlPlanes)),
		Workers:       make(map[string]nodeEntry, len(m.Workers)),
	}
	for _, n := range m.ControlPlanes {
		out.ControlPlanes[n.Name] = nodeEntry{VMID: n.VMID, IP: n.IP}
	}
	for _, n := range m.Workers {
		out.Workers[n.Name] = nodeEntry{VMID: n.VMID, IP: n.IP}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the map from the artifact format. Allocation order
// is recovered by VMID, which the host assigns monotonically.
func (m *Map) UnmarshalJSON(data []byte) error {
	var in fileFormat
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.ClusterName = in.ClusterName
	m.ControlPlanes = recordsFromEntries(in.ControlPlanes, RoleControlPlane)
	m.Workers = recordsFromEntries(in.Workers, RoleWorker)
	return nil
}

func recordsFromEntries(entries map[string]nodeEntry, role string) []NodeRecord {
	records := make([]NodeRecord, 0, len(entries))
	for name, e := range entries {
		records = append(records, NodeRecord{Role: role, Name: name, VMID: e.VMID, IP: e.IP})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].VMID < records[j].VMID })
	return records
}

// Nodes returns all node records, control planes first, in allocation order.
func (m *Map) Nodes() []NodeRecord {
	nodes := make([]NodeRecord, 0, len(m.ControlPlanes)+len(m.Workers))
	nodes = append(nodes, m.ControlPlanes...)
	nodes = append(nodes, m.Workers...)
	return nodes
}

// Validate checks the invariants of a finalized cluster map: every node
// record has a name, a VMID, and a discovered address.
func (m *Map) Validate() error {
	if m.ClusterName == "" {
		return fmt.Errorf("cluster map has no cluster name")
	}
	for _, n := range m.Nodes() {
		if n.Name == "" || n.VMID == 0 {
			return fmt.Errorf("cluster map contains an incomplete node record (name=%q vmid=%d)", n.Name, n.VMID)
		}
		if n.IP == "" {
			return fmt.Errorf("node %s has no discovered address", n.Name)
		}
	}
	return nil
}

// Save validates the map and writes it to path as indented JSON.
func (m *Map) Save(path string) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid cluster map: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cluster map: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cluster map to %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a cluster map file.
func Load(path string) (*Map, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster map file: %w", err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse cluster map: %w", err)
	}
	return &m, nil
}
