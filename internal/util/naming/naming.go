package naming

import "fmt"

// Fixed file names inside a cluster's artifact directory.
const (
	SecretsFile     = "secrets.yaml"
	TalosconfigFile = "talosconfig"
	KubeconfigFile  = "kubeconfig"
)

// Node returns the VM name for a cluster node, e.g. "demo-controlplane-100".
func Node(cluster, role string, vmid int) string {
	return fmt.Sprintf("%s-%s-%d", cluster, role, vmid)
}

// ClusterMapFile returns the file name of the persisted cluster map.
func ClusterMapFile(cluster string) string {
	return fmt.Sprintf("%s-cluster-map.json", cluster)
}

// ControlPlaneConfigFile returns the machine config file name for a control plane node.
func ControlPlaneConfigFile(ip string) string {
	return fmt.Sprintf("controlplane-%s.yaml", ip)
}

// WorkerConfigFile returns the machine config file name for a worker node.
func WorkerConfigFile(ip string) string {
	return fmt.Sprintf("worker-%s.yaml", ip)
}
