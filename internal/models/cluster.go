package models

// NodeCapability describes what a single cluster node reports about itself
type NodeCapability struct {
	NodeName       string       `json:"nodeName"`
	Arch           string       `json:"arch"`
	OS             string       `json:"os"`
	Kernel         string       `json:"kernel"`
	KubeletVersion string       `json:"kubeletVersion"`
	Capacity       NodeCapacity `json:"capacity"`
}

// NodeCapacity holds raw capacity values as reported by the node.
// CPU may be non-numeric (for example "500m") and must be tolerated by consumers.
type NodeCapacity struct {
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
}

// ClusterSummary is the aggregate view of a cluster used for tool selection.
// It is derived on every invocation and never persisted.
type ClusterSummary struct {
	Nodes    int      `json:"nodes"`
	Arches   []string `json:"arches"`
	OSes     []string `json:"oses"`
	TotalCPU int      `json:"totalCpu"`
}

// ClusterReport is the discovered view of a cluster: its nodes, their summary and the guessed distribution
type ClusterReport struct {
	Summary ClusterSummary   `json:"summary"`
	Profile string           `json:"profile"`
	Nodes   []NodeCapability `json:"nodes"`
}
