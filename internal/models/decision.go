package models

// Decision is the outcome of choosing one tool for a goal
type Decision struct {
	ChartKey   string  `json:"chartKey"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Engine     string  `json:"engine,omitempty"`
}

// Plan is a decision together with the inputs that produced it
type Plan struct {
	Goal     string         `json:"goal"`
	Category string         `json:"category"`
	Summary  ClusterSummary `json:"summary"`
	Profile  string         `json:"profile,omitempty"`
	Decision Decision       `json:"decision"`
	Tool     ToolDescriptor `json:"tool"`
}

// InstallResult describes what an install did, or would do under dry-run
type InstallResult struct {
	OperationID string         `json:"operationId"`
	Tool        ToolDescriptor `json:"tool"`
	Category    string         `json:"category"`
	Plan        *Plan          `json:"plan,omitempty"`
	Namespace   string         `json:"namespace"`
	Release     string         `json:"release"`
	Commands    [][]string     `json:"commands"`
	DryRun      bool           `json:"dryRun"`
	Event       *InstallEvent  `json:"event,omitempty"`
}

// ToolStatus is the known state of one tool
type ToolStatus struct {
	Tool          ToolDescriptor `json:"tool"`
	Category      string         `json:"category"`
	Installed     bool           `json:"installed"`
	LastEvent     *InstallEvent  `json:"lastEvent,omitempty"`
	ReleaseStatus string         `json:"releaseStatus,omitempty"`
	StatusError   string         `json:"statusError,omitempty"`
}
