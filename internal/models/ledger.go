package models

import "time"

// LedgerSchemaVersion is the current persisted ledger schema
const LedgerSchemaVersion = 1

// InstallAction is the action recorded by an install event
type InstallAction string

const (
	ActionInstallOrUpgrade InstallAction = "install_or_upgrade"
	ActionUninstall        InstallAction = "uninstall"
)

// InstallEvent records one install or uninstall. Events are never mutated once written.
type InstallEvent struct {
	ToolKey    string        `json:"toolKey"`
	Namespace  string        `json:"namespace"`
	Chart      *string       `json:"chart"` // nil for uninstall
	Release    string        `json:"release"`
	LastAction InstallAction `json:"lastAction"`
	Timestamp  time.Time     `json:"timestamp"`
}

// InstallLedger is the append-only journal of actions taken against a cluster
type InstallLedger struct {
	Version   int            `json:"version"`
	UpdatedAt string         `json:"updatedAt"`
	Installs  []InstallEvent `json:"installs"`
}

// NewInstallLedger returns an empty ledger at the current schema version
func NewInstallLedger() *InstallLedger {
	return &InstallLedger{
		Version:  LedgerSchemaVersion,
		Installs: []InstallEvent{},
	}
}
