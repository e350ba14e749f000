package services

import "errors"

var (
	// ErrUnknownTool is returned when a key or goal matches nothing in the registry
	ErrUnknownTool = errors.New("unknown tool")
	// ErrNoCandidates is returned when a decision is requested over an empty candidate list
	ErrNoCandidates = errors.New("no candidate tools")
	// ErrRegistryUnavailable is returned when even the packaged registry cannot be read
	ErrRegistryUnavailable = errors.New("tool registry unavailable")
)
