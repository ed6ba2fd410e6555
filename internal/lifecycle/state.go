package lifecycle

// State is a lifecycle phase.
type State string

const (
	StateInitializing    State = "initializing"
	StateStorageReady    State = "storage_ready"
	StateExtensionsReady State = "extensions_ready"
	StateConnected       State = "connected"
	StateShuttingDown    State = "shutting_down"
	StateStopped         State = "stopped"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

// terminating reports whether s is ShuttingDown or Stopped.
func (s State) terminating() bool {
	return s == StateShuttingDown || s == StateStopped
}
