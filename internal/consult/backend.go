package consult

import "context"

// Backend abstracts the consultation service. The TUI, the headless runner,
// and the tests all talk to this interface; HTTPBackend reaches the real
// service while ScriptedBackend replays a canned consultation.
type Backend interface {
	// Start submits a new consultation and returns its session.
	Start(ctx context.Context, req Request) (Session, error)

	// Progress fetches the latest snapshot for a session.
	Progress(ctx context.Context, session Session) (Snapshot, error)
}
