package lightwave

// Observer receives token lifecycle events, e.g. to render progress in a UI.
// Methods are called synchronously while the Authority holds its lock and must not
// call back into the Authority.
type Observer interface {
	SnapshotLoaded()
	Refreshing(fromSeed bool)
	Refreshed()
	RefreshRejected(fromSeed bool)
	SnapshotSaved()
	SnapshotSaveFailed(err error)
	AccessTokenRejected()
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) SnapshotLoaded()            {}
func (NopObserver) Refreshing(_ bool)          {}
func (NopObserver) Refreshed()                 {}
func (NopObserver) RefreshRejected(_ bool)     {}
func (NopObserver) SnapshotSaved()             {}
func (NopObserver) SnapshotSaveFailed(_ error) {}
func (NopObserver) AccessTokenRejected()       {}
