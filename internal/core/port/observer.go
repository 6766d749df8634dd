package port

// AuthObserver records authentication outcomes for monitoring.
type AuthObserver interface {
	ObserveLogin(outcome string)
	ObserveRefresh(outcome string)
	ObserveLockout(minutes int)
}
