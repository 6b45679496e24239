package relstate

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache and services call them on hot paths.
type Hooks interface {
	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (admission/eviction pressure).
	ProviderSetRejected(storageKey string)

	// A producer failed; nothing was cached.
	FetchFailed(key string, err error)

	// A caller joined an in-flight fetch instead of starting its own.
	FetchShared(key string)

	// A remote mutation failed or was refused.
	MutationFailed(key string, err error)

	// The optimistic value was replaced by the previous one.
	RollbackApplied(key string)

	// A rollback was dropped because a newer write owns the key.
	RollbackSkipped(key string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)      {}
func (NopHooks) ProviderSetRejected(string)   {}
func (NopHooks) FetchFailed(string, error)    {}
func (NopHooks) FetchShared(string)           {}
func (NopHooks) MutationFailed(string, error) {}
func (NopHooks) RollbackApplied(string)       {}
func (NopHooks) RollbackSkipped(string)       {}

// MultiHooks fans every event out to each of its members in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) SelfHeal(k, r string) {
	for _, h := range m {
		h.SelfHeal(k, r)
	}
}

func (m MultiHooks) ProviderSetRejected(k string) {
	for _, h := range m {
		h.ProviderSetRejected(k)
	}
}

func (m MultiHooks) FetchFailed(k string, err error) {
	for _, h := range m {
		h.FetchFailed(k, err)
	}
}

func (m MultiHooks) FetchShared(k string) {
	for _, h := range m {
		h.FetchShared(k)
	}
}

func (m MultiHooks) MutationFailed(k string, err error) {
	for _, h := range m {
		h.MutationFailed(k, err)
	}
}

func (m MultiHooks) RollbackApplied(k string) {
	for _, h := range m {
		h.RollbackApplied(k)
	}
}

func (m MultiHooks) RollbackSkipped(k string) {
	for _, h := range m {
		h.RollbackSkipped(k)
	}
}
