package cache

// ScopedKeyer wraps a Keyer with a prefix to isolate namespaces that share
// one backend, for example several deployments using the same Redis.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "topofeat:v1:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// FeaturesKey generates a prefixed feature matrix key.
func (k *ScopedKeyer) FeaturesKey(collectionHash string, opts FeaturesKeyOpts) string {
	return k.prefix + k.inner.FeaturesKey(collectionHash, opts)
}

// DistancesKey generates a prefixed distance matrix key.
func (k *ScopedKeyer) DistancesKey(collectionHash string, opts DistancesKeyOpts) string {
	return k.prefix + k.inner.DistancesKey(collectionHash, opts)
}
