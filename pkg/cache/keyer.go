package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/matzehuels/topofeat/pkg/diagram"
)

// Keyer derives cache keys for pipeline results.
type Keyer interface {
	// FeaturesKey returns the key of the feature matrix of a collection.
	FeaturesKey(collectionHash string, opts FeaturesKeyOpts) string

	// DistancesKey returns the key of the distance matrix of a collection.
	DistancesKey(collectionHash string, opts DistancesKeyOpts) string
}

// FeaturesKeyOpts holds the parameters that determine a feature matrix.
type FeaturesKeyOpts struct {
	XMin   float64 `json:"xmin"`
	XMax   float64 `json:"xmax"`
	Nodes  int     `json:"n_nodes"`
	Layers int     `json:"n_layers"`
}

// DistancesKeyOpts holds the parameters that determine a distance matrix.
type DistancesKeyOpts struct {
	// Metric is the identity of the metric (distance.Identifier).
	Metric string `json:"metric"`
}

// DefaultKeyer produces "features:<sha256>" and "distances:<sha256>" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// FeaturesKey implements Keyer.
func (DefaultKeyer) FeaturesKey(collectionHash string, opts FeaturesKeyOpts) string {
	return hashKey("features", collectionHash, opts)
}

// DistancesKey implements Keyer.
func (DefaultKeyer) DistancesKey(collectionHash string, opts DistancesKeyOpts) string {
	return hashKey("distances", collectionHash, opts)
}

// CollectionHash returns the content hash of c. Collections with the same
// dimension and the same pairs in the same order hash identically.
func CollectionHash(c diagram.Collection) string {
	data, _ := c.MarshalBinary()
	return Hash(data)
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hashKey returns "<prefix>:" followed by the SHA-256 of the JSON encoding
// of parts.
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	return prefix + ":" + Hash(data)
}
