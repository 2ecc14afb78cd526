package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/errors"
)

// Exec is a PersistenceEngine backed by an external command.
type Exec struct {
	Command        Command
	MaxAlphaSquare float64
	Timeout        time.Duration // per point cloud, zero for none
}

// NewExec returns an Exec running cmd with the default filtration bound.
func NewExec(cmd Command) *Exec {
	return &Exec{Command: cmd, MaxAlphaSquare: DefaultMaxAlphaSquare}
}

type engineRequest struct {
	Points         PointCloud `json:"points"`
	MinPersistence float64    `json:"min_persistence"`
	MaxAlphaSquare float64    `json:"max_alpha_square"`
}

// wireInterval decodes [dim, [birth, death]].
type wireInterval struct {
	dim          int
	birth, death number
}

func (w *wireInterval) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("interval must be [dim, [birth, death]]")
	}
	if err := json.Unmarshal(raw[0], &w.dim); err != nil {
		return fmt.Errorf("interval dimension: %w", err)
	}
	var pair []number
	if err := json.Unmarshal(raw[1], &pair); err != nil {
		return fmt.Errorf("interval pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("interval pair must have 2 values, got %d", len(pair))
	}
	w.birth, w.death = pair[0], pair[1]
	return nil
}

// Persistence implements PersistenceEngine.
func (e *Exec) Persistence(ctx context.Context, cloud PointCloud, minPersistence float64) ([]diagram.Interval, error) {
	if e.MaxAlphaSquare <= 0 || math.IsNaN(e.MaxAlphaSquare) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "max_alpha_square must be > 0, got %g", e.MaxAlphaSquare)
	}
	req := engineRequest{Points: cloud, MinPersistence: minPersistence, MaxAlphaSquare: e.MaxAlphaSquare}

	var wire []wireInterval
	if err := e.Command.run(ctx, e.Timeout, req, &wire); err != nil {
		return nil, err
	}

	out := make([]diagram.Interval, len(wire))
	for i, w := range wire {
		death := float64(w.death)
		if math.IsInf(death, 1) {
			death = e.MaxAlphaSquare
		}
		out[i] = diagram.Interval{Dimension: w.dim, Pair: diagram.Pair{Birth: float64(w.birth), Death: death}}
	}
	return out, nil
}

var _ PersistenceEngine = (*Exec)(nil)
