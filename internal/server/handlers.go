package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/topofeat/pkg/buildinfo"
	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/distance"
	"github.com/matzehuels/topofeat/pkg/errors"
	"github.com/matzehuels/topofeat/pkg/landscape"
	"github.com/matzehuels/topofeat/pkg/pipeline"
)

// LandscapesRequest is the body of POST /v1/landscapes. Grid and NLayers
// default to the standard grid and five layers when omitted.
type LandscapesRequest struct {
	Dimension int               `json:"dimension"`
	Diagrams  []diagram.Diagram `json:"diagrams"`
	Grid      *landscape.Grid   `json:"grid,omitempty"`
	NLayers   *int              `json:"n_layers,omitempty"`
}

// LandscapesResponse is the body returned by POST /v1/landscapes.
type LandscapesResponse struct {
	RunID    string      `json:"run_id"`
	Rows     int         `json:"rows"`
	Cols     int         `json:"cols"`
	Features [][]float64 `json:"features"`
}

// MetricSpec selects the landscape distance parameters.
type MetricSpec struct {
	P       *float64        `json:"p,omitempty"`
	Grid    *landscape.Grid `json:"grid,omitempty"`
	NLayers *int            `json:"n_layers,omitempty"`
}

// DistancesRequest is the body of POST /v1/distances.
type DistancesRequest struct {
	Dimension  int               `json:"dimension"`
	Diagrams   []diagram.Diagram `json:"diagrams"`
	Metric     MetricSpec        `json:"metric"`
	BestEffort bool              `json:"best_effort"`
}

// PairFailure reports one pair that could not be evaluated.
type PairFailure struct {
	I     int    `json:"i"`
	J     int    `json:"j"`
	Error string `json:"error"`
}

// DistancesResponse is the body returned by POST /v1/distances. Cells of
// failed pairs are null.
type DistancesResponse struct {
	RunID     string        `json:"run_id"`
	N         int           `json:"n"`
	Distances [][]*float64  `json:"distances"`
	Failures  []PairFailure `json:"failures"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

func (s *Server) handleLandscapes(w http.ResponseWriter, r *http.Request) {
	var req LandscapesRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := errors.ValidateDimension(req.Dimension); err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := s.options(req.Grid, req.NLayers)
	coll := diagram.Collection{Dimension: req.Dimension, Diagrams: req.Diagrams}
	features, err := s.runner.ComputeFeatures(r.Context(), coll, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rows, cols := features.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(nil, i, features)
	}
	writeJSON(w, http.StatusOK, LandscapesResponse{
		RunID:    uuid.NewString(),
		Rows:     rows,
		Cols:     cols,
		Features: out,
	})
}

func (s *Server) handleDistances(w http.ResponseWriter, r *http.Request) {
	var req DistancesRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := errors.ValidateDimension(req.Dimension); err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := s.options(req.Metric.Grid, req.Metric.NLayers)
	p := 2.0
	if req.Metric.P != nil {
		p = *req.Metric.P
	}
	metric, err := distance.NewLandscapeMetric(opts.Grid, opts.Layers, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts.Metric = metric
	if req.BestEffort {
		opts.Policy = distance.BestEffort
	}

	coll := diagram.Collection{Dimension: req.Dimension, Diagrams: req.Diagrams}
	m, err := s.runner.ComputeDistances(r.Context(), coll, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := DistancesResponse{
		RunID:     uuid.NewString(),
		N:         m.Size(),
		Distances: nullable(m.Rows()),
		Failures:  make([]PairFailure, 0, len(m.Failures)),
	}
	for _, f := range m.Failures {
		resp.Failures = append(resp.Failures, PairFailure{I: f.I, J: f.J, Error: errors.UserMessage(f.Err)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// options builds per-request pipeline options, filling grid defaults.
func (s *Server) options(g *landscape.Grid, layers *int) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Workers = s.workers
	opts.MaxWidth = s.maxWidth
	opts.Logger = s.logger
	if g != nil {
		opts.Grid = *g
	}
	if layers != nil {
		opts.Layers = *layers
	}
	return opts
}

// nullable converts NaN cells to nil so they encode as JSON null.
func nullable(rows [][]float64) [][]*float64 {
	out := make([][]*float64, len(rows))
	for i, row := range rows {
		out[i] = make([]*float64, len(row))
		for j := range row {
			if !distance.IsMissing(row[j]) {
				out[i][j] = &row[j]
			}
		}
	}
	return out
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "id", RequestID(r.Context()), "err", err)
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: errors.UserMessage(err)})
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput,
		errors.ErrCodeInvalidDiagram,
		errors.ErrCodeInvalidGrid,
		errors.ErrCodeInvalidDimension,
		errors.ErrCodeDimensionMismatch,
		errors.ErrCodeInvalidFormat,
		errors.ErrCodeUnsupportedMetric:
		return http.StatusBadRequest
	case errors.ErrCodeDistanceEvaluation:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
