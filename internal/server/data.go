package server

import (
	"encoding/json"
	"math"
	"net/http"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/seqtune/internal/dataprep"
	"github.com/copyleftdev/seqtune/internal/errors"
)

type windowsRequest struct {
	Data   [][]float64           `json:"data"`
	Config dataprep.WindowConfig `json:"config"`
}

type windowsResponse struct {
	Examples int           `json:"examples"`
	XShape   [3]int        `json:"x_shape"`
	PrevY    [3]int        `json:"prev_y_shape"`
	YShape   [3]int        `json:"y_shape"`
	X        [][][]float64 `json:"x"`
	PrevYArr [][][]float64 `json:"prev_y"`
	Y        [][][]float64 `json:"y"`
}

// imputeRequest carries a table where null marks a missing cell.
type imputeRequest struct {
	Data    [][]*float64           `json:"data"`
	Method  dataprep.ImputeMethod  `json:"method"`
	Options dataprep.ImputeOptions `json:"options"`
}

type imputeResponse struct {
	Data [][]*float64 `json:"data"`
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New(errors.KindInsufficientData, "data must have at least one row and column")
	}
	cols := len(rows[0])
	m := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.Newf(errors.KindConfiguration, "row %d has %d columns, want %d", i, len(row), cols)
		}
		m.SetRow(i, row)
	}
	return m, nil
}

func buildWindows(req windowsRequest) (*windowsResponse, error) {
	data, err := denseFromRows(req.Data)
	if err != nil {
		return nil, err
	}
	w, err := dataprep.MakeWindows(data, req.Config)
	if err != nil {
		return nil, err
	}
	return &windowsResponse{
		Examples: w.Len(),
		XShape:   w.X.Shape(),
		PrevY:    w.PrevY.Shape(),
		YShape:   w.Y.Shape(),
		X:        w.X.Nested(),
		PrevYArr: w.PrevY.Nested(),
		Y:        w.Y.Nested(),
	}, nil
}

func impute(req imputeRequest) (*imputeResponse, error) {
	rows := make([][]float64, len(req.Data))
	for i, row := range req.Data {
		rows[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				rows[i][j] = math.NaN()
			} else {
				rows[i][j] = *v
			}
		}
	}
	data, err := denseFromRows(rows)
	if err != nil {
		return nil, err
	}
	filled, err := dataprep.Impute(data, req.Method, req.Options)
	if err != nil {
		return nil, err
	}

	r, c := filled.Dims()
	out := make([][]*float64, r)
	for i := range out {
		out[i] = make([]*float64, c)
		for j := range out[i] {
			if v := filled.At(i, j); !math.IsNaN(v) {
				out[i][j] = &v
			}
		}
	}
	return &imputeResponse{Data: out}, nil
}

// handleWindows handles POST /api/v1/windows.
func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	var req windowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteJSON(w, errors.Wrap(err, errors.KindConfiguration, "invalid request body"))
		return
	}
	resp, err := buildWindows(req)
	if err != nil {
		errors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleImpute handles POST /api/v1/impute.
func (s *Server) handleImpute(w http.ResponseWriter, r *http.Request) {
	var req imputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteJSON(w, errors.Wrap(err, errors.KindConfiguration, "invalid request body"))
		return
	}
	resp, err := impute(req)
	if err != nil {
		errors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
