// Package study reads declarative search definitions from YAML or JSON and
// turns them into a ready to run optimization.Driver.
package study

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/optimization"
)

// DimensionSpec declares one dimension. Type is real, integer or
// categorical.
type DimensionSpec struct {
	Name       string        `yaml:"name" json:"name"`
	Type       string        `yaml:"type" json:"type"`
	Low        *float64      `yaml:"low,omitempty" json:"low,omitempty"`
	High       *float64      `yaml:"high,omitempty" json:"high,omitempty"`
	Step       *float64      `yaml:"step,omitempty" json:"step,omitempty"`
	NumSamples *int          `yaml:"num_samples,omitempty" json:"num_samples,omitempty"`
	Grid       []float64     `yaml:"grid,omitempty" json:"grid,omitempty"`
	Categories []interface{} `yaml:"categories,omitempty" json:"categories,omitempty"`
}

// Spec is a complete study.
type Spec struct {
	Name          string                   `yaml:"name" json:"name"`
	Algorithm     string                   `yaml:"algorithm" json:"algorithm"`
	Iterations    int                      `yaml:"iterations" json:"iterations"`
	InitialPoints int                      `yaml:"initial_points,omitempty" json:"initial_points,omitempty"`
	Seed          int64                    `yaml:"seed,omitempty" json:"seed,omitempty"`
	Workers       int                      `yaml:"workers,omitempty" json:"workers,omitempty"`
	EvalOnBest    bool                     `yaml:"eval_on_best,omitempty" json:"eval_on_best,omitempty"`
	Acquisition   string                   `yaml:"acquisition,omitempty" json:"acquisition,omitempty"`
	Kernel        string                   `yaml:"kernel,omitempty" json:"kernel,omitempty"`
	Xi            float64                  `yaml:"xi,omitempty" json:"xi,omitempty"`
	Kappa         float64                  `yaml:"kappa,omitempty" json:"kappa,omitempty"`
	X0            []map[string]interface{} `yaml:"x0,omitempty" json:"x0,omitempty"`
	Objective     string                   `yaml:"objective" json:"objective"`
	Dimensions    []DimensionSpec          `yaml:"dimensions" json:"dimensions"`
}

// Load reads a study file. The format follows the extension; anything other
// than .json is read as YAML.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindConfiguration, "read study %s", path).WithOperation("Load")
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return Parse(data, format)
}

// Parse decodes a study. An empty format sniffs JSON by a leading brace.
func Parse(data []byte, format string) (*Spec, error) {
	const op = "Parse"

	format = strings.ToLower(format)
	if format == "" {
		format = "yaml"
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			format = "json"
		}
	}

	var spec Spec
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, &spec)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &spec)
	default:
		return nil, errors.Newf(errors.KindConfiguration, "unknown study format %q", format).WithOperation(op)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfiguration, "decode study").WithOperation(op)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the fields that do not need the space to be built.
func (s *Spec) Validate() error {
	const op = "Validate"

	s.Algorithm = strings.ToLower(strings.TrimSpace(s.Algorithm))
	if s.Algorithm == "" {
		return errors.New(errors.KindConfiguration, "algorithm is required").WithOperation(op)
	}
	if s.Objective == "" {
		return errors.New(errors.KindConfiguration, "objective is required").WithOperation(op)
	}
	if _, ok := builtins[s.Objective]; !ok {
		return errors.Newf(errors.KindConfiguration, "unknown objective %q, available: %s", s.Objective, strings.Join(Objectives(), ", ")).
			WithOperation(op)
	}
	if len(s.Dimensions) == 0 {
		return errors.New(errors.KindConfiguration, "at least one dimension is required").WithOperation(op)
	}
	return nil
}

// Space builds the parameter space.
func (s *Spec) Space() (*optimization.Space, error) {
	dims := make([]optimization.Dimension, 0, len(s.Dimensions))
	for _, ds := range s.Dimensions {
		d, err := ds.build()
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return optimization.NewSpace(dims...)
}

func (ds DimensionSpec) build() (optimization.Dimension, error) {
	switch strings.ToLower(ds.Type) {
	case "categorical":
		return optimization.NewCategorical(ds.Name, ds.Categories...)
	case "real", "integer":
	default:
		return nil, errors.Newf(errors.KindConfiguration, "unknown dimension type %q", ds.Type).
			WithOperation("Space").WithDimension(ds.Name)
	}

	var opts []optimization.NumericOption
	switch {
	case ds.Low != nil && ds.High != nil:
		opts = append(opts, optimization.Range(*ds.Low, *ds.High))
	case ds.Low != nil || ds.High != nil:
		return nil, errors.New(errors.KindConfiguration, "low and high must be given together").
			WithOperation("Space").WithDimension(ds.Name)
	}
	if ds.NumSamples != nil {
		opts = append(opts, optimization.NumSamples(*ds.NumSamples))
	}
	if ds.Step != nil {
		opts = append(opts, optimization.Step(*ds.Step))
	}
	if len(ds.Grid) > 0 {
		opts = append(opts, optimization.Grid(ds.Grid...))
	}

	if strings.ToLower(ds.Type) == "integer" {
		return optimization.NewInteger(ds.Name, opts...)
	}
	return optimization.NewReal(ds.Name, opts...)
}

// DriverConfig maps the search options onto base, which carries the sink,
// observer and logger.
func (s *Spec) DriverConfig(base optimization.DriverConfig) optimization.DriverConfig {
	cfg := base
	cfg.NumIterations = s.Iterations
	cfg.NumInitialPoints = s.InitialPoints
	if s.Seed != 0 {
		cfg.Seed = s.Seed
	}
	if s.Workers > 0 {
		cfg.Workers = s.Workers
	}
	cfg.EvalOnBest = s.EvalOnBest
	cfg.Acquisition = s.Acquisition
	cfg.Kernel = s.Kernel
	cfg.Xi = s.Xi
	cfg.Kappa = s.Kappa
	cfg.X0 = make([]optimization.Params, 0, len(s.X0))
	for _, p := range s.X0 {
		cfg.X0 = append(cfg.X0, optimization.Params(p))
	}
	return cfg
}

// Build assembles the driver.
func (s *Spec) Build(base optimization.DriverConfig) (*optimization.Driver, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	space, err := s.Space()
	if err != nil {
		return nil, err
	}
	objective, err := s.objective(space)
	if err != nil {
		return nil, err
	}
	return optimization.NewDriver(s.Algorithm, space, objective, s.DriverConfig(base))
}
