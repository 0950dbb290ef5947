package optimization

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/constraints"

	"github.com/copyleftdev/seqtune/internal/errors"
)

// Kind identifies the variant of a Dimension.
type Kind string

const (
	KindReal        Kind = "real"
	KindInteger     Kind = "integer"
	KindCategorical Kind = "categorical"
)

// DistributionKind names a sampling distribution used by the TPE backend.
type DistributionKind string

const (
	Uniform    DistributionKind = "uniform"
	IntUniform DistributionKind = "int_uniform"
	Choice     DistributionKind = "choice"
)

// Distribution describes how a dimension is sampled.
type Distribution struct {
	Kind    DistributionKind `json:"kind"`
	Low     float64          `json:"low,omitempty"`
	High    float64          `json:"high,omitempty"`
	Choices []interface{}    `json:"choices,omitempty"`
}

// Dimension is a named axis of a Space. Dimensions are immutable once the
// space holding them is assembled.
type Dimension interface {
	Name() string
	Kind() Kind
	// Grid returns the discrete candidates used by grid and random search.
	Grid() ([]interface{}, error)
	// Bounds returns the encoded [low, high] range used by the Bayesian backend.
	Bounds() [2]float64
	Encode(v interface{}) (float64, error)
	// Decode maps an encoded coordinate back to a value, snapping it onto
	// the dimension.
	Decode(x float64) interface{}
	Distribution() Distribution

	setName(name string)
}

type number interface {
	constraints.Integer | constraints.Float
}

// Numeric is a bounded real or integer dimension.
type Numeric[T number] struct {
	name      string
	kind      Kind
	low, high T
	step      T
	samples   int
	values    []T
	grid      []interface{}
}

// Real is a continuous dimension.
type Real = Numeric[float64]

// Integer is a discrete numeric dimension.
type Integer = Numeric[int]

type numericSpec struct {
	low, high *float64
	step      *float64
	samples   *int
	values    []float64
}

// NumericOption configures NewReal and NewInteger.
type NumericOption func(*numericSpec)

// Range sets the bounds.
func Range(low, high float64) NumericOption {
	return func(s *numericSpec) {
		s.low, s.high = &low, &high
	}
}

// Step derives the grid as low, low+step, ... excluding high.
func Step(step float64) NumericOption {
	return func(s *numericSpec) { s.step = &step }
}

// NumSamples derives the grid as n evenly spaced points including both bounds.
func NumSamples(n int) NumericOption {
	return func(s *numericSpec) { s.samples = &n }
}

// Grid supplies the candidates explicitly. Without Range, the bounds become
// the first and last value.
func Grid(values ...float64) NumericOption {
	return func(s *numericSpec) { s.values = append([]float64(nil), values...) }
}

// NewReal creates a real dimension. An empty name is filled in by NewSpace.
func NewReal(name string, opts ...NumericOption) (*Real, error) {
	return newNumeric[float64](name, KindReal, opts)
}

// NewInteger creates an integer dimension. Bounds, step and grid values
// must be integral.
func NewInteger(name string, opts ...NumericOption) (*Integer, error) {
	return newNumeric[int](name, KindInteger, opts)
}

func newNumeric[T number](name string, kind Kind, opts []NumericOption) (*Numeric[T], error) {
	const op = "NewDimension"

	var spec numericSpec
	for _, opt := range opts {
		opt(&spec)
	}
	fail := func(format string, args ...interface{}) error {
		return errors.Newf(errors.KindConfiguration, format, args...).
			WithOperation(op).
			WithDimension(name)
	}

	integral := kind == KindInteger
	check := func(what string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail("%s must be finite, got %v", what, v)
		}
		if integral && v != math.Trunc(v) {
			return fail("%s must be an integer, got %v", what, v)
		}
		return nil
	}

	d := &Numeric[T]{name: name, kind: kind}
	for _, v := range spec.values {
		if err := check("grid value", v); err != nil {
			return nil, err
		}
		d.values = append(d.values, T(v))
	}

	switch {
	case spec.low != nil:
		if err := check("low", *spec.low); err != nil {
			return nil, err
		}
		if err := check("high", *spec.high); err != nil {
			return nil, err
		}
		d.low, d.high = T(*spec.low), T(*spec.high)
	case len(d.values) > 0:
		d.low, d.high = d.values[0], d.values[len(d.values)-1]
	default:
		return nil, fail("either a range or a grid is required")
	}
	if d.low > d.high {
		return nil, fail("low %v exceeds high %v", d.low, d.high)
	}

	if spec.samples != nil {
		if *spec.samples < 1 {
			return nil, fail("number of samples must be positive, got %d", *spec.samples)
		}
		d.samples = *spec.samples
	}
	if spec.step != nil {
		if err := check("step", *spec.step); err != nil {
			return nil, err
		}
		if *spec.step <= 0 {
			return nil, fail("step must be positive, got %v", *spec.step)
		}
		d.step = T(*spec.step)
	}

	// numSamples takes precedence over step, step over the explicit grid.
	var grid []T
	switch {
	case d.samples > 0:
		grid = linspace(d.low, d.high, d.samples)
	case d.step > 0:
		grid = arange(d.low, d.high, d.step)
	default:
		grid = d.values
	}
	if len(grid) > 0 {
		d.grid = make([]interface{}, len(grid))
		for i, v := range grid {
			d.grid[i] = v
		}
	}
	return d, nil
}

// linspace returns n points from low to high inclusive. Integer grids are
// truncated and consecutive duplicates dropped.
func linspace[T number](low, high T, n int) []T {
	if n == 1 {
		return []T{low}
	}
	lo, hi := float64(low), float64(high)
	delta := (hi - lo) / float64(n-1)
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v := T(lo + float64(i)*delta)
		if i == n-1 {
			v = high
		}
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

// arange returns low, low+step, ... strictly below high. A degenerate range
// yields just low.
func arange[T number](low, high, step T) []T {
	if low == high {
		return []T{low}
	}
	n := int(math.Ceil(float64(high-low) / float64(step)))
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, low+T(i)*step)
	}
	return out
}

func (d *Numeric[T]) Name() string { return d.name }

func (d *Numeric[T]) Kind() Kind { return d.kind }

func (d *Numeric[T]) setName(name string) { d.name = name }

// Low returns the lower bound.
func (d *Numeric[T]) Low() T { return d.low }

// High returns the upper bound.
func (d *Numeric[T]) High() T { return d.high }

func (d *Numeric[T]) Grid() ([]interface{}, error) {
	if len(d.grid) == 0 {
		return nil, errors.New(errors.KindConfiguration, "dimension has no grid: set NumSamples, Step or Grid").
			WithOperation("Grid").
			WithDimension(d.name)
	}
	return append([]interface{}(nil), d.grid...), nil
}

func (d *Numeric[T]) Bounds() [2]float64 {
	return [2]float64{float64(d.low), float64(d.high)}
}

func (d *Numeric[T]) Encode(v interface{}) (float64, error) {
	f, ok := ToFloat(v)
	if !ok {
		return 0, errors.Newf(errors.KindConfiguration, "value %v (%T) is not numeric", v, v).
			WithOperation("Encode").
			WithDimension(d.name)
	}
	return f, nil
}

func (d *Numeric[T]) Decode(x float64) interface{} {
	x = math.Max(float64(d.low), math.Min(float64(d.high), x))
	if d.kind == KindInteger {
		return T(math.Round(x))
	}
	return T(x)
}

func (d *Numeric[T]) Distribution() Distribution {
	kind := Uniform
	if d.kind == KindInteger {
		kind = IntUniform
	}
	return Distribution{Kind: kind, Low: float64(d.low), High: float64(d.high)}
}

// Categorical is an unordered choice among fixed values.
type Categorical struct {
	name       string
	categories []interface{}
	index      map[string]int
}

// NewCategorical creates a categorical dimension. Categories must be
// non-empty and distinct.
func NewCategorical(name string, categories ...interface{}) (*Categorical, error) {
	if len(categories) == 0 {
		return nil, errors.New(errors.KindConfiguration, "categorical dimension needs at least one category").
			WithOperation("NewCategorical").
			WithDimension(name)
	}
	c := &Categorical{
		name:       name,
		categories: append([]interface{}(nil), categories...),
		index:      make(map[string]int, len(categories)),
	}
	for i, v := range categories {
		key := categoryKey(v)
		if _, dup := c.index[key]; dup {
			return nil, errors.Newf(errors.KindConfiguration, "duplicate category %v", v).
				WithOperation("NewCategorical").
				WithDimension(name)
		}
		c.index[key] = i
	}
	return c, nil
}

// categoryKey normalizes numbers so that 1 and 1.0 name the same category.
func categoryKey(v interface{}) string {
	if f, ok := ToFloat(v); ok {
		return fmt.Sprintf("n:%v", f)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func (c *Categorical) Name() string { return c.name }

func (c *Categorical) Kind() Kind { return KindCategorical }

func (c *Categorical) setName(name string) { c.name = name }

// Categories returns the categories in declaration order.
func (c *Categorical) Categories() []interface{} {
	return append([]interface{}(nil), c.categories...)
}

func (c *Categorical) Grid() ([]interface{}, error) {
	return c.Categories(), nil
}

func (c *Categorical) Bounds() [2]float64 {
	return [2]float64{0, float64(len(c.categories) - 1)}
}

func (c *Categorical) Encode(v interface{}) (float64, error) {
	i, ok := c.index[categoryKey(v)]
	if !ok {
		return 0, errors.Newf(errors.KindConfiguration, "unknown category %v", v).
			WithOperation("Encode").
			WithDimension(c.name)
	}
	return float64(i), nil
}

func (c *Categorical) Decode(x float64) interface{} {
	i := int(math.Round(x))
	if i < 0 {
		i = 0
	}
	if i >= len(c.categories) {
		i = len(c.categories) - 1
	}
	return c.categories[i]
}

func (c *Categorical) Distribution() Distribution {
	return Distribution{Kind: Choice, Choices: c.Categories()}
}

// Space is an ordered set of uniquely named dimensions. Order defines
// positional argument binding.
type Space struct {
	dims  []Dimension
	index map[string]int
}

// NewSpace assembles dims in order. Unnamed dimensions are named
// <kind>_<n>, counting per kind from 1 and skipping names already taken.
func NewSpace(dims ...Dimension) (*Space, error) {
	const op = "NewSpace"

	if len(dims) == 0 {
		return nil, errors.New(errors.KindConfiguration, "space needs at least one dimension").WithOperation(op)
	}

	taken := make(map[string]bool, len(dims))
	for i, d := range dims {
		if d == nil {
			return nil, errors.Newf(errors.KindConfiguration, "dimension %d is nil", i).WithOperation(op)
		}
		if d.Name() == "" {
			continue
		}
		if taken[d.Name()] {
			return nil, errors.New(errors.KindConfiguration, "duplicate dimension name").
				WithOperation(op).
				WithDimension(d.Name())
		}
		taken[d.Name()] = true
	}

	counters := make(map[Kind]int)
	s := &Space{dims: append([]Dimension(nil), dims...), index: make(map[string]int, len(dims))}
	for i, d := range s.dims {
		if d.Name() == "" {
			var name string
			for {
				counters[d.Kind()]++
				name = fmt.Sprintf("%s_%d", d.Kind(), counters[d.Kind()])
				if !taken[name] {
					break
				}
			}
			taken[name] = true
			d.setName(name)
		}
		s.index[d.Name()] = i
	}
	return s, nil
}

// SpaceFromMap builds a space ordered by key. Unnamed dimensions take their
// key as name; a named dimension must match its key.
func SpaceFromMap(dims map[string]Dimension) (*Space, error) {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]Dimension, 0, len(keys))
	for _, k := range keys {
		d := dims[k]
		if d == nil {
			return nil, errors.New(errors.KindConfiguration, "dimension is nil").
				WithOperation("SpaceFromMap").
				WithDimension(k)
		}
		switch d.Name() {
		case "":
			d.setName(k)
		case k:
		default:
			return nil, errors.Newf(errors.KindConfiguration, "dimension named %q registered under key %q", d.Name(), k).
				WithOperation("SpaceFromMap").
				WithDimension(k)
		}
		ordered = append(ordered, d)
	}
	return NewSpace(ordered...)
}

// Len returns the number of dimensions.
func (s *Space) Len() int { return len(s.dims) }

// Dimensions returns the dimensions in declaration order.
func (s *Space) Dimensions() []Dimension {
	return append([]Dimension(nil), s.dims...)
}

// Dimension looks up a dimension by name.
func (s *Space) Dimension(name string) (Dimension, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.dims[i], true
}

// Names returns dimension names in declaration order.
func (s *Space) Names() []string {
	out := make([]string, len(s.dims))
	for i, d := range s.dims {
		out[i] = d.Name()
	}
	return out
}

// Grids returns the grid of every dimension, in declaration order.
func (s *Space) Grids() ([][]interface{}, error) {
	out := make([][]interface{}, len(s.dims))
	for i, d := range s.dims {
		g, err := d.Grid()
		if err != nil {
			return nil, err
		}
		out[i] = g
	}
	return out, nil
}

// GridMap returns the name to grid mapping.
func (s *Space) GridMap() (map[string][]interface{}, error) {
	grids, err := s.Grids()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]interface{}, len(grids))
	for i, g := range grids {
		out[s.dims[i].Name()] = g
	}
	return out, nil
}

// Bounds returns the encoded bounds in declaration order.
func (s *Space) Bounds() [][2]float64 {
	out := make([][2]float64, len(s.dims))
	for i, d := range s.dims {
		out[i] = d.Bounds()
	}
	return out
}

// Distributions returns the name to distribution mapping.
func (s *Space) Distributions() map[string]Distribution {
	out := make(map[string]Distribution, len(s.dims))
	for _, d := range s.dims {
		out[d.Name()] = d.Distribution()
	}
	return out
}

// Encode converts params into a coordinate vector. Every dimension must be
// present.
func (s *Space) Encode(p Params) ([]float64, error) {
	x := make([]float64, len(s.dims))
	for i, d := range s.dims {
		v, ok := p[d.Name()]
		if !ok {
			return nil, errors.New(errors.KindConfiguration, "missing parameter").
				WithOperation("Encode").
				WithDimension(d.Name())
		}
		f, err := d.Encode(v)
		if err != nil {
			return nil, err
		}
		x[i] = f
	}
	return x, nil
}

// Decode converts a coordinate vector into params.
func (s *Space) Decode(x []float64) Params {
	p := make(Params, len(s.dims))
	for i, d := range s.dims {
		p[d.Name()] = d.Decode(x[i])
	}
	return p
}

// Snap moves x onto the nearest feasible point: integers and categories are
// rounded, everything is clamped into bounds.
func (s *Space) Snap(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, d := range s.dims {
		f, _ := d.Encode(d.Decode(x[i]))
		out[i] = f
	}
	return out
}

// Values returns p's values in declaration order.
func (s *Space) Values(p Params) ([]interface{}, error) {
	out := make([]interface{}, len(s.dims))
	for i, d := range s.dims {
		v, ok := p[d.Name()]
		if !ok {
			return nil, errors.New(errors.KindConfiguration, "missing parameter").
				WithOperation("Values").
				WithDimension(d.Name())
		}
		out[i] = v
	}
	return out, nil
}
