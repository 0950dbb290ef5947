package optimization

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/copyleftdev/seqtune/internal/errors"
)

// Params maps dimension names to values.
type Params map[string]interface{}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names sorted.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns a numeric parameter as float64.
func (p Params) Float(name string) (float64, error) {
	v, ok := p[name]
	if !ok {
		return 0, missing(name)
	}
	f, ok := ToFloat(v)
	if !ok {
		return 0, errors.Newf(errors.KindConfiguration, "parameter is %T, not numeric", v).WithDimension(name)
	}
	return f, nil
}

// Int returns a numeric parameter rounded to the nearest integer.
func (p Params) Int(name string) (int, error) {
	f, err := p.Float(name)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

// String returns a string parameter.
func (p Params) String(name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", missing(name)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Newf(errors.KindConfiguration, "parameter is %T, not string", v).WithDimension(name)
	}
	return s, nil
}

func missing(name string) error {
	return errors.New(errors.KindConfiguration, "missing parameter").WithDimension(name)
}

// ToFloat converts the numeric types found in params, including values
// decoded from JSON and YAML.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
