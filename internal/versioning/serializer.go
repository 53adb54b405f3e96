// Package versioning snapshots portfolio state into immutable, hash-verified
// version records and derives rollbacks and diffs from them.
package versioning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = time.RFC3339Nano
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	stringerTyp = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// fieldSpec describes one snapshot field of a struct
type fieldSpec struct {
	index    int
	name     string
	date     bool
	identity bool
}

// Serializer converts portfolios and constituents to and from their
// canonical snapshot form.
//
// Times are written in UTC with microsecond precision, dates as YYYY-MM-DD,
// decimals as exact strings, enums as their tag and free-form JSON with
// normalized numbers. Values with no canonical form are rejected unless the
// string fallback is enabled and the value implements fmt.Stringer.
type Serializer struct {
	stringFallback bool
	fields         sync.Map // reflect.Type -> []fieldSpec
}

// NewSerializer creates a serializer
func NewSerializer(stringFallback bool) *Serializer {
	return &Serializer{stringFallback: stringFallback}
}

// SerializePortfolio returns the canonical field map of a portfolio
func (s *Serializer) SerializePortfolio(p *models.Portfolio) (map[string]interface{}, error) {
	if p == nil {
		return nil, apperrors.NewValidationError("portfolio is required")
	}
	return s.encodeStruct(reflect.ValueOf(p).Elem())
}

// SerializeConstituents returns the canonical field maps of a constituent
// set ordered by asset class, then asset id. The result is never nil.
func (s *Serializer) SerializeConstituents(constituents []*models.Constituent) ([]map[string]interface{}, error) {
	ordered := make([]*models.Constituent, 0, len(constituents))
	for _, c := range constituents {
		if c != nil {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Key().Less(ordered[j].Key()) })

	out := make([]map[string]interface{}, 0, len(ordered))
	for _, c := range ordered {
		m, err := s.encodeStruct(reflect.ValueOf(c).Elem())
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Snapshot serializes a portfolio together with its constituents
func (s *Serializer) Snapshot(p *models.Portfolio, constituents []*models.Constituent) (models.Snapshot, error) {
	portfolio, err := s.SerializePortfolio(p)
	if err != nil {
		return models.Snapshot{}, err
	}
	cs, err := s.SerializeConstituents(constituents)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{Portfolio: portfolio, Constituents: cs}, nil
}

// ApplyPortfolioState writes a recorded portfolio state back onto p.
// Identity fields are left untouched and keys absent from state keep their
// current value.
func (s *Serializer) ApplyPortfolioState(p *models.Portfolio, state map[string]interface{}) error {
	if p == nil {
		return apperrors.NewValidationError("portfolio is required")
	}
	return s.decodeStruct(reflect.ValueOf(p).Elem(), state, true)
}

// RestoreConstituents rebuilds constituents from recorded states. Surrogate
// ids and added_at timestamps are regenerated.
func (s *Serializer) RestoreConstituents(portfolioID uuid.UUID, states []map[string]interface{}, now time.Time) ([]*models.Constituent, error) {
	out := make([]*models.Constituent, 0, len(states))
	for i, state := range states {
		c := &models.Constituent{
			ID:          uuid.New(),
			PortfolioID: portfolioID,
			AddedAt:     now.UTC().Truncate(time.Microsecond),
		}
		if err := s.decodeStruct(reflect.ValueOf(c).Elem(), state, false); err != nil {
			return nil, fmt.Errorf("constituent %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// specsFor returns the snapshot fields of a struct type
func (s *Serializer) specsFor(t reflect.Type) []fieldSpec {
	if cached, ok := s.fields.Load(t); ok {
		return cached.([]fieldSpec)
	}

	var specs []fieldSpec
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, ok := f.Tag.Lookup("snapshot")
		if !ok || tag == "-" || !f.IsExported() {
			continue
		}
		parts := strings.Split(tag, ",")
		spec := fieldSpec{index: i, name: parts[0]}
		for _, opt := range parts[1:] {
			switch opt {
			case "date":
				spec.date = true
			case "identity":
				spec.identity = true
			}
		}
		specs = append(specs, spec)
	}

	s.fields.Store(t, specs)
	return specs
}

func (s *Serializer) encodeStruct(v reflect.Value) (map[string]interface{}, error) {
	specs := s.specsFor(v.Type())
	out := make(map[string]interface{}, len(specs))
	for _, spec := range specs {
		val, err := s.encodeValue(spec, v.Field(spec.index))
		if err != nil {
			return nil, err
		}
		out[spec.name] = val
	}
	return out, nil
}

func (s *Serializer) encodeValue(spec fieldSpec, v reflect.Value) (interface{}, error) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}

	switch v.Type() {
	case timeType:
		t := v.Interface().(time.Time).UTC()
		if spec.date {
			return t.Format(dateLayout), nil
		}
		return t.Truncate(time.Microsecond).Format(datetimeLayout), nil
	case decimalType:
		return v.Interface().(decimal.Decimal).String(), nil
	case uuidType:
		return v.Interface().(uuid.UUID).String(), nil
	}

	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return nil, apperrors.NewSerializationError(spec.name, "invalid UTF-8")
		}
		return v.String(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return decimal.NewFromFloat(v.Float()).String(), nil
	case reflect.Map, reflect.Slice, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		if !validUTF8(v.Interface()) {
			return nil, apperrors.NewSerializationError(spec.name, "invalid UTF-8")
		}
		out, err := canonicalizeJSON(v.Interface())
		if err != nil {
			return nil, apperrors.NewSerializationError(spec.name, err.Error())
		}
		return out, nil
	}

	if s.stringFallback && v.Type().Implements(stringerTyp) {
		return v.Interface().(fmt.Stringer).String(), nil
	}
	return nil, apperrors.NewSerializationError(spec.name,
		fmt.Sprintf("no canonical form for type %s", v.Type()))
}

func (s *Serializer) decodeStruct(v reflect.Value, state map[string]interface{}, skipIdentity bool) error {
	for _, spec := range s.specsFor(v.Type()) {
		if skipIdentity && spec.identity {
			continue
		}
		raw, ok := state[spec.name]
		if !ok {
			continue
		}
		if err := decodeValue(spec, v.Field(spec.index), raw); err != nil {
			return err
		}
	}
	return nil
}

// validatable is implemented by the string enums in internal/types
type validatable interface {
	IsValid() bool
}

func decodeValue(spec fieldSpec, target reflect.Value, raw interface{}) error {
	if raw == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	if target.Kind() == reflect.Pointer {
		elem := reflect.New(target.Type().Elem())
		if err := decodeValue(spec, elem.Elem(), raw); err != nil {
			return err
		}
		target.Set(elem)
		return nil
	}

	fail := func(reason string) error {
		return apperrors.NewSerializationError(spec.name, reason)
	}

	switch target.Type() {
	case timeType:
		str, ok := raw.(string)
		if !ok {
			return fail(fmt.Sprintf("expected time string, got %T", raw))
		}
		layout := datetimeLayout
		if spec.date {
			layout = dateLayout
		}
		t, err := time.Parse(layout, str)
		if err != nil {
			return fail(err.Error())
		}
		target.Set(reflect.ValueOf(t.UTC()))
		return nil
	case decimalType:
		d, err := decimal.NewFromString(fmt.Sprint(raw))
		if err != nil {
			return fail(err.Error())
		}
		target.Set(reflect.ValueOf(d))
		return nil
	case uuidType:
		str, ok := raw.(string)
		if !ok {
			return fail(fmt.Sprintf("expected uuid string, got %T", raw))
		}
		id, err := uuid.Parse(str)
		if err != nil {
			return fail(err.Error())
		}
		target.Set(reflect.ValueOf(id))
		return nil
	}

	switch target.Kind() {
	case reflect.String:
		str, ok := raw.(string)
		if !ok {
			return fail(fmt.Sprintf("expected string, got %T", raw))
		}
		target.SetString(str)
		if enum, ok := target.Interface().(validatable); ok && !enum.IsValid() {
			return apperrors.NewInvalidParameterError(spec.name, fmt.Sprintf("unknown value %q", str))
		}
		return nil
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return fail(fmt.Sprintf("expected bool, got %T", raw))
		}
		target.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		d, err := decimal.NewFromString(fmt.Sprint(raw))
		if err != nil || !d.IsInteger() {
			return fail(fmt.Sprintf("expected integer, got %v", raw))
		}
		target.SetInt(d.IntPart())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		d, err := decimal.NewFromString(fmt.Sprint(raw))
		if err != nil || !d.IsInteger() || d.IsNegative() {
			return fail(fmt.Sprintf("expected unsigned integer, got %v", raw))
		}
		target.SetUint(uint64(d.IntPart()))
		return nil
	case reflect.Float32, reflect.Float64:
		d, err := decimal.NewFromString(fmt.Sprint(raw))
		if err != nil {
			return fail(err.Error())
		}
		f, _ := d.Float64()
		target.SetFloat(f)
		return nil
	case reflect.Map, reflect.Slice, reflect.Interface:
		data, err := json.Marshal(raw)
		if err != nil {
			return fail(err.Error())
		}
		ptr := reflect.New(target.Type())
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(ptr.Interface()); err != nil {
			return fail(err.Error())
		}
		target.Set(ptr.Elem())
		return nil
	}

	return fail(fmt.Sprintf("cannot restore type %s", target.Type()))
}

// canonicalizeJSON converts a free-form value into plain JSON structures
// with every number rewritten to its shortest exact decimal form, so 1,
// 1.0 and 1e0 share one representation.
// validUTF8 reports whether every string in a JSON-shaped value is valid
// UTF-8. encoding/json would otherwise replace bad bytes with U+FFFD and two
// different values would hash the same.
func validUTF8(value interface{}) bool {
	switch val := value.(type) {
	case string:
		return utf8.ValidString(val)
	case []string:
		for _, item := range val {
			if !utf8.ValidString(item) {
				return false
			}
		}
	case []interface{}:
		for _, item := range val {
			if !validUTF8(item) {
				return false
			}
		}
	case map[string]interface{}:
		for k, item := range val {
			if !utf8.ValidString(k) || !validUTF8(item) {
				return false
			}
		}
	}
	return true
}

func canonicalizeJSON(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return normalizeNumbers(out)
}

func normalizeNumbers(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return json.Number(d.String()), nil
	case map[string]interface{}:
		for k, item := range val {
			n, err := normalizeNumbers(item)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	case []interface{}:
		for i, item := range val {
			n, err := normalizeNumbers(item)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	default:
		return v, nil
	}
}
