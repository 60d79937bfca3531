// FILE: lixenwraith/config/decode.go
package config

import (
	"encoding"
	"fmt"
	"math"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

var (
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	timeType            = reflect.TypeOf(time.Time{})
	urlType             = reflect.TypeOf(url.URL{})
	ipNetType           = reflect.TypeOf(net.IPNet{})
	ipType              = reflect.TypeOf(net.IP{})
)

// coercer turns raw tree nodes into values of a declared Go type.
type coercer struct {
	tagName     string
	errorUnused bool
	hook        mapstructure.DecodeHookFunc
}

func newCoercer(opts Options) *coercer {
	return &coercer{
		tagName:     opts.TagName,
		errorUnused: opts.FailOnUnknownPath,
		hook:        decodeHook(),
	}
}

// coerce converts node to t. Failures are reported as *TypeMismatchError for path.
func (d *coercer) coerce(path string, node *Node, t reflect.Type) (any, error) {
	mismatch := func(err error) error {
		return &TypeMismatchError{Path: path, Expected: t.String(), Actual: node.Describe(), Err: err}
	}

	if t.Kind() == reflect.Interface {
		value := node.Interface()
		if value == nil || t.NumMethod() == 0 || reflect.TypeOf(value).Implements(t) {
			return value, nil
		}
		return nil, mismatch(nil)
	}

	if node.IsNull() {
		if isNilable(t) {
			return reflect.Zero(t).Interface(), nil
		}
		return nil, mismatch(nil)
	}

	if node.Kind() == KindScalar && reflect.TypeOf(node.Value()).AssignableTo(t) {
		return node.Value(), nil
	}

	if !acceptsKind(node, t) {
		return nil, mismatch(nil)
	}

	result := reflect.New(t)
	if err := d.decode(node.Interface(), result.Interface()); err != nil {
		return nil, mismatch(err)
	}
	return result.Elem().Interface(), nil
}

// decode runs mapstructure with the strict hook set into target, a non-nil pointer.
func (d *coercer) decode(input any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          d.tagName,
		WeaklyTypedInput: false,
		DecodeHook:       d.hook,
		ZeroFields:       true,
		ErrorUnset:       true,
		ErrorUnused:      d.errorUnused,
	})
	if err != nil {
		return fmt.Errorf("decoder creation failed: %w", err)
	}
	return decoder.Decode(input)
}

// acceptsKind checks the node shape against the target kind: mappings feed
// structs and maps, sequences feed slices and arrays, scalars feed the rest.
func acceptsKind(node *Node, t reflect.Type) bool {
	base := t
	for base.Kind() == reflect.Ptr {
		base = base.Elem()
	}

	switch node.Kind() {
	case KindMapping:
		return base.Kind() == reflect.Struct || base.Kind() == reflect.Map
	case KindSequence:
		return base.Kind() == reflect.Slice || base.Kind() == reflect.Array
	}

	switch base.Kind() {
	case reflect.Map:
		return false
	case reflect.Struct:
		return isTextual(base)
	case reflect.Slice, reflect.Array:
		if base == ipType {
			return true
		}
		kind := reflect.TypeOf(node.Value()).Kind()
		return kind == reflect.String || kind == reflect.Slice || kind == reflect.Array
	default:
		return true
	}
}

// isTextual reports whether a struct type is written as a single string in sources.
func isTextual(t reflect.Type) bool {
	return t == timeType || t == urlType || t == ipNetType || reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// decodeHook returns the composite decode hook for all type conversions
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		// Network types
		stringToNetIPHookFunc(),
		stringToNetIPNetHookFunc(),
		stringToURLHookFunc(),

		// Standard hooks
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),

		// Exact primitive parsing
		strictScalarHookFunc(),
	)
}

// stringToNetIPHookFunc handles net.IP conversion
func stringToNetIPHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}

		if t != ipType {
			return data, nil
		}

		str := reflect.ValueOf(data).String()
		if len(str) > 45 { // Max IPv6 length
			return nil, fmt.Errorf("invalid IP length: %d", len(str))
		}

		ip := net.ParseIP(str)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address: %s", str)
		}

		return ip, nil
	}
}

// stringToNetIPNetHookFunc handles net.IPNet conversion
func stringToNetIPNetHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		isPtr := t.Kind() == reflect.Ptr
		targetType := t
		if isPtr {
			targetType = t.Elem()
		}
		if targetType != ipNetType {
			return data, nil
		}

		str := reflect.ValueOf(data).String()
		if len(str) > 49 { // Max IPv6 CIDR length
			return nil, fmt.Errorf("invalid CIDR length: %d", len(str))
		}
		_, ipnet, err := net.ParseCIDR(str)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR: %w", err)
		}
		if isPtr {
			return ipnet, nil
		}
		return *ipnet, nil
	}
}

// stringToURLHookFunc handles url.URL conversion
func stringToURLHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		isPtr := t.Kind() == reflect.Ptr
		targetType := t
		if isPtr {
			targetType = t.Elem()
		}
		if targetType != urlType {
			return data, nil
		}

		str := reflect.ValueOf(data).String()
		if len(str) > 2048 {
			return nil, fmt.Errorf("URL too long: %d bytes", len(str))
		}
		u, err := url.Parse(str)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		if isPtr {
			return u, nil
		}
		return *u, nil
	}
}

// strictScalarHookFunc converts between strings, numbers and booleans using
// the exact parse rules of the target type. Lossy numeric conversions fail.
func strictScalarHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if data == nil || f == nil || f.AssignableTo(t) {
			return data, nil
		}
		v := reflect.ValueOf(data)

		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return toInt(v, t)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return toUint(v, t)
		case reflect.Float32, reflect.Float64:
			return toFloat(v, t)
		case reflect.Bool:
			if v.Kind() != reflect.String {
				return data, nil
			}
			b, err := strconv.ParseBool(v.String())
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as %s", v.String(), t)
			}
			return reflect.ValueOf(b).Convert(t).Interface(), nil
		case reflect.String:
			var s string
			switch {
			case isIntKind(v.Kind()):
				s = strconv.FormatInt(v.Int(), 10)
			case isUintKind(v.Kind()):
				s = strconv.FormatUint(v.Uint(), 10)
			case v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64:
				s = strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits())
			case v.Kind() == reflect.Bool:
				s = strconv.FormatBool(v.Bool())
			default:
				return data, nil
			}
			return reflect.ValueOf(s).Convert(t).Interface(), nil
		}
		return data, nil
	}
}

func toInt(v reflect.Value, t reflect.Type) (any, error) {
	var n int64
	switch {
	case v.Kind() == reflect.String:
		parsed, err := strconv.ParseInt(v.String(), 10, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s", v.String(), t)
		}
		n = parsed
	case isIntKind(v.Kind()):
		n = v.Int()
	case isUintKind(v.Kind()):
		if v.Uint() > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows %s", v.Uint(), t)
		}
		n = int64(v.Uint())
	case v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64:
		f := v.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("value %v is not an integer of type %s", f, t)
		}
		n = int64(f)
	default:
		return v.Interface(), nil
	}
	if reflect.New(t).Elem().OverflowInt(n) {
		return nil, fmt.Errorf("value %d overflows %s", n, t)
	}
	return reflect.ValueOf(n).Convert(t).Interface(), nil
}

func toUint(v reflect.Value, t reflect.Type) (any, error) {
	var n uint64
	switch {
	case v.Kind() == reflect.String:
		parsed, err := strconv.ParseUint(v.String(), 10, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s", v.String(), t)
		}
		n = parsed
	case isIntKind(v.Kind()):
		if v.Int() < 0 {
			return nil, fmt.Errorf("negative value %d for %s", v.Int(), t)
		}
		n = uint64(v.Int())
	case isUintKind(v.Kind()):
		n = v.Uint()
	case v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64:
		f := v.Float()
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return nil, fmt.Errorf("value %v is not an integer of type %s", f, t)
		}
		n = uint64(f)
	default:
		return v.Interface(), nil
	}
	if reflect.New(t).Elem().OverflowUint(n) {
		return nil, fmt.Errorf("value %d overflows %s", n, t)
	}
	return reflect.ValueOf(n).Convert(t).Interface(), nil
}

func toFloat(v reflect.Value, t reflect.Type) (any, error) {
	var f float64
	switch {
	case v.Kind() == reflect.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.String()), t.Bits())
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s", v.String(), t)
		}
		f = parsed
	case isIntKind(v.Kind()):
		f = float64(v.Int())
	case isUintKind(v.Kind()):
		f = float64(v.Uint())
	case v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64:
		f = v.Float()
	default:
		return v.Interface(), nil
	}
	if reflect.New(t).Elem().OverflowFloat(f) {
		return nil, fmt.Errorf("value %v overflows %s", f, t)
	}
	return reflect.ValueOf(f).Convert(t).Interface(), nil
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

// Unmarshal decodes the values under prefix into target, which must be a
// non-nil pointer. Registered items contribute their resolved values,
// defaults included; other paths come from the merged layers. An empty
// prefix decodes the whole tree.
func (c *Config) Unmarshal(prefix string, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("unmarshal target must be non-nil pointer, got %T", target)
	}

	var path []string
	if prefix != "" {
		segments, err := splitPath(prefix)
		if err != nil {
			return err
		}
		path = segments
	}

	tree, err := c.resolvedTree()
	if err != nil {
		return err
	}
	section, ok := tree.Lookup(path)
	if !ok {
		section = NewMapping()
	}
	if err := c.coercer.decode(section.Interface(), target); err != nil {
		return &TypeMismatchError{Path: prefix, Expected: rv.Elem().Type().String(), Actual: section.Describe(), Err: err}
	}
	return nil
}

// resolvedTree overlays the resolved value of every item on the merged layers.
func (c *Config) resolvedTree() (*Node, error) {
	values, err := c.ToMap()
	if err != nil {
		return nil, err
	}
	tree := c.Merged()
	for _, name := range c.Names() {
		if value, ok := values[name]; ok {
			tree = tree.With(strings.Split(name, "."), Scalar(value))
		}
	}
	return tree, nil
}

// Merged returns the local values of every layer merged from the root down
// to c. Defaults of unset items are not included.
func (c *Config) Merged() *Node {
	var layers []*Node
	for layer := c; layer != nil; layer = layer.parent {
		layers = append(layers, layer.Tree())
	}
	merged := NewMapping()
	for i := len(layers) - 1; i >= 0; i-- {
		merged = Merge(merged, layers[i])
	}
	return merged
}
