package httpclient

import (
	"encoding"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

var (
	jsonUnmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// decodePath locates a decode failure within the JSON document, e.g.
// "a.b" or "l[1].b". Syntax errors, and failures that cannot be located,
// report the root ".".
//
// The decoder only names the Go field of the leaf, so the document is
// walked against the target type and the first value that cannot land in
// its field is reported.
func decodePath(err error, data []byte, out any) string {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || out == nil || !gjson.ValidBytes(data) {
		return "."
	}
	var p decodePathBuilder
	if p.mismatch(reflect.TypeOf(out), gjson.ParseBytes(data)) {
		return p.String()
	}
	return "."
}

type pathSegment struct {
	key   string
	index int
}

type decodePathBuilder struct {
	segments []pathSegment
}

func (p *decodePathBuilder) String() string {
	if len(p.segments) == 0 {
		return "."
	}
	var b strings.Builder
	for i, s := range p.segments {
		if s.index >= 0 {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.key)
	}
	return b.String()
}

func (p *decodePathBuilder) push(s pathSegment) { p.segments = append(p.segments, s) }
func (p *decodePathBuilder) pop()               { p.segments = p.segments[:len(p.segments)-1] }

// mismatch reports whether v, or a value nested in it, cannot decode into
// t. On true the builder holds the path of the offending value.
func (p *decodePathBuilder) mismatch(t reflect.Type, v gjson.Result) bool {
	t = indirect(t)
	if v.Type == gjson.Null {
		return false
	}
	if reflect.PointerTo(t).Implements(jsonUnmarshalerType) {
		return false
	}
	if v.Type == gjson.String && reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return false
	}

	switch t.Kind() {
	case reflect.Interface:
		return false
	case reflect.Struct:
		if !v.IsObject() {
			return true
		}
		return p.objectMismatch(v, func(key string) (reflect.Type, bool) {
			return structFieldType(t, key)
		})
	case reflect.Map:
		if !v.IsObject() {
			return true
		}
		return p.objectMismatch(v, func(string) (reflect.Type, bool) {
			return t.Elem(), true
		})
	case reflect.Slice, reflect.Array:
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 && v.Type == gjson.String {
			return false
		}
		if !v.IsArray() {
			return true
		}
		return p.arrayMismatch(t.Elem(), v)
	case reflect.String:
		return v.Type != gjson.String
	case reflect.Bool:
		return v.Type != gjson.True && v.Type != gjson.False
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Type != gjson.Number {
			return true
		}
		_, err := strconv.ParseInt(v.Raw, 10, t.Bits())
		return err != nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if v.Type != gjson.Number {
			return true
		}
		_, err := strconv.ParseUint(v.Raw, 10, t.Bits())
		return err != nil
	case reflect.Float32, reflect.Float64:
		return v.Type != gjson.Number
	default:
		return false
	}
}

func (p *decodePathBuilder) objectMismatch(v gjson.Result, field func(key string) (reflect.Type, bool)) bool {
	found := false
	v.ForEach(func(key, value gjson.Result) bool {
		ft, ok := field(key.Str)
		if !ok {
			return true
		}
		p.push(pathSegment{key: key.Str, index: -1})
		if p.mismatch(ft, value) {
			found = true
			return false
		}
		p.pop()
		return true
	})
	return found
}

func (p *decodePathBuilder) arrayMismatch(elem reflect.Type, v gjson.Result) bool {
	found := false
	i := 0
	v.ForEach(func(_, value gjson.Result) bool {
		p.push(pathSegment{index: i})
		if p.mismatch(elem, value) {
			found = true
			return false
		}
		p.pop()
		i++
		return true
	})
	return found
}

// structFieldType finds the field a JSON key decodes into: an exact tag or
// name match first, then a case-insensitive one.
func structFieldType(t reflect.Type, key string) (reflect.Type, bool) {
	var fold reflect.Type
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous && indirect(f.Type).Kind() == reflect.Struct {
			continue
		}
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		if name == key {
			return f.Type, true
		}
		if fold == nil && strings.EqualFold(name, key) {
			fold = f.Type
		}
	}
	return fold, fold != nil
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
