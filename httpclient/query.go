package httpclient

import (
	"bytes"
	"net/url"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	msgNestedQuery      = "nested query objects are not supported"
	msgQueryArrayScalar = "query arrays must contain only strings, numbers, or booleans"
	msgQueryValueScalar = "query values must be strings, numbers, or booleans"
	msgPairList         = "query pair list must be a list of [key, value] arrays"
	msgPairLength       = "query pair list entries must have length 2"
	msgPairKeyScalar    = "query pair keys must be strings, numbers, or booleans"
	msgPairValueScalar  = "query pair values must be strings, numbers, or booleans"
	msgQueryShape       = "query parameters must serialize to an object or a list of key/value pairs"
)

type queryPair struct {
	key   string
	value string
}

// EncodeQuery serializes v into a form-encoded query string.
//
// v goes through JSON first, so struct tags and omitempty apply. A JSON
// object yields one pair per scalar field (sorted by key) and one pair per
// element of a scalar array; null fields and null array elements are
// dropped. A JSON array is read as an explicit list of [key, value] pairs
// and keeps its order. A nil v, or one that encodes to no pairs, returns "".
func EncodeQuery(v any) (string, error) {
	if v == nil {
		return "", nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return "", newSerializeError("failed to encode query", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return "", newSerializeError("failed to encode query", err)
	}

	var pairs []queryPair
	switch node := doc.(type) {
	case nil:
		return "", nil
	case map[string]any:
		pairs, err = objectPairs(node)
	case []any:
		pairs, err = listPairs(node)
	default:
		return "", newSerializeError(msgQueryShape, nil)
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String(), nil
}

func objectPairs(obj map[string]any) ([]queryPair, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]queryPair, 0, len(keys))
	for _, key := range keys {
		switch value := obj[key].(type) {
		case nil:
		case map[string]any:
			return nil, newSerializeError(msgNestedQuery, nil)
		case []any:
			for _, item := range value {
				if item == nil {
					continue
				}
				s, ok := scalarString(item)
				if !ok {
					return nil, newSerializeError(msgQueryArrayScalar, nil)
				}
				pairs = append(pairs, queryPair{key: key, value: s})
			}
		default:
			s, ok := scalarString(value)
			if !ok {
				return nil, newSerializeError(msgQueryValueScalar, nil)
			}
			pairs = append(pairs, queryPair{key: key, value: s})
		}
	}
	return pairs, nil
}

func listPairs(list []any) ([]queryPair, error) {
	pairs := make([]queryPair, 0, len(list))
	for _, entry := range list {
		pair, ok := entry.([]any)
		if !ok {
			return nil, newSerializeError(msgPairList, nil)
		}
		if len(pair) != 2 {
			return nil, newSerializeError(msgPairLength, nil)
		}
		key, ok := scalarString(pair[0])
		if !ok {
			return nil, newSerializeError(msgPairKeyScalar, nil)
		}
		value, ok := scalarString(pair[1])
		if !ok {
			return nil, newSerializeError(msgPairValueScalar, nil)
		}
		pairs = append(pairs, queryPair{key: key, value: value})
	}
	return pairs, nil
}

// scalarString renders a decoded JSON scalar. Numbers keep their JSON text.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case bool:
		if s {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}
