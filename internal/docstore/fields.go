package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"handraise/pkg/types"
)

// normalizeFields converts fields into the canonical JSON value space
// (string, float64, bool, nil, map, slice) with timestamps in
// types.TimestampLayout.
func normalizeFields(fields types.Fields) (types.Fields, error) {
	if fields == nil {
		return types.Fields{}, nil
	}
	converted := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "" {
			return nil, fmt.Errorf("empty field name")
		}
		converted[k] = convertTimes(v)
	}
	data, err := json.Marshal(converted)
	if err != nil {
		return nil, err
	}
	return decodeFields(data)
}

func convertTimes(v any) any {
	switch t := v.(type) {
	case time.Time:
		return types.FormatTimestamp(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return types.FormatTimestamp(*t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = convertTimes(inner)
		}
		return out
	case types.Fields:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = convertTimes(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = convertTimes(inner)
		}
		return out
	default:
		return v
	}
}

func encodeFields(fields types.Fields) ([]byte, error) {
	if fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(fields)
}

func decodeFields(data []byte) (types.Fields, error) {
	fields := types.Fields{}
	if len(data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode document fields: %w", err)
	}
	return fields, nil
}

// sortDocuments orders docs by orderBy. Documents missing the field (or
// holding null) always come last in arrival order; present values are
// compared and reversed when descending, with arrival order as tie-break in
// the same direction. docs must be in arrival order.
func sortDocuments(docs []*types.Document, orderBy string, descending bool) []*types.Document {
	if orderBy == "" {
		if descending {
			out := make([]*types.Document, len(docs))
			for i, d := range docs {
				out[len(docs)-1-i] = d
			}
			return out
		}
		return docs
	}

	type ranked struct {
		doc   *types.Document
		value any
		seq   int
	}
	var present, missing []ranked
	for i, d := range docs {
		v, ok := d.Fields[orderBy]
		if !ok || v == nil {
			missing = append(missing, ranked{doc: d, seq: i})
			continue
		}
		present = append(present, ranked{doc: d, value: v, seq: i})
	}

	sort.SliceStable(present, func(i, j int) bool {
		c := compareValues(present[i].value, present[j].value)
		if c == 0 {
			c = present[i].seq - present[j].seq
		}
		if descending {
			return c > 0
		}
		return c < 0
	})

	out := make([]*types.Document, 0, len(docs))
	for _, r := range present {
		out = append(out, r.doc)
	}
	for _, r := range missing {
		out = append(out, r.doc)
	}
	return out
}

// compareValues orders canonical JSON values. Values of different kinds order
// by kind: bool, number, string, everything else.
func compareValues(a, b any) int {
	ka, kb := kindRank(a), kindRank(b)
	if ka != kb {
		return ka - kb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	default:
		return 0
	}
}

func kindRank(v any) int {
	switch v.(type) {
	case bool:
		return 0
	case float64:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}
