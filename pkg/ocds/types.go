package ocds

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Text is an optional scalar leaf. It accepts JSON strings, numbers and booleans;
// null, absent or structured values leave it unset.
type Text struct {
	value string
	valid bool
}

// NewText creates a set Text.
func NewText(s string) Text {
	return Text{value: s, valid: true}
}

func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = NewText(s)
	case 't', 'f':
		*t = NewText(string(data))
	case 'n', '{', '[':
		// unset
	default:
		*t = NewText(string(data))
	}
	return nil
}

// IsSet reports whether the leaf carried a value.
func (t Text) IsSet() bool {
	return t.valid
}

// Ptr returns nil when unset.
func (t Text) Ptr() *string {
	if !t.valid {
		return nil
	}
	v := t.value
	return &v
}

// Or returns the value, or def when unset.
func (t Text) Or(def string) string {
	if !t.valid {
		return def
	}
	return t.value
}

func (t Text) String() string {
	return t.value
}

// Number is an optional numeric leaf. Numeric strings are accepted.
type Number struct {
	value float64
	valid bool
}

// NewNumber creates a set Number.
func NewNumber(f float64) Number {
	return Number{value: f, valid: true}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	raw, ok := scalarText(data)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*n = NewNumber(f)
	return nil
}

// IsSet reports whether the leaf carried a value.
func (n Number) IsSet() bool {
	return n.valid
}

// Ptr returns nil when unset.
func (n Number) Ptr() *float64 {
	if !n.valid {
		return nil
	}
	v := n.value
	return &v
}

// Or returns the value, or def when unset.
func (n Number) Or(def float64) float64 {
	if !n.valid {
		return def
	}
	return n.value
}

// Int is an optional integer leaf. Integral floats and numeric strings are accepted.
type Int struct {
	value int64
	valid bool
}

// NewInt creates a set Int.
func NewInt(i int64) Int {
	return Int{value: i, valid: true}
}

func (i *Int) UnmarshalJSON(data []byte) error {
	*i = Int{}
	raw, ok := scalarText(data)
	if !ok {
		return nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*i = NewInt(v)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	*i = NewInt(int64(f))
	return nil
}

// IsSet reports whether the leaf carried a value.
func (i Int) IsSet() bool {
	return i.valid
}

// Or returns the value, or def when unset.
func (i Int) Or(def int64) int64 {
	if !i.valid {
		return def
	}
	return i.value
}

// Strings is an optional list of scalar leaves. Unset elements are dropped and a lone
// scalar is treated as a one element list.
type Strings []string

func (s *Strings) UnmarshalJSON(data []byte) error {
	*s = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '[':
		var items []Text
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make(Strings, 0, len(items))
		for _, item := range items {
			if item.IsSet() {
				out = append(out, item.String())
			}
		}
		*s = out
	default:
		var single Text
		if err := single.UnmarshalJSON(data); err != nil {
			return err
		}
		if single.IsSet() {
			*s = Strings{single.String()}
		}
	}
	return nil
}

// Join joins the values with sep.
func (s Strings) Join(sep string) string {
	return strings.Join(s, sep)
}

// scalarText returns the textual form of a JSON number or string leaf.
func scalarText(data []byte) (string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", false
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(data), true
	default:
		return "", false
	}
}
