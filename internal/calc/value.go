package calc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind tags a Value. The zero Kind is KindNotAvailable so an unset field
// never reads as a measured zero.
type Kind uint8

const (
	KindNotAvailable Kind = iota
	KindNumber
	KindTimedOut
	KindOutOfRange
	KindError
)

var kindNames = map[Kind]string{
	KindNotAvailable: "not_available",
	KindNumber:       "number",
	KindTimedOut:     "timed_out",
	KindOutOfRange:   "out_of_range",
	KindError:        "error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is one output field: a number, or a tag saying why there is none.
type Value struct {
	Kind Kind
	Num  float64
	// Raw is the text shown by the page, kept for reports.
	Raw string
}

// Number returns a computed numeric value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// NotAvailable, TimedOut, OutOfRange and Failed build the sentinel values.
func NotAvailable() Value { return Value{} }
func TimedOut() Value     { return Value{Kind: KindTimedOut} }
func OutOfRange() Value   { return Value{Kind: KindOutOfRange} }
func Failed() Value       { return Value{Kind: KindError} }

// ParseValue reads a page output. Empty text, "-" and text without digits
// are not available.
func ParseValue(text string) Value {
	raw := strings.TrimSpace(text)
	f, ok := ParseLocaleNumber(raw)
	if !ok {
		return NotAvailable()
	}
	return Value{Kind: KindNumber, Num: f, Raw: raw}
}

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.Kind == KindNumber }

// Float returns the number and whether there is one.
func (v Value) Float() (float64, bool) { return v.Num, v.Kind == KindNumber }

// String renders the page text for read values, a two-decimal number for
// computed ones, and a short label for sentinels.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		if v.Raw != "" {
			return v.Raw
		}
		return strconv.FormatFloat(math.Round(v.Num*100)/100, 'f', -1, 64)
	case KindTimedOut:
		return "Timeout"
	case KindOutOfRange:
		return "OutOfRange"
	case KindError:
		return "Error"
	default:
		return "N/A"
	}
}

type valueJSON struct {
	Kind  string   `json:"kind"`
	Value *float64 `json:"value,omitempty"`
	Raw   string   `json:"raw,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Kind: v.Kind.String(), Raw: v.Raw}
	if v.Kind == KindNumber {
		n := v.Num
		out.Value = &n
	}
	return json.Marshal(out)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var in valueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	for k, name := range kindNames {
		if name == in.Kind {
			*v = Value{Kind: k, Raw: in.Raw}
			if in.Value != nil {
				v.Num = *in.Value
			}
			return nil
		}
	}
	return fmt.Errorf("unknown value kind %q", in.Kind)
}
