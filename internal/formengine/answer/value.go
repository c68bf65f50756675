// Package answer holds the in-memory answers of a form response and the
// transform between them and the two wire payloads (create and edit).
package answer

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chw/forms/internal/formengine/question"
)

// Kind is the wire shape an answer takes.
type Kind int

const (
	KindNone Kind = iota
	KindMC
	KindText
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindMC:
		return "mc"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	}
	return "none"
}

// KindFor maps a question type to its answer kind. Categories and
// unrecognised types take no answer.
func KindFor(t question.Type) Kind {
	switch t {
	case question.TypeMultipleChoice, question.TypeMultipleSelect:
		return KindMC
	case question.TypeString:
		return KindText
	case question.TypeInteger, question.TypeDate, question.TypeDateTime:
		return KindNumber
	}
	return KindNone
}

// Value is one answer. The set of implementations is closed: Choice, Text
// and Number.
type Value interface {
	Kind() Kind
	Blank() bool
	isValue()
}

// Choice is the selection of a choice question, held as option texts the way
// the input widgets present them.
type Choice []string

func (Choice) Kind() Kind    { return KindMC }
func (c Choice) Blank() bool { return len(c) == 0 }
func (Choice) isValue()      {}

// Has reports whether text is selected.
func (c Choice) Has(text string) bool {
	for _, s := range c {
		if s == text {
			return true
		}
	}
	return false
}

// Toggle returns a copy with text added or removed.
func (c Choice) Toggle(text string) Choice {
	out := make(Choice, 0, len(c)+1)
	found := false
	for _, s := range c {
		if s == text {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		out = append(out, text)
	}
	return out
}

// Text is a free-text answer.
type Text string

func (Text) Kind() Kind    { return KindText }
func (t Text) Blank() bool { return t == "" }
func (Text) isValue()      {}

// Number is a numeric answer. Raw keeps the input as typed so that
// non-numeric input can be reported rather than lost. Dates are stored as
// Unix epoch seconds.
type Number struct {
	Value float64
	Raw   string
	Valid bool
}

func (Number) Kind() Kind    { return KindNumber }
func (n Number) Blank() bool { return !n.Valid && n.Raw == "" }
func (Number) isValue()      {}

// NewNumber returns a valid number.
func NewNumber(v float64) Number {
	return Number{Value: v, Raw: strconv.FormatFloat(v, 'f', -1, 64), Valid: true}
}

// ParseNumber interprets raw input. Blank input yields a blank Number and
// anything that is not a finite number yields an invalid one.
func ParseNumber(raw string) Number {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Number{}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{Raw: raw}
	}
	return Number{Value: v, Raw: raw, Valid: true}
}

// Moment stores t as epoch seconds.
func Moment(t time.Time) Number {
	return NewNumber(float64(t.Unix()))
}

// Time interprets the number as epoch seconds.
func (n Number) Time() time.Time {
	return time.Unix(int64(n.Value), 0).UTC()
}

// IsBlank reports whether v carries no answer; a nil Value is blank.
func IsBlank(v Value) bool {
	return v == nil || v.Blank()
}

// Equal compares two values by meaning: numbers by value and validity,
// choices as ordered text lists.
func Equal(a, b Value) bool {
	if IsBlank(a) || IsBlank(b) {
		return IsBlank(a) && IsBlank(b)
	}
	switch x := a.(type) {
	case Choice:
		y, ok := b.(Choice)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case Text:
		y, ok := b.(Text)
		return ok && x == y
	case Number:
		y, ok := b.(Number)
		if !ok || x.Valid != y.Valid {
			return false
		}
		if !x.Valid {
			return x.Raw == y.Raw
		}
		return x.Value == y.Value
	}
	return false
}

// Answer pairs a question order with its value.
type Answer struct {
	QuestionOrder int
	Value         Value
}

// Set is the answer list of one response keyed by question order. A Set is
// never modified in place; With and Without return new sets.
type Set map[int]Value

// Get returns the value for order, nil when unanswered.
func (s Set) Get(order int) Value { return s[order] }

// With returns a copy of s with order set to v.
func (s Set) With(order int, v Value) Set {
	out := make(Set, len(s)+1)
	for k, val := range s {
		out[k] = val
	}
	if c, ok := v.(Choice); ok {
		v = append(Choice(nil), c...)
	}
	out[order] = v
	return out
}

// Without returns a copy of s with order removed.
func (s Set) Without(order int) Set {
	out := make(Set, len(s))
	for k, val := range s {
		if k != order {
			out[k] = val
		}
	}
	return out
}

// Answers lists the set in ascending question order.
func (s Set) Answers() []Answer {
	out := make([]Answer, 0, len(s))
	for k, v := range s {
		out = append(out, Answer{QuestionOrder: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionOrder < out[j].QuestionOrder })
	return out
}

// Exclude returns a copy of s without the answers of hidden questions.
func (s Set) Exclude(hidden map[int]bool) Set {
	out := make(Set, len(s))
	for k, v := range s {
		if !hidden[k] {
			out[k] = v
		}
	}
	return out
}

// Remap moves answers to new question orders after a reorder; answers whose
// order is absent from mapping are dropped.
func (s Set) Remap(mapping map[int]int) Set {
	out := make(Set, len(s))
	for k, v := range s {
		if n, ok := mapping[k]; ok {
			out[n] = v
		}
	}
	return out
}
