// Package validation checks answers against their questions and templates
// against the authoring rules.
package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/chw/forms/internal/formengine/answer"
	"github.com/chw/forms/internal/formengine/question"
)

// Code identifies the rule a value failed.
type Code string

const (
	CodeRequired         Code = "required"
	CodeSelectAtLeastOne Code = "select_at_least_one"
	CodeWrongKind        Code = "wrong_kind"
	CodeNotANumber       Code = "not_a_number"
	CodeBelowMin         Code = "below_min"
	CodeAboveMax         Code = "above_max"
	CodeTooLong          Code = "too_long"
	CodeTooManyLines     Code = "too_many_lines"
	CodeInvalidDate      Code = "invalid_date"
	CodeFutureDate       Code = "future_date"
	CodePastDate         Code = "past_date"
)

// FieldError is a failed response rule on one question.
type FieldError struct {
	QuestionOrder int    `json:"questionIndex"`
	Code          Code   `json:"code"`
	Message       string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("question %d: %s", e.QuestionOrder, e.Message)
}

// Lazy reports whether the error is about a missing answer. Those are only
// shown after the user first tries to submit.
func (e FieldError) Lazy() bool {
	return e.Code == CodeRequired || e.Code == CodeSelectAtLeastOne
}

// Check applies the rules of q to v. A nil result means v is acceptable.
func Check(q question.Question, v answer.Value, now time.Time) *FieldError {
	if !q.Type.Answerable() {
		return nil
	}
	fail := func(code Code, format string, args ...any) *FieldError {
		return &FieldError{QuestionOrder: q.Order, Code: code, Message: fmt.Sprintf(format, args...)}
	}

	if answer.IsBlank(v) {
		if !q.Required {
			return nil
		}
		if q.Type == question.TypeMultipleSelect {
			return fail(CodeSelectAtLeastOne, "select at least one")
		}
		return fail(CodeRequired, "this field is required")
	}
	if v.Kind() != answer.KindFor(q.Type) {
		return fail(CodeWrongKind, "expected a %s answer", answer.KindFor(q.Type))
	}

	switch q.Type {
	case question.TypeInteger:
		n := v.(answer.Number)
		if !n.Valid {
			return fail(CodeNotANumber, "must be a number")
		}
		if q.NumMin != nil && n.Value < *q.NumMin {
			return fail(CodeBelowMin, "must be at least %s", withUnits(*q.NumMin, q.Units))
		}
		if q.NumMax != nil && n.Value > *q.NumMax {
			return fail(CodeAboveMax, "must be at most %s", withUnits(*q.NumMax, q.Units))
		}

	case question.TypeString:
		s := string(v.(answer.Text))
		if q.StringMaxLength != nil && utf8.RuneCountInString(s) > *q.StringMaxLength {
			return fail(CodeTooLong, "must be at most %d characters", *q.StringMaxLength)
		}
		if q.StringMaxLines != nil && LineCount(s) > *q.StringMaxLines {
			return fail(CodeTooManyLines, "exceeds maximum number of lines")
		}

	case question.TypeDate, question.TypeDateTime:
		n := v.(answer.Number)
		if !n.Valid {
			return fail(CodeInvalidDate, "must be a date")
		}
		cmp := compareMoment(n.Time(), now, q.Type == question.TypeDate)
		if cmp > 0 && !q.FutureDatesAllowed() {
			return fail(CodeFutureDate, "date cannot be in the future")
		}
		if cmp < 0 && !q.PastDatesAllowed() {
			return fail(CodePastDate, "date cannot be in the past")
		}
	}
	return nil
}

// LineCount returns the number of lines in s; an empty string has none.
func LineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// Clip cuts s to the question's maximum length. Input widgets apply it as
// the user types so the length rule never trips on live input.
func Clip(q question.Question, s string) string {
	if q.StringMaxLength == nil || *q.StringMaxLength < 0 || utf8.RuneCountInString(s) <= *q.StringMaxLength {
		return s
	}
	return string([]rune(s)[:*q.StringMaxLength])
}

// compareMoment orders t against now. For DATE questions only the calendar
// day in now's location matters.
func compareMoment(t, now time.Time, dayOnly bool) int {
	if dayOnly {
		t = t.In(now.Location())
		ty, tm, td := t.Date()
		ny, nm, nd := now.Date()
		t = time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
		now = time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	}
	switch {
	case t.Before(now):
		return -1
	case t.After(now):
		return 1
	}
	return 0
}

func withUnits(v float64, units string) string {
	s := decimal.NewFromFloat(v).String()
	if units == "" {
		return s
	}
	return s + " " + units
}

// Report is the outcome of checking a whole response.
type Report struct {
	Errors []FieldError
}

// Ready reports whether every visible question passed.
func (r Report) Ready() bool { return len(r.Errors) == 0 }

// Blocking reports whether an error is present that disables submission
// outright. Only line-count errors do.
func (r Report) Blocking() bool {
	for _, e := range r.Errors {
		if e.Code == CodeTooManyLines {
			return true
		}
	}
	return false
}

// For returns the error on the question at order, if any.
func (r Report) For(order int) (FieldError, bool) {
	for _, e := range r.Errors {
		if e.QuestionOrder == order {
			return e, true
		}
	}
	return FieldError{}, false
}

// Shown returns the errors to display. Lazy errors are withheld until the
// first submit attempt.
func (r Report) Shown(attempted bool) []FieldError {
	if attempted {
		return r.Errors
	}
	var out []FieldError
	for _, e := range r.Errors {
		if !e.Lazy() {
			out = append(out, e)
		}
	}
	return out
}

// Response checks every visible answerable question in order.
func Response(qs []question.Question, answers answer.Set, hidden map[int]bool, now time.Time) Report {
	ordered := question.CloneAll(qs)
	question.SortByOrder(ordered)

	var r Report
	for _, q := range ordered {
		if !q.Type.Answerable() || hidden[q.Order] {
			continue
		}
		if err := Check(q, answers.Get(q.Order), now); err != nil {
			r.Errors = append(r.Errors, *err)
		}
	}
	return r
}
