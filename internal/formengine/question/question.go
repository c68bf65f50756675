// Package question holds the typed schema unit of a form template: questions,
// their per-language text and options, and the constraints attached to each
// question type.
package question

import "sort"

// Type is the variant tag of a question. Values use the wire spelling.
type Type string

const (
	TypeCategory       Type = "CATEGORY"
	TypeMultipleChoice Type = "MULTIPLE_CHOICE"
	TypeMultipleSelect Type = "MULTIPLE_SELECT"
	TypeInteger        Type = "INTEGER"
	TypeString         Type = "STRING"
	TypeDate           Type = "DATE"
	TypeDateTime       Type = "DATETIME"
)

// Types lists every recognised question type in declaration order.
var Types = []Type{
	TypeCategory, TypeMultipleChoice, TypeMultipleSelect,
	TypeInteger, TypeString, TypeDate, TypeDateTime,
}

// Known reports whether t is one of the recognised question types.
func (t Type) Known() bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}

// IsChoice reports whether answers of this type select options.
func (t Type) IsChoice() bool {
	return t == TypeMultipleChoice || t == TypeMultipleSelect
}

// IsDate reports whether answers of this type are points in time.
func (t Type) IsDate() bool {
	return t == TypeDate || t == TypeDateTime
}

// Answerable reports whether a question of this type takes an answer.
func (t Type) Answerable() bool {
	return t != TypeCategory && t.Known()
}

// NoCategory marks a field that is not grouped under any category.
const NoCategory = -1

// Option is one selectable choice. IDs are stable within a question and shared
// by every language version; the i-th option of each language is the same choice.
type Option struct {
	ID   int
	Text string
}

// LanguageVersion is the text of a question in one language.
type LanguageVersion struct {
	Language string
	Text     string
	Options  []Option
}

// Condition makes a question visible only when the question at QuestionOrder
// has one of RequiredOptionIDs selected.
type Condition struct {
	QuestionOrder     int
	RequiredOptionIDs []int
}

// Question is a single entry of a form template.
type Question struct {
	// ID is assigned by the server. In a form response it is the
	// question-response id targeted by edit deltas.
	ID    string
	Order int
	Type  Type
	// CategoryIndex is the order of the owning CATEGORY, nil when ungrouped.
	CategoryIndex *int
	Required      bool

	NumMin *float64
	NumMax *float64
	Units  string

	StringMaxLength *int
	StringMaxLines  *int

	// nil means allowed.
	AllowFutureDates *bool
	AllowPastDates   *bool

	VisibleCondition []Condition
	LanguageVersions map[string]LanguageVersion
}

// IsCategory reports whether q is a category heading.
func (q Question) IsCategory() bool { return q.Type == TypeCategory }

// Category returns the owning category order or NoCategory.
func (q Question) Category() int {
	if q.CategoryIndex == nil {
		return NoCategory
	}
	return *q.CategoryIndex
}

// FutureDatesAllowed reports whether a date answer may lie after now.
func (q Question) FutureDatesAllowed() bool {
	return q.AllowFutureDates == nil || *q.AllowFutureDates
}

// PastDatesAllowed reports whether a date answer may lie before now.
func (q Question) PastDatesAllowed() bool {
	return q.AllowPastDates == nil || *q.AllowPastDates
}

// Version returns the language version for lang.
func (q Question) Version(lang string) (LanguageVersion, bool) {
	lv, ok := q.LanguageVersions[lang]
	return lv, ok
}

// Languages returns the languages q carries text for, sorted.
func (q Question) Languages() []string {
	langs := make([]string, 0, len(q.LanguageVersions))
	for l := range q.LanguageVersions {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// OptionID resolves the option whose text in lang equals text.
func (q Question) OptionID(lang, text string) (int, bool) {
	lv, ok := q.LanguageVersions[lang]
	if !ok {
		return 0, false
	}
	for _, o := range lv.Options {
		if o.Text == text {
			return o.ID, true
		}
	}
	return 0, false
}

// OptionText returns the text of option id in lang.
func (q Question) OptionText(lang string, id int) (string, bool) {
	lv, ok := q.LanguageVersions[lang]
	if !ok {
		return "", false
	}
	for _, o := range lv.Options {
		if o.ID == id {
			return o.Text, true
		}
	}
	return "", false
}

// OptionIDs returns the option ids of q in index order, taken from any
// language version (they are aligned across languages).
func (q Question) OptionIDs() []int {
	for _, lang := range q.Languages() {
		opts := q.LanguageVersions[lang].Options
		ids := make([]int, len(opts))
		for i, o := range opts {
			ids[i] = o.ID
		}
		return ids
	}
	return nil
}

// Clone returns a deep copy of q.
func (q Question) Clone() Question {
	c := q
	c.CategoryIndex = cloneInt(q.CategoryIndex)
	c.NumMin = cloneFloat(q.NumMin)
	c.NumMax = cloneFloat(q.NumMax)
	c.StringMaxLength = cloneInt(q.StringMaxLength)
	c.StringMaxLines = cloneInt(q.StringMaxLines)
	c.AllowFutureDates = cloneBool(q.AllowFutureDates)
	c.AllowPastDates = cloneBool(q.AllowPastDates)

	if q.VisibleCondition != nil {
		c.VisibleCondition = make([]Condition, len(q.VisibleCondition))
		for i, cond := range q.VisibleCondition {
			c.VisibleCondition[i] = Condition{
				QuestionOrder:     cond.QuestionOrder,
				RequiredOptionIDs: append([]int(nil), cond.RequiredOptionIDs...),
			}
		}
	}
	if q.LanguageVersions != nil {
		c.LanguageVersions = make(map[string]LanguageVersion, len(q.LanguageVersions))
		for lang, lv := range q.LanguageVersions {
			lv.Options = append([]Option(nil), lv.Options...)
			c.LanguageVersions[lang] = lv
		}
	}
	return c
}

// CloneAll deep-copies a question list.
func CloneAll(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}

// Find returns the question with the given order.
func Find(qs []Question, order int) (Question, bool) {
	if order >= 0 && order < len(qs) && qs[order].Order == order {
		return qs[order], true
	}
	for _, q := range qs {
		if q.Order == order {
			return q, true
		}
	}
	return Question{}, false
}

// SortByOrder sorts qs in place by ascending order.
func SortByOrder(qs []Question) {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
}

// Template is an authored questionnaire.
type Template struct {
	ID                 string
	ClassificationID   string
	ClassificationName string
	Version            string
	Languages          []string
	Questions          []Question
}

// Clone returns a deep copy of t.
func (t Template) Clone() Template {
	c := t
	c.Languages = append([]string(nil), t.Languages...)
	c.Questions = CloneAll(t.Questions)
	return c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
