package validation

import (
	"fmt"
	"strings"

	"github.com/chw/forms/internal/formengine/question"
)

// SchemaCode identifies a broken authoring rule.
type SchemaCode string

const (
	SchemaNoLanguages     SchemaCode = "no_languages"
	SchemaNoQuestions     SchemaCode = "no_questions"
	SchemaUnknownType     SchemaCode = "unknown_type"
	SchemaOrderGap        SchemaCode = "order_gap"
	SchemaMissingText     SchemaCode = "missing_text"
	SchemaNoOptions       SchemaCode = "no_options"
	SchemaEmptyOption     SchemaCode = "empty_option"
	SchemaDuplicateOption SchemaCode = "duplicate_option"
	SchemaOptionsMismatch SchemaCode = "options_mismatch"
	SchemaBadCategory     SchemaCode = "bad_category"
	SchemaBadCondition    SchemaCode = "bad_condition"
	SchemaBoundsInverted  SchemaCode = "bounds_inverted"
	SchemaBadLimit        SchemaCode = "bad_limit"
)

// TemplateLevel is the QuestionOrder of errors that concern the template as a
// whole.
const TemplateLevel = -1

// SchemaError is a template authoring problem. Language is set when the
// problem is specific to one language.
type SchemaError struct {
	QuestionOrder int        `json:"questionIndex"`
	Language      string     `json:"lang,omitempty"`
	Code          SchemaCode `json:"code"`
	Message       string     `json:"message"`
}

func (e SchemaError) Error() string {
	if e.QuestionOrder == TemplateLevel {
		return e.Message
	}
	return fmt.Sprintf("question %d: %s", e.QuestionOrder, e.Message)
}

// Template checks t against the authoring rules. An empty result means the
// template may be submitted.
func Template(t question.Template) []SchemaError {
	var errs []SchemaError
	add := func(order int, lang string, code SchemaCode, format string, args ...any) {
		errs = append(errs, SchemaError{
			QuestionOrder: order,
			Language:      lang,
			Code:          code,
			Message:       fmt.Sprintf(format, args...),
		})
	}

	if len(t.Languages) == 0 {
		add(TemplateLevel, "", SchemaNoLanguages, "template declares no languages")
	}
	if len(t.Questions) == 0 {
		add(TemplateLevel, "", SchemaNoQuestions, "template has no questions")
	}

	qs := question.CloneAll(t.Questions)
	question.SortByOrder(qs)
	byOrder := make(map[int]question.Question, len(qs))
	for i, q := range qs {
		if q.Order != i {
			add(TemplateLevel, "", SchemaOrderGap, "question orders must run from 0 without gaps; found %d at position %d", q.Order, i)
			break
		}
	}
	for _, q := range qs {
		byOrder[q.Order] = q
	}

	for _, q := range qs {
		if !q.Type.Known() {
			add(q.Order, "", SchemaUnknownType, "unknown question type %q", q.Type)
			continue
		}
		for _, lang := range t.Languages {
			lv, ok := q.Version(lang)
			if !ok || strings.TrimSpace(lv.Text) == "" {
				add(q.Order, lang, SchemaMissingText, "question text is missing in %s", lang)
			}
		}
		if q.Type.IsChoice() {
			errs = append(errs, checkOptions(q, t.Languages)...)
		}
		if q.CategoryIndex != nil {
			c, ok := byOrder[*q.CategoryIndex]
			if !ok || !c.IsCategory() || *q.CategoryIndex >= q.Order {
				add(q.Order, "", SchemaBadCategory, "category %d must be an earlier category", *q.CategoryIndex)
			}
		}
		for _, c := range q.VisibleCondition {
			if msg := checkCondition(q, c, byOrder); msg != "" {
				add(q.Order, "", SchemaBadCondition, "%s", msg)
			}
		}
		if q.NumMin != nil && q.NumMax != nil && *q.NumMin > *q.NumMax {
			add(q.Order, "", SchemaBoundsInverted, "minimum %v is greater than maximum %v", *q.NumMin, *q.NumMax)
		}
		if q.StringMaxLength != nil && *q.StringMaxLength <= 0 {
			add(q.Order, "", SchemaBadLimit, "maximum length must be positive")
		}
		if q.StringMaxLines != nil && *q.StringMaxLines <= 0 {
			add(q.Order, "", SchemaBadLimit, "maximum number of lines must be positive")
		}
	}
	return errs
}

func checkOptions(q question.Question, languages []string) []SchemaError {
	var errs []SchemaError
	var reference []int
	for _, lang := range languages {
		lv, ok := q.Version(lang)
		if !ok {
			continue
		}
		if len(lv.Options) == 0 {
			errs = append(errs, SchemaError{QuestionOrder: q.Order, Language: lang, Code: SchemaNoOptions,
				Message: fmt.Sprintf("at least one option is required in %s", lang)})
			continue
		}
		ids := make([]int, len(lv.Options))
		seen := make(map[int]bool, len(lv.Options))
		for j, o := range lv.Options {
			ids[j] = o.ID
			if seen[o.ID] {
				errs = append(errs, SchemaError{QuestionOrder: q.Order, Language: lang, Code: SchemaDuplicateOption,
					Message: fmt.Sprintf("option id %d is used more than once in %s", o.ID, lang)})
			}
			seen[o.ID] = true
			if strings.TrimSpace(o.Text) == "" {
				errs = append(errs, SchemaError{QuestionOrder: q.Order, Language: lang, Code: SchemaEmptyOption,
					Message: fmt.Sprintf("option %d has no text in %s", j+1, lang)})
			}
		}
		if reference == nil {
			reference = ids
			continue
		}
		if !sameIDs(reference, ids) {
			errs = append(errs, SchemaError{QuestionOrder: q.Order, Language: lang, Code: SchemaOptionsMismatch,
				Message: fmt.Sprintf("options in %s do not match the other languages", lang)})
		}
	}
	return errs
}

func checkCondition(q question.Question, c question.Condition, byOrder map[int]question.Question) string {
	if c.QuestionOrder >= q.Order {
		return fmt.Sprintf("visibility may only depend on an earlier question, not %d", c.QuestionOrder)
	}
	ref, ok := byOrder[c.QuestionOrder]
	if !ok {
		return fmt.Sprintf("visibility depends on missing question %d", c.QuestionOrder)
	}
	if !ref.Type.IsChoice() {
		return fmt.Sprintf("visibility depends on question %d which has no options", c.QuestionOrder)
	}
	if len(c.RequiredOptionIDs) == 0 {
		return fmt.Sprintf("visibility condition on question %d selects no options", c.QuestionOrder)
	}
	known := make(map[int]bool)
	for _, id := range ref.OptionIDs() {
		known[id] = true
	}
	for _, id := range c.RequiredOptionIDs {
		if !known[id] {
			return fmt.Sprintf("question %d has no option %d", c.QuestionOrder, id)
		}
	}
	return ""
}

func sameIDs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
