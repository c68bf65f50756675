package ordering

import (
	"errors"
	"fmt"

	"github.com/chw/forms/internal/formengine/question"
)

var (
	ErrStale            = errors.New("question changed since the draft began")
	ErrCategoryChange   = errors.New("cannot convert between category and field")
	ErrForwardReference = errors.New("visibility condition must reference an earlier question")
)

// Draft is a private copy of one question being edited in an authoring
// dialog. Nothing reaches the template until Commit; dropping the Draft
// discards every edit.
type Draft struct {
	q question.Question
}

// Begin opens a draft of the question at order.
func Begin(qs []question.Question, order int, languages []string) (*Draft, error) {
	q, ok := question.Find(qs, order)
	if !ok {
		return nil, fmt.Errorf("draft question %d: %w", order, ErrNotFound)
	}
	d := &Draft{q: q.Clone()}
	if d.q.LanguageVersions == nil {
		d.q.LanguageVersions = map[string]question.LanguageVersion{}
	}
	for _, l := range languages {
		if _, ok := d.q.LanguageVersions[l]; !ok {
			d.q.LanguageVersions[l] = question.LanguageVersion{Language: l}
		}
	}
	return d, nil
}

// Question returns a copy of the draft's current state.
func (d *Draft) Question() question.Question { return d.q.Clone() }

func (d *Draft) SetText(lang, text string) {
	lv := d.q.LanguageVersions[lang]
	lv.Language = lang
	lv.Text = text
	d.q.LanguageVersions[lang] = lv
}

func (d *Draft) SetRequired(required bool) { d.q.Required = required }

// SetType changes the field type and clears constraints that do not apply to
// the new type. Categories cannot become fields or the other way round.
func (d *Draft) SetType(t question.Type) error {
	if !t.Known() {
		return fmt.Errorf("unknown question type %q", t)
	}
	if (t == question.TypeCategory) != d.q.IsCategory() {
		return ErrCategoryChange
	}
	d.q.Type = t
	if t != question.TypeInteger {
		d.q.NumMin, d.q.NumMax, d.q.Units = nil, nil, ""
	}
	if t != question.TypeString {
		d.q.StringMaxLength, d.q.StringMaxLines = nil, nil
	}
	if !t.IsDate() {
		d.q.AllowFutureDates, d.q.AllowPastDates = nil, nil
	}
	if !t.IsChoice() {
		for lang, lv := range d.q.LanguageVersions {
			lv.Options = nil
			d.q.LanguageVersions[lang] = lv
		}
	}
	return nil
}

func (d *Draft) SetNumericBounds(min, max *float64, units string) {
	d.q.NumMin, d.q.NumMax, d.q.Units = min, max, units
}

func (d *Draft) SetStringLimits(maxLength, maxLines *int) {
	d.q.StringMaxLength, d.q.StringMaxLines = maxLength, maxLines
}

func (d *Draft) SetDateRules(allowFuture, allowPast *bool) {
	d.q.AllowFutureDates, d.q.AllowPastDates = allowFuture, allowPast
}

// AddOption appends an option to every language, using texts[lang] where
// given, and returns the new option id.
func (d *Draft) AddOption(texts map[string]string) int {
	id := 0
	for _, lv := range d.q.LanguageVersions {
		for _, o := range lv.Options {
			if o.ID >= id {
				id = o.ID + 1
			}
		}
	}
	for lang, lv := range d.q.LanguageVersions {
		lv.Options = append(lv.Options, question.Option{ID: id, Text: texts[lang]})
		d.q.LanguageVersions[lang] = lv
	}
	return id
}

// SetOptionText renames option id in lang.
func (d *Draft) SetOptionText(lang string, id int, text string) bool {
	lv, ok := d.q.LanguageVersions[lang]
	if !ok {
		return false
	}
	for i := range lv.Options {
		if lv.Options[i].ID == id {
			lv.Options[i].Text = text
			return true
		}
	}
	return false
}

// RemoveOption deletes option id from every language.
func (d *Draft) RemoveOption(id int) {
	for lang, lv := range d.q.LanguageVersions {
		kept := make([]question.Option, 0, len(lv.Options))
		for _, o := range lv.Options {
			if o.ID != id {
				kept = append(kept, o)
			}
		}
		lv.Options = kept
		d.q.LanguageVersions[lang] = lv
	}
}

// SetVisibleCondition replaces the draft's visibility rule. Every entry must
// point at an earlier question.
func (d *Draft) SetVisibleCondition(conds []question.Condition) error {
	for _, c := range conds {
		if c.QuestionOrder < 0 || c.QuestionOrder >= d.q.Order {
			return fmt.Errorf("condition on question %d: %w", c.QuestionOrder, ErrForwardReference)
		}
	}
	d.q.VisibleCondition = nil
	for _, c := range conds {
		d.q.VisibleCondition = append(d.q.VisibleCondition, question.Condition{
			QuestionOrder:     c.QuestionOrder,
			RequiredOptionIDs: append([]int(nil), c.RequiredOptionIDs...),
		})
	}
	return nil
}

// Commit returns a copy of qs with the draft swapped in. Conditions elsewhere
// that referenced options the draft removed lose those option ids, and an
// entry left with no ids is dropped.
func (d *Draft) Commit(qs []question.Question) ([]question.Question, error) {
	pos := position(qs, d.q.Order)
	if pos < 0 {
		return qs, fmt.Errorf("commit question %d: %w", d.q.Order, ErrNotFound)
	}
	if qs[pos].ID != d.q.ID || qs[pos].IsCategory() != d.q.IsCategory() {
		return qs, ErrStale
	}

	valid := make(map[int]bool)
	for _, id := range d.q.OptionIDs() {
		valid[id] = true
	}

	out := question.CloneAll(qs)
	out[pos] = d.q.Clone()
	for i := range out {
		if i == pos || len(out[i].VisibleCondition) == 0 {
			continue
		}
		var kept []question.Condition
		for _, c := range out[i].VisibleCondition {
			if c.QuestionOrder != d.q.Order {
				kept = append(kept, c)
				continue
			}
			var ids []int
			for _, id := range c.RequiredOptionIDs {
				if valid[id] {
					ids = append(ids, id)
				}
			}
			if len(ids) > 0 {
				kept = append(kept, question.Condition{QuestionOrder: c.QuestionOrder, RequiredOptionIDs: ids})
			}
		}
		out[i].VisibleCondition = kept
	}
	return out, nil
}
