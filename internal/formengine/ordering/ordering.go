// Package ordering maintains the total order of questions in a template and
// the grouping of fields under categories.
//
// Every function is copy-on-write: the input slice is never modified and the
// returned slice is always densely numbered from 0, with category and
// visibility references remapped to the new numbering. Operations that cannot
// apply (unknown order, boundary moves, moves that would make a visibility
// condition point forward) return the input unchanged.
package ordering

import (
	"errors"
	"fmt"

	"github.com/chw/forms/internal/formengine/question"
)

var (
	ErrNotFound      = errors.New("question not found")
	ErrNotCategory   = errors.New("question is not a category")
	ErrNotAnswerable = errors.New("question type does not take answers")
)

// Normalize sorts qs by order and renumbers densely, remapping references.
func Normalize(qs []question.Question) []question.Question {
	out := question.CloneAll(qs)
	question.SortByOrder(out)
	return renumber(out)
}

// AddCategory appends a new empty category.
func AddCategory(qs []question.Question, languages []string) ([]question.Question, question.Question) {
	out := question.CloneAll(qs)
	c := question.Question{
		Order:            len(out),
		Type:             question.TypeCategory,
		LanguageVersions: emptyVersions(languages),
	}
	out = append(out, c)
	return out, c.Clone()
}

// AddField inserts a new field of type typ at the end of the block owned by
// the category at categoryOrder. With question.NoCategory the field joins the
// ungrouped fields that precede the first category.
func AddField(qs []question.Question, categoryOrder int, typ question.Type, languages []string) ([]question.Question, question.Question, error) {
	if !typ.Answerable() {
		return qs, question.Question{}, fmt.Errorf("add field of type %s: %w", typ, ErrNotAnswerable)
	}

	var pos int
	field := question.Question{
		Order:            -1,
		Type:             typ,
		LanguageVersions: emptyVersions(languages),
	}
	if categoryOrder == question.NoCategory {
		pos = firstCategory(qs)
	} else {
		cpos := position(qs, categoryOrder)
		if cpos < 0 {
			return qs, question.Question{}, fmt.Errorf("category %d: %w", categoryOrder, ErrNotFound)
		}
		if !qs[cpos].IsCategory() {
			return qs, question.Question{}, fmt.Errorf("question %d: %w", categoryOrder, ErrNotCategory)
		}
		pos = blockEnd(qs, cpos)
		field.CategoryIndex = question.Int(categoryOrder)
	}

	out := make([]question.Question, 0, len(qs)+1)
	out = append(out, question.CloneAll(qs[:pos])...)
	out = append(out, field)
	out = append(out, question.CloneAll(qs[pos:])...)
	out = renumber(out)
	return out, out[pos].Clone(), nil
}

// MoveUp moves the question at order one step earlier. A field swaps with the
// previous field of its own category; a category swaps, together with its
// fields, with the previous category block.
func MoveUp(qs []question.Question, order int) []question.Question {
	pos := position(qs, order)
	if pos < 0 {
		return qs
	}

	var arranged []question.Question
	if qs[pos].IsCategory() {
		prev := previousCategory(qs, pos)
		if prev < 0 {
			return qs
		}
		end := blockEnd(qs, pos)
		arranged = concat(qs[:prev], qs[pos:end], qs[prev:pos], qs[end:])
	} else {
		if pos == 0 || !sameGroup(qs[pos-1], qs[pos]) {
			return qs
		}
		arranged = concat(qs[:pos-1], qs[pos:pos+1], qs[pos-1:pos], qs[pos+1:])
	}
	return commit(qs, arranged)
}

// MoveDown moves the question at order one step later; see MoveUp.
func MoveDown(qs []question.Question, order int) []question.Question {
	pos := position(qs, order)
	if pos < 0 {
		return qs
	}

	var arranged []question.Question
	if qs[pos].IsCategory() {
		end := blockEnd(qs, pos)
		if end >= len(qs) || !qs[end].IsCategory() {
			return qs
		}
		nextEnd := blockEnd(qs, end)
		arranged = concat(qs[:pos], qs[end:nextEnd], qs[pos:end], qs[nextEnd:])
	} else {
		if pos+1 >= len(qs) || !sameGroup(qs[pos], qs[pos+1]) {
			return qs
		}
		arranged = concat(qs[:pos], qs[pos+1:pos+2], qs[pos:pos+1], qs[pos+2:])
	}
	return commit(qs, arranged)
}

// DeleteQuestion removes the question at order. Deleting a category cascades
// to its fields. Visibility conditions that pointed at removed questions are
// dropped from the remaining questions.
func DeleteQuestion(qs []question.Question, order int) []question.Question {
	pos := position(qs, order)
	if pos < 0 {
		return qs
	}
	if qs[pos].IsCategory() {
		return DeleteCategory(qs, order)
	}
	return renumber(concat(qs[:pos], qs[pos+1:]))
}

// DeleteCategory removes the category at order and every question whose
// category index equals it, then renumbers.
func DeleteCategory(qs []question.Question, order int) []question.Question {
	pos := position(qs, order)
	if pos < 0 || !qs[pos].IsCategory() {
		return qs
	}
	out := make([]question.Question, 0, len(qs))
	for _, q := range qs {
		if q.Order == order || (q.CategoryIndex != nil && *q.CategoryIndex == order) {
			continue
		}
		out = append(out, q.Clone())
	}
	return renumber(out)
}

// HasForwardReference reports whether any question references a question at
// an equal or later order through its category index or visibility condition.
func HasForwardReference(qs []question.Question) bool {
	for _, q := range qs {
		if q.CategoryIndex != nil && *q.CategoryIndex >= q.Order {
			return true
		}
		for _, c := range q.VisibleCondition {
			if c.QuestionOrder >= q.Order {
				return true
			}
		}
	}
	return false
}

// IsDense reports whether qs is ordered 0..n-1 by position.
func IsDense(qs []question.Question) bool {
	for i, q := range qs {
		if q.Order != i {
			return false
		}
	}
	return true
}

// commit renumbers an arrangement and keeps it only if no reference ends up
// pointing forward.
func commit(original, arranged []question.Question) []question.Question {
	out := renumber(arranged)
	if HasForwardReference(out) {
		return original
	}
	return out
}

// renumber assigns dense orders by position. Questions carrying Order < 0 are
// new and have no previous order to map from.
func renumber(qs []question.Question) []question.Question {
	mapping := make(map[int]int, len(qs))
	for i, q := range qs {
		if q.Order >= 0 {
			mapping[q.Order] = i
		}
	}

	out := make([]question.Question, len(qs))
	for i, q := range qs {
		q = q.Clone()
		q.Order = i
		if q.CategoryIndex != nil {
			if n, ok := mapping[*q.CategoryIndex]; ok {
				q.CategoryIndex = question.Int(n)
			} else {
				q.CategoryIndex = nil
			}
		}
		if len(q.VisibleCondition) > 0 {
			kept := q.VisibleCondition[:0]
			for _, c := range q.VisibleCondition {
				if n, ok := mapping[c.QuestionOrder]; ok {
					c.QuestionOrder = n
					kept = append(kept, c)
				}
			}
			if len(kept) == 0 {
				kept = nil
			}
			q.VisibleCondition = kept
		}
		out[i] = q
	}
	return out
}

func position(qs []question.Question, order int) int {
	if order >= 0 && order < len(qs) && qs[order].Order == order {
		return order
	}
	for i, q := range qs {
		if q.Order == order {
			return i
		}
	}
	return -1
}

// blockEnd returns the index one past the category at pos and its contiguous
// fields.
func blockEnd(qs []question.Question, pos int) int {
	order := qs[pos].Order
	end := pos + 1
	for end < len(qs) && !qs[end].IsCategory() && qs[end].Category() == order {
		end++
	}
	return end
}

func previousCategory(qs []question.Question, pos int) int {
	for i := pos - 1; i >= 0; i-- {
		if qs[i].IsCategory() {
			return i
		}
	}
	return -1
}

func firstCategory(qs []question.Question) int {
	for i, q := range qs {
		if q.IsCategory() {
			return i
		}
	}
	return len(qs)
}

func sameGroup(a, b question.Question) bool {
	return !a.IsCategory() && !b.IsCategory() && a.Category() == b.Category()
}

func concat(parts ...[]question.Question) []question.Question {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]question.Question, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func emptyVersions(languages []string) map[string]question.LanguageVersion {
	lvs := make(map[string]question.LanguageVersion, len(languages))
	for _, l := range languages {
		lvs[l] = question.LanguageVersion{Language: l}
	}
	return lvs
}
