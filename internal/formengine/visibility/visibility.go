// Package visibility decides which questions of a form are hidden by their
// visibility conditions given the current answers.
package visibility

import (
	"github.com/chw/forms/internal/formengine/answer"
	"github.com/chw/forms/internal/formengine/question"
)

// ComputeHidden returns, for every question order, whether the question is
// hidden. Choice answers are held as option text, so lang selects the option
// list used to resolve them to ids.
//
// Conditions only reference earlier questions, so one pass in ascending order
// sees every referenced question already resolved. A hidden question cannot
// satisfy a condition even if its retained answer would.
func ComputeHidden(qs []question.Question, answers answer.Set, lang string) map[int]bool {
	ordered := question.CloneAll(qs)
	question.SortByOrder(ordered)

	byOrder := make(map[int]question.Question, len(ordered))
	hidden := make(map[int]bool, len(ordered))
	for _, q := range ordered {
		byOrder[q.Order] = q
		hidden[q.Order] = len(q.VisibleCondition) > 0 && !satisfied(q, byOrder, hidden, answers, lang)
	}
	return hidden
}

// Visible filters qs down to the questions not marked hidden.
func Visible(qs []question.Question, hidden map[int]bool) []question.Question {
	out := make([]question.Question, 0, len(qs))
	for _, q := range qs {
		if !hidden[q.Order] {
			out = append(out, q)
		}
	}
	return out
}

func satisfied(q question.Question, byOrder map[int]question.Question, hidden map[int]bool, answers answer.Set, lang string) bool {
	for ref, want := range collapse(q.VisibleCondition) {
		if ref >= q.Order || hidden[ref] {
			return false
		}
		refQ, ok := byOrder[ref]
		if !ok || !intersects(selected(refQ, answers.Get(ref), lang), want) {
			return false
		}
	}
	return true
}

// collapse merges every entry targeting the same question into one id set.
func collapse(conds []question.Condition) map[int]map[int]bool {
	out := make(map[int]map[int]bool, len(conds))
	for _, c := range conds {
		set, ok := out[c.QuestionOrder]
		if !ok {
			set = make(map[int]bool, len(c.RequiredOptionIDs))
			out[c.QuestionOrder] = set
		}
		for _, id := range c.RequiredOptionIDs {
			set[id] = true
		}
	}
	return out
}

func selected(q question.Question, v answer.Value, lang string) []int {
	c, ok := v.(answer.Choice)
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(c))
	for _, text := range c {
		if id, ok := q.OptionID(lang, text); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func intersects(ids []int, want map[int]bool) bool {
	for _, id := range ids {
		if want[id] {
			return true
		}
	}
	return false
}
