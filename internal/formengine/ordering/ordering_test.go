package ordering

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/chw/forms/internal/formengine/question"
)

var langs = []string{"English"}

func text(s string) map[string]question.LanguageVersion {
	return map[string]question.LanguageVersion{"English": {Language: "English", Text: s}}
}

func choiceText(s string, opts ...string) map[string]question.LanguageVersion {
	lv := question.LanguageVersion{Language: "English", Text: s}
	for i, o := range opts {
		lv.Options = append(lv.Options, question.Option{ID: i, Text: o})
	}
	return map[string]question.LanguageVersion{"English": lv}
}

// fixture:
//
//	0 Vitals (category)
//	1   Temperature
//	2   Fever?            Yes/No
//	3   Fever notes       visible when 2 = Yes
//	4 History (category)
//	5   Onset date
//	6   Symptoms
func fixture() []question.Question {
	return []question.Question{
		{ID: "vitals", Order: 0, Type: question.TypeCategory, LanguageVersions: text("Vitals")},
		{ID: "temp", Order: 1, Type: question.TypeInteger, CategoryIndex: question.Int(0), LanguageVersions: text("Temperature")},
		{ID: "fever", Order: 2, Type: question.TypeMultipleChoice, CategoryIndex: question.Int(0), LanguageVersions: choiceText("Fever?", "Yes", "No")},
		{ID: "notes", Order: 3, Type: question.TypeString, CategoryIndex: question.Int(0), LanguageVersions: text("Fever notes"),
			VisibleCondition: []question.Condition{{QuestionOrder: 2, RequiredOptionIDs: []int{0}}}},
		{ID: "history", Order: 4, Type: question.TypeCategory, LanguageVersions: text("History")},
		{ID: "onset", Order: 5, Type: question.TypeDate, CategoryIndex: question.Int(4), LanguageVersions: text("Onset date")},
		{ID: "symptoms", Order: 6, Type: question.TypeMultipleSelect, CategoryIndex: question.Int(4), LanguageVersions: choiceText("Symptoms", "Cough", "Rash")},
	}
}

func ids(qs []question.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func assertIDs(t *testing.T, qs []question.Question, want ...string) {
	t.Helper()
	got := ids(qs)
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func assertInvariants(t *testing.T, qs []question.Question) {
	t.Helper()
	if !IsDense(qs) {
		t.Fatalf("orders not dense: %v", orders(qs))
	}
	if HasForwardReference(qs) {
		t.Fatalf("forward reference present in %v", ids(qs))
	}
	for _, q := range qs {
		if q.CategoryIndex == nil {
			continue
		}
		if !qs[*q.CategoryIndex].IsCategory() {
			t.Fatalf("question %s points at non-category %d", q.ID, *q.CategoryIndex)
		}
	}
}

func orders(qs []question.Question) []int {
	out := make([]int, len(qs))
	for i, q := range qs {
		out[i] = q.Order
	}
	return out
}

func categoryOf(qs []question.Question, id string) int {
	for _, q := range qs {
		if q.ID == id {
			return q.Category()
		}
	}
	return -2
}

func find(qs []question.Question, id string) question.Question {
	for _, q := range qs {
		if q.ID == id {
			return q
		}
	}
	return question.Question{}
}

func TestMoveUp_FirstFieldInCategoryIsNoOp(t *testing.T) {
	qs := fixture()
	out := MoveUp(qs, 1)
	assertIDs(t, out, "vitals", "temp", "fever", "notes", "history", "onset", "symptoms")

	out = MoveUp(qs, 5)
	assertIDs(t, out, "vitals", "temp", "fever", "notes", "history", "onset", "symptoms")
}

func TestMoveDown_LastFieldInCategoryIsNoOp(t *testing.T) {
	qs := fixture()
	assertIDs(t, MoveDown(qs, 3), "vitals", "temp", "fever", "notes", "history", "onset", "symptoms")
	assertIDs(t, MoveDown(qs, 6), "vitals", "temp", "fever", "notes", "history", "onset", "symptoms")
}

func TestMoveUp_SwapsWithinCategory(t *testing.T) {
	qs := fixture()
	out := MoveUp(qs, 2)
	assertIDs(t, out, "vitals", "fever", "temp", "notes", "history", "onset", "symptoms")
	assertInvariants(t, out)

	notes := find(out, "notes")
	if notes.VisibleCondition[0].QuestionOrder != 1 {
		t.Errorf("condition not remapped: points at %d, want 1", notes.VisibleCondition[0].QuestionOrder)
	}
}

func TestMoveDown_RefusesForwardReference(t *testing.T) {
	qs := fixture()
	// fever moving below notes would leave notes depending on a later question
	out := MoveDown(qs, 2)
	assertIDs(t, out, "vitals", "temp", "fever", "notes", "history", "onset", "symptoms")
	assertInvariants(t, out)
}

func TestMoveUp_CategoryBlockSwap(t *testing.T) {
	qs := fixture()
	out := MoveUp(qs, 4)
	assertIDs(t, out, "history", "onset", "symptoms", "vitals", "temp", "fever", "notes")
	assertInvariants(t, out)

	if got := categoryOf(out, "temp"); got != 3 {
		t.Errorf("temp category = %d, want 3", got)
	}
	if got := categoryOf(out, "symptoms"); got != 0 {
		t.Errorf("symptoms category = %d, want 0", got)
	}
	if got := find(out, "notes").VisibleCondition[0].QuestionOrder; got != 5 {
		t.Errorf("notes condition = %d, want 5", got)
	}
}

func TestMoveDown_CategoryBlockSwapMatchesMoveUp(t *testing.T) {
	qs := fixture()
	down := MoveDown(qs, 0)
	up := MoveUp(qs, 4)
	assertIDs(t, down, ids(up)...)
}

func TestMove_FirstCategoryUpAndLastCategoryDownAreNoOps(t *testing.T) {
	qs := fixture()
	assertIDs(t, MoveUp(qs, 0), ids(qs)...)
	assertIDs(t, MoveDown(qs, 4), ids(qs)...)
}

func TestMoveUp_CategoryRefusedWhenConditionWouldPointForward(t *testing.T) {
	qs := fixture()
	qs[6].VisibleCondition = []question.Condition{{QuestionOrder: 2, RequiredOptionIDs: []int{0}}}
	out := MoveUp(qs, 4)
	assertIDs(t, out, ids(qs)...)
}

func TestMove_UnknownQuestionIsNoOp(t *testing.T) {
	qs := fixture()
	assertIDs(t, MoveUp(qs, 42), ids(qs)...)
	assertIDs(t, MoveDown(qs, -3), ids(qs)...)
}

func TestMove_DoesNotMutateInput(t *testing.T) {
	qs := fixture()
	_ = MoveUp(qs, 4)
	_ = MoveUp(qs, 2)
	assertIDs(t, qs, "vitals", "temp", "fever", "notes", "history", "onset", "symptoms")
	if *qs[1].CategoryIndex != 0 || qs[3].VisibleCondition[0].QuestionOrder != 2 {
		t.Error("input references were rewritten")
	}
}

func TestDeleteCategory_Cascades(t *testing.T) {
	qs := fixture()
	out := DeleteCategory(qs, 0)
	if removed := len(qs) - len(out); removed != 4 {
		t.Fatalf("removed %d questions, want 4 (3 fields + category)", removed)
	}
	assertIDs(t, out, "history", "onset", "symptoms")
	assertInvariants(t, out)
	if got := categoryOf(out, "onset"); got != 0 {
		t.Errorf("onset category = %d, want 0", got)
	}
}

func TestDeleteQuestion_OnCategoryCascades(t *testing.T) {
	qs := fixture()
	out := DeleteQuestion(qs, 4)
	assertIDs(t, out, "vitals", "temp", "fever", "notes")
	assertInvariants(t, out)
}

func TestDeleteCategory_NonCategoryIsNoOp(t *testing.T) {
	qs := fixture()
	assertIDs(t, DeleteCategory(qs, 2), ids(qs)...)
}

func TestDeleteQuestion_DropsDanglingConditions(t *testing.T) {
	qs := fixture()
	out := DeleteQuestion(qs, 2)
	assertIDs(t, out, "vitals", "temp", "notes", "history", "onset", "symptoms")
	assertInvariants(t, out)
	if n := len(find(out, "notes").VisibleCondition); n != 0 {
		t.Errorf("expected dangling condition dropped, %d remain", n)
	}
}

func TestAddField_AppendsToCategoryBlock(t *testing.T) {
	qs := fixture()
	out, field, err := AddField(qs, 0, question.TypeString, langs)
	if err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if field.Order != 4 || field.Category() != 0 {
		t.Errorf("new field order=%d category=%d, want 4/0", field.Order, field.Category())
	}
	if len(out) != len(qs)+1 {
		t.Fatalf("len = %d, want %d", len(out), len(qs)+1)
	}
	assertInvariants(t, out)
	if got := categoryOf(out, "symptoms"); got != 5 {
		t.Errorf("symptoms category = %d, want 5", got)
	}
	if _, ok := field.LanguageVersions["English"]; !ok {
		t.Error("expected an empty language version per template language")
	}
}

func TestAddField_Ungrouped(t *testing.T) {
	out, field, err := AddField(fixture(), question.NoCategory, question.TypeDate, langs)
	if err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if field.Order != 0 || field.CategoryIndex != nil {
		t.Errorf("ungrouped field order=%d category=%v", field.Order, field.CategoryIndex)
	}
	assertInvariants(t, out)
}

func TestAddField_Errors(t *testing.T) {
	qs := fixture()
	if _, _, err := AddField(qs, 2, question.TypeString, langs); !errors.Is(err, ErrNotCategory) {
		t.Errorf("expected ErrNotCategory, got %v", err)
	}
	if _, _, err := AddField(qs, 40, question.TypeString, langs); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := AddField(qs, 0, question.TypeCategory, langs); !errors.Is(err, ErrNotAnswerable) {
		t.Errorf("expected ErrNotAnswerable, got %v", err)
	}
}

func TestAddCategory_Appends(t *testing.T) {
	out, c := AddCategory(fixture(), langs)
	if c.Order != 7 || !c.IsCategory() {
		t.Errorf("category order=%d type=%s", c.Order, c.Type)
	}
	assertInvariants(t, out)
}

func TestNormalize_SparseOrders(t *testing.T) {
	qs := []question.Question{
		{ID: "b", Order: 20, Type: question.TypeString, CategoryIndex: question.Int(10),
			VisibleCondition: []question.Condition{{QuestionOrder: 15, RequiredOptionIDs: []int{1}}}},
		{ID: "a", Order: 10, Type: question.TypeCategory},
		{ID: "c", Order: 15, Type: question.TypeMultipleChoice, CategoryIndex: question.Int(10)},
	}
	out := Normalize(qs)
	assertIDs(t, out, "a", "c", "b")
	assertInvariants(t, out)
	if out[2].VisibleCondition[0].QuestionOrder != 1 {
		t.Errorf("condition = %d, want 1", out[2].VisibleCondition[0].QuestionOrder)
	}
}

func TestRandomOperations_PreserveInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	qs := fixture()
	for step := 0; step < 500; step++ {
		n := len(qs)
		switch op := rng.Intn(6); {
		case op == 0:
			qs, _ = AddCategory(qs, langs)
		case op == 1 && n > 0:
			cat := question.NoCategory
			for i := rng.Intn(n); i >= 0; i-- {
				if qs[i].IsCategory() {
					cat = qs[i].Order
					break
				}
			}
			types := []question.Type{question.TypeString, question.TypeInteger, question.TypeMultipleChoice}
			var err error
			qs, _, err = AddField(qs, cat, types[rng.Intn(len(types))], langs)
			if err != nil {
				t.Fatalf("step %d AddField: %v", step, err)
			}
		case op == 2 && n > 0:
			qs = MoveUp(qs, rng.Intn(n))
		case op == 3 && n > 0:
			qs = MoveDown(qs, rng.Intn(n))
		case op == 4 && n > 8:
			qs = DeleteQuestion(qs, rng.Intn(n))
		case op == 5 && n > 8:
			qs = DeleteCategory(qs, rng.Intn(n))
		}
		assertInvariants(t, qs)
	}
}
