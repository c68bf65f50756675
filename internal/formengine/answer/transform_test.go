package answer

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/chw/forms/internal/formengine/question"
	"github.com/chw/forms/internal/formengine/wire"
)

func versions(texts map[string][]string) map[string]question.LanguageVersion {
	out := make(map[string]question.LanguageVersion, len(texts))
	for lang, opts := range texts {
		lv := question.LanguageVersion{Language: lang, Text: lang + " text"}
		for i, o := range opts {
			lv.Options = append(lv.Options, question.Option{ID: i, Text: o})
		}
		out[lang] = lv
	}
	return out
}

func testTemplate() question.Template {
	return question.Template{
		ID:                 "tmpl-7",
		ClassificationID:   "cls-2",
		ClassificationName: "Household visit",
		Version:            "V3",
		Languages:          []string{"English", "French"},
		Questions: []question.Question{
			{ID: "qr-0", Order: 0, Type: question.TypeCategory, LanguageVersions: versions(map[string][]string{"English": nil, "French": nil})},
			{ID: "qr-1", Order: 1, Type: question.TypeMultipleChoice, CategoryIndex: question.Int(0),
				LanguageVersions: versions(map[string][]string{"English": {"Yes", "No"}, "French": {"Oui", "Non"}})},
			{ID: "qr-2", Order: 2, Type: question.TypeMultipleSelect, CategoryIndex: question.Int(0),
				LanguageVersions: versions(map[string][]string{"English": {"Cough", "Fever", "Rash"}, "French": {"Toux", "Fièvre", "Éruption"}})},
			{ID: "qr-3", Order: 3, Type: question.TypeInteger, NumMin: question.Float(0), NumMax: question.Float(120),
				LanguageVersions: versions(map[string][]string{"English": nil, "French": nil})},
			{ID: "qr-4", Order: 4, Type: question.TypeString, LanguageVersions: versions(map[string][]string{"English": nil, "French": nil})},
			{ID: "qr-5", Order: 5, Type: question.TypeDate, LanguageVersions: versions(map[string][]string{"English": nil, "French": nil})},
			{ID: "qr-6", Order: 6, Type: question.TypeDateTime, LanguageVersions: versions(map[string][]string{"English": nil, "French": nil})},
		},
	}
}

func TestToAPIAnswers(t *testing.T) {
	qs := testTemplate().Questions
	answers := Set{
		0: Text("ignored"),
		1: Choice{"No"},
		2: Choice{"Rash", "Cough", "Sneeze"},
		3: ParseNumber("37"),
		4: Text("lives alone"),
		5: Moment(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
		9: Text("orphan"),
	}

	got, dropped := ToAPIAnswers(answers, qs, "English")
	if !reflect.DeepEqual(dropped, []int{9}) {
		t.Errorf("dropped = %v, want [9]", dropped)
	}
	if len(got) != 5 {
		t.Fatalf("answers = %+v", got)
	}
	if !reflect.DeepEqual(got[0].Answer.MCIDArray, []int{1}) {
		t.Errorf("single choice ids = %v", got[0].Answer.MCIDArray)
	}
	if !reflect.DeepEqual(got[1].Answer.MCIDArray, []int{2, 0}) {
		t.Errorf("multi select ids = %v, unknown text should be skipped", got[1].Answer.MCIDArray)
	}
	if got[2].Answer.Number == nil || *got[2].Answer.Number != 37 {
		t.Errorf("number = %v", got[2].Answer.Number)
	}
	if got[3].Answer.Text == nil || *got[3].Answer.Text != "lives alone" {
		t.Errorf("text = %v", got[3].Answer.Text)
	}
	if got[4].Answer.Number == nil || *got[4].Answer.Number != 1704153600 {
		t.Errorf("date should travel as epoch seconds, got %v", got[4].Answer.Number)
	}
}

func TestToAPIAnswers_KindMismatchIsDropped(t *testing.T) {
	_, dropped := ToAPIAnswers(Set{3: Text("37")}, testTemplate().Questions, "English")
	if !reflect.DeepEqual(dropped, []int{3}) {
		t.Errorf("dropped = %v", dropped)
	}
}

func TestToAPIAnswers_ResolvesPerLanguage(t *testing.T) {
	qs := testTemplate().Questions
	got, _ := ToAPIAnswers(Set{1: Choice{"Oui"}}, qs, "French")
	if len(got) != 1 || !reflect.DeepEqual(got[0].Answer.MCIDArray, []int{0}) {
		t.Errorf("got %+v", got)
	}
}

func randomValue(r *rand.Rand, q question.Question) Value {
	switch q.Type {
	case question.TypeMultipleChoice:
		opts := q.LanguageVersions["French"].Options
		return Choice{opts[r.Intn(len(opts))].Text}
	case question.TypeMultipleSelect:
		var c Choice
		for _, o := range q.LanguageVersions["French"].Options {
			if r.Intn(2) == 0 {
				c = append(c, o.Text)
			}
		}
		if len(c) == 0 {
			c = Choice{q.LanguageVersions["French"].Options[0].Text}
		}
		return c
	case question.TypeInteger:
		return NewNumber(float64(r.Intn(500) - 100))
	case question.TypeString:
		return Text(strings.Repeat("é", 1+r.Intn(20)))
	case question.TypeDate, question.TypeDateTime:
		return NewNumber(float64(r.Int63n(2_000_000_000)))
	}
	return nil
}

func TestRoundTrip(t *testing.T) {
	qs := testTemplate().Questions
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		answers := Set{}
		for _, q := range qs {
			if v := randomValue(r, q); v != nil && r.Intn(4) > 0 {
				answers = answers.With(q.Order, v)
			}
		}

		api, dropped := ToAPIAnswers(answers, qs, "French")
		if len(dropped) != 0 {
			t.Fatalf("iteration %d: unexpected drops %v", i, dropped)
		}
		back := FromAPIAnswers(api, qs, "French")

		for _, q := range qs {
			if q.IsCategory() {
				continue
			}
			if !Equal(answers.Get(q.Order), back.Get(q.Order)) {
				t.Fatalf("iteration %d, question %d: %#v became %#v", i, q.Order, answers.Get(q.Order), back.Get(q.Order))
			}
		}
	}
}

func TestToCreateBody(t *testing.T) {
	tmpl := testTemplate()
	api, _ := ToAPIAnswers(Set{1: Choice{"Yes"}, 4: Text("")}, tmpl.Questions, "English")

	body := ToCreateBody(api, tmpl, "patient-42")
	if body.PatientID != "patient-42" || body.FormTemplateID != "tmpl-7" {
		t.Errorf("identity = %q, %q", body.PatientID, body.FormTemplateID)
	}
	if len(body.Questions) != len(tmpl.Questions) {
		t.Fatalf("questions = %d", len(body.Questions))
	}
	for _, q := range body.Questions {
		if q.ID != "" {
			t.Errorf("question %d kept its id", q.QuestionIndex)
		}
		wantBlank := q.QuestionIndex != 1
		if q.IsBlank != wantBlank {
			t.Errorf("question %d isBlank = %v, want %v", q.QuestionIndex, q.IsBlank, wantBlank)
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, key := range []string{`"version"`, `"id":"tmpl-7"`} {
		if strings.Contains(s, key) {
			t.Errorf("create body should not carry %s: %s", key, s)
		}
	}
	if !strings.Contains(s, `"answers":{"mcIdArray":[0]},"isBlank":false`) {
		t.Errorf("answer not embedded: %s", s)
	}
	if !strings.Contains(s, `"numMin":0.00`) {
		t.Errorf("bounds not fixed: %s", s)
	}
}

func TestToEditBody(t *testing.T) {
	qs := testTemplate().Questions
	qs[4].ID = ""
	api, _ := ToAPIAnswers(Set{3: NewNumber(64), 4: Text("unaddressable"), 2: Choice{}}, qs, "English")

	got := ToEditBody(api, qs)
	if len(got) != 2 {
		t.Fatalf("deltas = %+v", got)
	}
	if got[0].ID != "qr-2" || !got[0].Answers.Empty() {
		t.Errorf("cleared selection should be sent blank: %+v", got[0])
	}
	if got[1].ID != "qr-3" || *got[1].Answers.Number != 64 {
		t.Errorf("unexpected delta: %+v", got[1])
	}
}

func TestToPostBody(t *testing.T) {
	tmpl := testTemplate()
	api, _ := ToAPIAnswers(Set{4: Text("note")}, tmpl.Questions, "English")

	edit := ToPostBody(api, tmpl, "p-1", true)
	if !edit.IsEdit() {
		t.Fatal("expected edit body")
	}
	data, _ := json.Marshal(edit)
	if string(data) != `[{"id":"qr-4","answers":{"text":"note"}}]` {
		t.Errorf("edit JSON = %s", data)
	}

	create := ToPostBody(api, tmpl, "p-1", false)
	if create.IsEdit() {
		t.Fatal("expected create body")
	}
	data, _ = json.Marshal(create)
	var decoded wire.CreateBody
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("create JSON does not decode: %v", err)
	}
	if decoded.PatientID != "p-1" || len(decoded.Questions) != 7 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestFromResponse(t *testing.T) {
	n := 12.0
	rqs := []wire.ResponseQuestion{
		{Question: wire.Question{QuestionIndex: 3}, Answers: wire.Answers{Number: &n}},
		{Question: wire.Question{QuestionIndex: 4}, IsBlank: true},
	}
	got := FromResponse(rqs)
	if len(got) != 1 || got[0].QuestionOrder != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestSet_CopyOnWrite(t *testing.T) {
	c := Choice{"A"}
	s := Set{}.With(1, c)
	c[0] = "B"
	if s.Get(1).(Choice)[0] != "A" {
		t.Error("With should copy choice slices")
	}
	s2 := s.With(2, Text("x"))
	if _, ok := s[2]; ok {
		t.Error("With mutated the receiver")
	}
	if len(s2.Without(1)) != 1 || len(s2) != 2 {
		t.Error("Without mutated the receiver")
	}
	if got := s2.Exclude(map[int]bool{2: true}); len(got) != 1 || got.Get(2) != nil {
		t.Errorf("Exclude = %v", got)
	}
}

func TestChoiceToggle(t *testing.T) {
	c := Choice{"A", "B"}.Toggle("A").Toggle("C")
	if !reflect.DeepEqual(c, Choice{"B", "C"}) {
		t.Errorf("got %v", c)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw   string
		valid bool
		blank bool
	}{
		{"42", true, false},
		{" 3.5 ", true, false},
		{"", false, true},
		{"   ", false, true},
		{"abc", false, false},
		{"NaN", false, false},
	}
	for _, tt := range tests {
		n := ParseNumber(tt.raw)
		if n.Valid != tt.valid || n.Blank() != tt.blank {
			t.Errorf("ParseNumber(%q) = %+v", tt.raw, n)
		}
	}
}
