package wire

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/chw/forms/internal/formengine/question"
)

const templateJSON = `{
  "id": "tmpl-1",
  "classification": {"id": "cls-1", "name": "Antenatal visit"},
  "version": "V1",
  "languages": ["English", "French"],
  "questions": [
    {"questionIndex": 0, "questionType": "CATEGORY", "required": false,
     "numMin": null, "numMax": null, "stringMaxLength": null, "stringMaxLines": null,
     "categoryIndex": null, "visibleCondition": [],
     "questionLangVersions": [
       {"lang": "English", "questionText": "Pregnancy", "mcOptions": []},
       {"lang": "French", "questionText": "Grossesse", "mcOptions": []}]},
    {"questionIndex": 1, "questionType": "MULTIPLE_CHOICE", "required": true,
     "categoryIndex": 0, "visibleCondition": [],
     "questionLangVersions": [
       {"lang": "French", "questionText": "Première ?", "mcOptions": [{"mcid": 0, "opt": "Oui"}, {"mcid": 1, "opt": "Non"}]},
       {"lang": "English", "questionText": "First?", "mcOptions": [{"mcid": 0, "opt": "Yes"}, {"mcid": 1, "opt": "No"}]}]},
    {"questionIndex": 2, "questionType": "INTEGER", "required": false,
     "numMin": "0.5", "numMax": 45.333, "units": "weeks", "categoryIndex": 0,
     "visibleCondition": [{"questionIndex": 1, "mcidArray": [0]}],
     "questionLangVersions": [
       {"lang": "English", "questionText": "Gestational age", "mcOptions": []},
       {"lang": "French", "questionText": "Âge gestationnel", "mcOptions": []}]}
  ]
}`

func TestToModel(t *testing.T) {
	var w Template
	if err := json.Unmarshal([]byte(templateJSON), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m := ToModel(w)

	if m.ClassificationName != "Antenatal visit" || m.Version != "V1" || len(m.Questions) != 3 {
		t.Fatalf("unexpected template: %+v", m)
	}
	q := m.Questions[2]
	if q.NumMin == nil || *q.NumMin != 0.5 || q.NumMax == nil || *q.NumMax != 45.33 {
		t.Errorf("bounds = %v, %v", q.NumMin, q.NumMax)
	}
	if q.Category() != 0 || len(q.VisibleCondition) != 1 || q.VisibleCondition[0].RequiredOptionIDs[0] != 0 {
		t.Errorf("references lost: %+v", q)
	}
	if id, ok := m.Questions[1].OptionID("French", "Non"); !ok || id != 1 {
		t.Errorf("OptionID(French, Non) = %d, %v", id, ok)
	}
	if m.Questions[0].CategoryIndex != nil {
		t.Error("null categoryIndex should stay nil")
	}
}

func TestFromModel_BoundsUseTwoDecimals(t *testing.T) {
	tmpl := question.Template{
		Languages: []string{"English"},
		Questions: []question.Question{{
			Order:            0,
			Type:             question.TypeInteger,
			NumMin:           question.Float(10),
			NumMax:           question.Float(0.1 + 0.2),
			LanguageVersions: map[string]question.LanguageVersion{"English": {Language: "English", Text: "Pulse"}},
		}},
	}
	data, err := json.Marshal(FromModel(tmpl))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"numMin":10.00`) || !strings.Contains(s, `"numMax":0.30`) {
		t.Errorf("bounds not fixed to two decimals: %s", s)
	}
	if !strings.Contains(s, `"stringMaxLength":null`) {
		t.Errorf("unset limits should be null: %s", s)
	}
}

func TestFromModel_LanguageOrder(t *testing.T) {
	q := question.Question{LanguageVersions: map[string]question.LanguageVersion{
		"Swahili": {Text: "a"}, "English": {Text: "b"}, "Amharic": {Text: "c"}, "French": {Text: "d"},
	}}
	w := QuestionFromModel(q, []string{"French", "English"})
	var got []string
	for _, lv := range w.QuestionLangVersions {
		got = append(got, lv.Lang)
	}
	want := []string{"French", "English", "Amharic", "Swahili"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestModelRoundTrip(t *testing.T) {
	var w Template
	if err := json.Unmarshal([]byte(templateJSON), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m := ToModel(w)
	back := ToModel(FromModel(m))
	if !reflect.DeepEqual(m, back) {
		t.Errorf("round trip changed the template:\n%+v\n%+v", m, back)
	}
}

func TestBound_RejectsGarbage(t *testing.T) {
	var b Bound
	if err := json.Unmarshal([]byte(`"ten"`), &b); err == nil {
		t.Error("expected an error")
	}
}

func TestAnswers_Empty(t *testing.T) {
	empty := ""
	zero := 0.0
	tests := []struct {
		a    Answers
		want bool
	}{
		{Answers{}, true},
		{Answers{MCIDArray: []int{}}, true},
		{Answers{Text: &empty}, true},
		{Answers{Number: &zero}, false},
		{Answers{MCIDArray: []int{2}}, false},
	}
	for i, tt := range tests {
		if got := tt.a.Empty(); got != tt.want {
			t.Errorf("case %d: Empty() = %v, want %v", i, got, tt.want)
		}
	}
}
