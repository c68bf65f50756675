// Package wire defines the JSON shapes exchanged with the forms backend and
// converts between them and the question model.
package wire

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chw/forms/internal/formengine/question"
)

// Bound is a numeric limit. It always travels with two fixed decimals so the
// stored value does not drift through float round trips.
type Bound struct {
	d decimal.Decimal
}

// NewBound rounds v to two decimals.
func NewBound(v float64) *Bound {
	return &Bound{d: decimal.NewFromFloat(v).Round(2)}
}

func (b Bound) Float64() float64 {
	f, _ := b.d.Float64()
	return f
}

func (b Bound) String() string { return b.d.StringFixed(2) }

func (b Bound) MarshalJSON() ([]byte, error) {
	return []byte(b.d.StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number or a quoted number.
func (b *Bound) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("numeric bound %s: %w", data, err)
	}
	b.d = d.Round(2)
	return nil
}

type Classification struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MCOption struct {
	MCID int    `json:"mcid"`
	Opt  string `json:"opt"`
}

type LangVersion struct {
	Lang         string     `json:"lang"`
	QuestionText string     `json:"questionText"`
	MCOptions    []MCOption `json:"mcOptions"`
}

type VisibleCondition struct {
	QuestionIndex int   `json:"questionIndex"`
	MCIDArray     []int `json:"mcidArray"`
}

// Answers is the answer payload of one question. Exactly the field matching
// the question's answer kind is set.
type Answers struct {
	MCIDArray []int    `json:"mcIdArray,omitempty"`
	Text      *string  `json:"text,omitempty"`
	Number    *float64 `json:"number,omitempty"`
}

// Empty reports whether a carries no usable value.
func (a Answers) Empty() bool {
	return len(a.MCIDArray) == 0 && (a.Text == nil || *a.Text == "") && a.Number == nil
}

type Question struct {
	ID                   string             `json:"id,omitempty"`
	QuestionIndex        int                `json:"questionIndex"`
	QuestionType         question.Type      `json:"questionType"`
	Required             bool               `json:"required"`
	NumMin               *Bound             `json:"numMin"`
	NumMax               *Bound             `json:"numMax"`
	StringMaxLength      *int               `json:"stringMaxLength"`
	StringMaxLines       *int               `json:"stringMaxLines"`
	Units                string             `json:"units,omitempty"`
	AllowFutureDates     *bool              `json:"allowFutureDates,omitempty"`
	AllowPastDates       *bool              `json:"allowPastDates,omitempty"`
	CategoryIndex        *int               `json:"categoryIndex"`
	VisibleCondition     []VisibleCondition `json:"visibleCondition"`
	QuestionLangVersions []LangVersion      `json:"questionLangVersions"`
}

type Template struct {
	ID             string         `json:"id,omitempty"`
	Classification Classification `json:"classification"`
	Version        string         `json:"version,omitempty"`
	Archived       bool           `json:"archived,omitempty"`
	Languages      []string       `json:"languages"`
	Questions      []Question     `json:"questions"`
}

// ResponseQuestion is a question of a form response with its answer.
type ResponseQuestion struct {
	Question
	Answers Answers `json:"answers"`
	IsBlank bool    `json:"isBlank"`
}

// CreateBody submits a new form response. The template id and version are
// not part of it; the server assigns its own.
type CreateBody struct {
	PatientID      string             `json:"patientId"`
	FormTemplateID string             `json:"formTemplateId,omitempty"`
	Classification Classification     `json:"classification"`
	Languages      []string           `json:"languages"`
	Questions      []ResponseQuestion `json:"questions"`
}

// EditDelta replaces the answer of one stored question response.
type EditDelta struct {
	ID      string  `json:"id"`
	Answers Answers `json:"answers"`
}

// Response is a stored form response as returned by the server.
type Response struct {
	ID             string             `json:"id"`
	FormTemplateID string             `json:"formTemplateId"`
	PatientID      string             `json:"patientId"`
	Version        string             `json:"version,omitempty"`
	Classification Classification     `json:"classification"`
	Languages      []string           `json:"languages"`
	Questions      []ResponseQuestion `json:"questions"`
	DateCreated    int64              `json:"dateCreated,omitempty"`
	LastEdited     int64              `json:"lastEdited,omitempty"`
}

// -- Conversion --

// ToModel converts a wire template into the question model.
func ToModel(t Template) question.Template {
	out := question.Template{
		ID:                 t.ID,
		ClassificationID:   t.Classification.ID,
		ClassificationName: t.Classification.Name,
		Version:            t.Version,
		Languages:          append([]string(nil), t.Languages...),
		Questions:          make([]question.Question, 0, len(t.Questions)),
	}
	for _, q := range t.Questions {
		out.Questions = append(out.Questions, QuestionToModel(q))
	}
	question.SortByOrder(out.Questions)
	return out
}

// QuestionToModel converts one wire question.
func QuestionToModel(q Question) question.Question {
	out := question.Question{
		ID:               q.ID,
		Order:            q.QuestionIndex,
		Type:             q.QuestionType,
		Required:         q.Required,
		Units:            q.Units,
		StringMaxLength:  copyInt(q.StringMaxLength),
		StringMaxLines:   copyInt(q.StringMaxLines),
		AllowFutureDates: copyBool(q.AllowFutureDates),
		AllowPastDates:   copyBool(q.AllowPastDates),
		CategoryIndex:    copyInt(q.CategoryIndex),
		LanguageVersions: make(map[string]question.LanguageVersion, len(q.QuestionLangVersions)),
	}
	if q.NumMin != nil {
		out.NumMin = question.Float(q.NumMin.Float64())
	}
	if q.NumMax != nil {
		out.NumMax = question.Float(q.NumMax.Float64())
	}
	for _, c := range q.VisibleCondition {
		out.VisibleCondition = append(out.VisibleCondition, question.Condition{
			QuestionOrder:     c.QuestionIndex,
			RequiredOptionIDs: append([]int(nil), c.MCIDArray...),
		})
	}
	for _, lv := range q.QuestionLangVersions {
		v := question.LanguageVersion{Language: lv.Lang, Text: lv.QuestionText}
		for _, o := range lv.MCOptions {
			v.Options = append(v.Options, question.Option{ID: o.MCID, Text: o.Opt})
		}
		out.LanguageVersions[lv.Lang] = v
	}
	return out
}

// FromModel converts a template to its wire form.
func FromModel(t question.Template) Template {
	out := Template{
		ID:             t.ID,
		Classification: Classification{ID: t.ClassificationID, Name: t.ClassificationName},
		Version:        t.Version,
		Languages:      append([]string{}, t.Languages...),
		Questions:      make([]Question, 0, len(t.Questions)),
	}
	qs := question.CloneAll(t.Questions)
	question.SortByOrder(qs)
	for _, q := range qs {
		out.Questions = append(out.Questions, QuestionFromModel(q, t.Languages))
	}
	return out
}

// QuestionFromModel converts one question. Language versions follow the
// order of languages, then any others alphabetically.
func QuestionFromModel(q question.Question, languages []string) Question {
	out := Question{
		ID:               q.ID,
		QuestionIndex:    q.Order,
		QuestionType:     q.Type,
		Required:         q.Required,
		Units:            q.Units,
		StringMaxLength:  copyInt(q.StringMaxLength),
		StringMaxLines:   copyInt(q.StringMaxLines),
		AllowFutureDates: copyBool(q.AllowFutureDates),
		AllowPastDates:   copyBool(q.AllowPastDates),
		CategoryIndex:    copyInt(q.CategoryIndex),
		VisibleCondition: []VisibleCondition{},
	}
	if q.NumMin != nil {
		out.NumMin = NewBound(*q.NumMin)
	}
	if q.NumMax != nil {
		out.NumMax = NewBound(*q.NumMax)
	}
	for _, c := range q.VisibleCondition {
		out.VisibleCondition = append(out.VisibleCondition, VisibleCondition{
			QuestionIndex: c.QuestionOrder,
			MCIDArray:     append([]int{}, c.RequiredOptionIDs...),
		})
	}
	for _, lang := range languageOrder(q, languages) {
		lv := q.LanguageVersions[lang]
		v := LangVersion{Lang: lang, QuestionText: lv.Text, MCOptions: []MCOption{}}
		for _, o := range lv.Options {
			v.MCOptions = append(v.MCOptions, MCOption{MCID: o.ID, Opt: o.Text})
		}
		out.QuestionLangVersions = append(out.QuestionLangVersions, v)
	}
	return out
}

func languageOrder(q question.Question, languages []string) []string {
	seen := make(map[string]bool, len(q.LanguageVersions))
	var out []string
	for _, l := range languages {
		if _, ok := q.LanguageVersions[l]; ok && !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	var rest []string
	for l := range q.LanguageVersions {
		if !seen[l] {
			rest = append(rest, l)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
