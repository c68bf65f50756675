package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chw/forms/internal/domain/forms"
	"github.com/chw/forms/internal/formengine/question"
	"github.com/chw/forms/internal/formengine/render"
	"github.com/chw/forms/internal/platform/db"
)

func loadTemplate(path string) (question.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return question.Template{}, err
	}
	in, err := forms.DecodeTemplate(data)
	if err != nil {
		return question.Template{}, err
	}
	return forms.CheckTemplate(in)
}

// validateTemplate prints every authoring problem in the file and fails when
// there is at least one.
func validateTemplate(w io.Writer, path string) error {
	model, err := loadTemplate(path)
	var ve *forms.ValidationError
	if errors.As(err, &ve) {
		for _, se := range ve.SchemaErrors {
			if se.Language != "" {
				fmt.Fprintf(w, "%s [%s]: %s\n", path, se.Language, se.Error())
				continue
			}
			fmt.Fprintf(w, "%s: %s\n", path, se.Error())
		}
		return fmt.Errorf("%s: %d problem(s)", path, len(ve.SchemaErrors))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: ok (%s, %d questions, languages: %s)\n",
		path, model.ClassificationName, len(model.Questions), joinOrDash(model.Languages))
	return nil
}

func previewTemplate(w io.Writer, path, lang string) error {
	model, err := loadTemplate(path)
	if err != nil {
		return err
	}
	lang = question.Resolve(model.Languages, lang)
	if lang == "" {
		return fmt.Errorf("%s: template declares no languages", path)
	}

	s := render.NewSession(model, render.ModeCreate, lang, "", nil)
	fmt.Fprintf(w, "%s (%s)\n", model.ClassificationName, lang)
	return render.Preview(w, s.Fields())
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
