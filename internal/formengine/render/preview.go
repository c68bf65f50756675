package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Preview writes a plain-text rendering of fields.
func Preview(w io.Writer, fields []Field) error {
	bw := bufio.NewWriter(w)
	n := 0
	for _, f := range fields {
		if f.Widget == WidgetHeading {
			fmt.Fprintf(bw, "\n== %s ==\n", f.Text)
			continue
		}
		n++
		indent := ""
		if f.Category >= 0 {
			indent = "  "
		}
		mark := ""
		if f.Required {
			mark = " *"
		}
		fmt.Fprintf(bw, "%s%d. %s%s%s\n", indent, n, f.Text, mark, hint(f))

		for _, o := range f.Options {
			box := "( )"
			if f.Widget == WidgetCheckbox {
				box = "[ ]"
			}
			if o.Selected {
				box = box[:1] + "x" + box[2:]
			}
			fmt.Fprintf(bw, "%s   %s %s\n", indent, box, o.Text)
		}
		if len(f.Options) == 0 {
			value := f.Input
			if value == "" {
				value = "____"
			}
			for _, line := range strings.Split(value, "\n") {
				fmt.Fprintf(bw, "%s   > %s\n", indent, line)
			}
		}
		if f.Error != nil {
			fmt.Fprintf(bw, "%s   ! %s\n", indent, f.Error.Message)
		}
	}
	return bw.Flush()
}

func hint(f Field) string {
	var parts []string
	switch f.Widget {
	case WidgetNumber:
		switch {
		case f.Min != nil && f.Max != nil:
			parts = append(parts, fmt.Sprintf("%g-%g", *f.Min, *f.Max))
		case f.Min != nil:
			parts = append(parts, fmt.Sprintf(">= %g", *f.Min))
		case f.Max != nil:
			parts = append(parts, fmt.Sprintf("<= %g", *f.Max))
		}
		if f.Units != "" {
			parts = append(parts, f.Units)
		}
	case WidgetTextArea:
		if f.MaxLength != nil {
			parts = append(parts, fmt.Sprintf("max %d chars", *f.MaxLength))
		}
		if f.MaxLines != nil {
			parts = append(parts, fmt.Sprintf("max %d lines", *f.MaxLines))
		}
	case WidgetDate, WidgetDateTime:
		parts = append(parts, string(f.Widget))
	case WidgetCheckbox:
		parts = append(parts, "select all that apply")
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
