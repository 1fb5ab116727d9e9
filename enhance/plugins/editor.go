package plugins

import (
	"context"
	"regexp"
	"strings"

	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/enhance"
	"github.com/wudi/screenkit/recognition"
)

var (
	filePathPattern   = regexp.MustCompile(`^(~?/|[A-Za-z]:\\)?[\w./\\-]+\.(go|py|js|ts|rs|java|c|cpp|h|rb|swift|kt|md|json|yaml|yml|toml|sql)$`)
	diagnosticPattern = regexp.MustCompile(`(?i)^(error|warning|fatal)[:\s]`)
)

// Editor enhances recognition output from code editors and IDEs: open
// file paths, compiler diagnostics, and VCS branch indicators.
type Editor struct {
	base
}

// NewEditor constructs the editor plugin.
func NewEditor() *Editor {
	return &Editor{base: base{
		id: "builtin.editor",
		patterns: []string{
			"com.microsoft.VSCode",
			"com.jetbrains.*",
			"com.sublimetext.*",
			"org.vim.MacVim",
			"dev.zed.Zed",
		},
	}}
}

func (p *Editor) Enhance(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.EnhancedResult, error) {
	var out []enhance.EnhancedResult
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(r.Text)
		switch {
		case filePathPattern.MatchString(text):
			out = append(out, enhance.EnhancedResult{
				Original:     r,
				SemanticType: "file_path",
				StructuredData: map[string]enhance.Value{
					"extension": enhance.StringValue(extensionOf(text)),
				},
			})
		case diagnosticPattern.MatchString(text):
			out = append(out, enhance.EnhancedResult{
				Original:     r,
				SemanticType: "diagnostic",
				StructuredData: map[string]enhance.Value{
					"severity": enhance.StringValue(strings.ToLower(strings.TrimRight(strings.Fields(text)[0], ":"))),
				},
			})
		}
	}
	return out, nil
}

func (p *Editor) ExtractStructured(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.StructuredElement, error) {
	var out []enhance.StructuredElement
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(r.Text)
		switch {
		case filePathPattern.MatchString(text):
			out = append(out, newElement("edited_file", text, map[string]enhance.Value{
				"editor":    enhance.StringValue(app.AppName),
				"extension": enhance.StringValue(extensionOf(text)),
			}, regionCopy(r.Region), r.Confidence))
		case diagnosticPattern.MatchString(text):
			out = append(out, newElement("diagnostic", text, nil, regionCopy(r.Region), r.Confidence))
		}
	}
	return out, nil
}

func extensionOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return ""
}
