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
	promptPattern   = regexp.MustCompile(`^[\w.@~/-]*[$%#>]\s+\S`)
	exitCodePattern = regexp.MustCompile(`(?i)exit (status|code) (\d+)`)
)

// Terminal enhances recognition output from terminal emulators: executed
// commands and process exit statuses.
type Terminal struct {
	base
}

// NewTerminal constructs the terminal plugin.
func NewTerminal() *Terminal {
	return &Terminal{base: base{
		id: "builtin.terminal",
		patterns: []string{
			"com.apple.Terminal",
			"com.googlecode.iterm2",
			"com.mitchellh.ghostty",
			"net.kovidgoyal.kitty",
			"org.alacritty",
		},
	}}
}

func (p *Terminal) Enhance(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.EnhancedResult, error) {
	var out []enhance.EnhancedResult
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(r.Text)
		if promptPattern.MatchString(text) {
			out = append(out, enhance.EnhancedResult{
				Original:     r,
				SemanticType: "command_line",
				StructuredData: map[string]enhance.Value{
					"command": enhance.StringValue(commandOf(text)),
				},
			})
		}
	}
	return out, nil
}

func (p *Terminal) ExtractStructured(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.StructuredElement, error) {
	var out []enhance.StructuredElement
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(r.Text)
		switch {
		case promptPattern.MatchString(text):
			out = append(out, newElement("command", commandOf(text), map[string]enhance.Value{
				"terminal": enhance.StringValue(app.AppName),
			}, regionCopy(r.Region), r.Confidence))
		case exitCodePattern.MatchString(text):
			m := exitCodePattern.FindStringSubmatch(text)
			out = append(out, newElement("exit_status", m[2], nil, regionCopy(r.Region), r.Confidence))
		}
	}
	return out, nil
}

// commandOf strips the shell prompt prefix from a recognized line.
func commandOf(line string) string {
	for _, sep := range []string{"$ ", "% ", "# ", "> "} {
		if i := strings.Index(line, sep); i >= 0 {
			return strings.TrimSpace(line[i+len(sep):])
		}
	}
	return line
}
