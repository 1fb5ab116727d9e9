package plugins

import (
	"context"
	"regexp"
	"strings"

	"github.com/wudi/screenkit/capture"
	"github.com/wudi/screenkit/enhance"
	"github.com/wudi/screenkit/enhance/toolkit"
	"github.com/wudi/screenkit/recognition"
)

var urlPattern = regexp.MustCompile(`^(https?://)?[a-zA-Z0-9][a-zA-Z0-9.-]*\.[a-zA-Z]{2,}(/\S*)?$`)

// Browser enhances recognition output from web browsers: address-bar URLs,
// page titles, and search queries.
type Browser struct {
	base
}

// NewBrowser constructs the browser plugin.
func NewBrowser() *Browser {
	return &Browser{base: base{
		id: "builtin.browser",
		patterns: []string{
			"com.google.Chrome",
			"com.google.Chrome.*",
			"org.mozilla.*",
			"com.apple.Safari",
			"com.microsoft.edgemac",
			"company.thebrowser.Browser",
		},
	}}
}

func (p *Browser) Enhance(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.EnhancedResult, error) {
	var out []enhance.EnhancedResult
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(r.Text)
		switch {
		case urlPattern.MatchString(text):
			out = append(out, enhance.EnhancedResult{
				Original:     r,
				SemanticType: "url",
				StructuredData: map[string]enhance.Value{
					"host": enhance.StringValue(hostOf(text)),
				},
			})
		case r.Region.Y < 80 && text == strings.TrimSpace(app.WindowTitle):
			out = append(out, enhance.EnhancedResult{
				Original:     r,
				SemanticType: "page_title",
			})
		}
	}
	return out, nil
}

func (p *Browser) ExtractStructured(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.StructuredElement, error) {
	var out []enhance.StructuredElement
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(r.Text)
		if !urlPattern.MatchString(text) {
			continue
		}
		out = append(out, newElement("visited_url", text, map[string]enhance.Value{
			"host":    enhance.StringValue(hostOf(text)),
			"browser": enhance.StringValue(app.AppName),
		}, regionCopy(r.Region), r.Confidence))
	}
	for _, el := range toolkit.DetectInteractive(results) {
		if el.Kind != "link" {
			continue
		}
		out = append(out, newElement("link", strings.TrimSpace(el.Result.Text), nil,
			regionCopy(el.Result.Region), el.Result.Confidence))
	}
	return out, nil
}

func hostOf(raw string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}
