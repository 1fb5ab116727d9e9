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

var emailPattern = regexp.MustCompile(`^[\w.+-]+@[\w-]+\.[\w.-]+$`)

// Mail enhances recognition output from mail clients. It leans on the
// toolkit's label/value pairing for header fields (From:, To:, Subject:).
type Mail struct {
	base
	pairOpts toolkit.PairOptions
}

// NewMail constructs the mail plugin.
func NewMail() *Mail {
	return &Mail{
		base: base{
			id: "builtin.mail",
			patterns: []string{
				"com.apple.mail",
				"com.microsoft.Outlook",
				"com.readdle.smartemail-Mac",
				"org.mozilla.thunderbird",
			},
		},
		pairOpts: toolkit.DefaultPairOptions(),
	}
}

func (p *Mail) Enhance(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.EnhancedResult, error) {
	var out []enhance.EnhancedResult
	for _, pair := range toolkit.PairLabels(results, p.pairOpts) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		field := normalizeHeader(pair.Label.Text)
		if field == "" {
			continue
		}
		out = append(out, enhance.EnhancedResult{
			Original:     pair.Value,
			SemanticType: "mail_header",
			StructuredData: map[string]enhance.Value{
				"field": enhance.StringValue(field),
			},
		})
	}
	return out, nil
}

func (p *Mail) ExtractStructured(ctx context.Context, results []recognition.Result, app capture.ApplicationContext) ([]enhance.StructuredElement, error) {
	var out []enhance.StructuredElement
	for _, pair := range toolkit.PairLabels(results, p.pairOpts) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		field := normalizeHeader(pair.Label.Text)
		if field == "" {
			continue
		}
		meta := map[string]enhance.Value{
			"field":  enhance.StringValue(field),
			"client": enhance.StringValue(app.AppName),
		}
		value := strings.TrimSpace(pair.Value.Text)
		if emailPattern.MatchString(value) {
			meta["address"] = enhance.BoolValue(true)
		}
		out = append(out, newElement("mail_"+field, value, meta,
			regionCopy(pair.Value.Region), pair.Confidence))
	}
	return out, nil
}

func normalizeHeader(label string) string {
	switch strings.ToLower(strings.TrimRight(strings.TrimSpace(label), ":")) {
	case "from":
		return "from"
	case "to":
		return "to"
	case "cc":
		return "cc"
	case "subject":
		return "subject"
	case "email":
		return "email"
	}
	return ""
}
