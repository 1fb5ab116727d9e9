package event

import "strings"

// Rule inspects an event and may claim its classification. Rules run in
// order; the first claim wins and the base table fills anything left
// unclaimed.
type Rule interface {
	Classify(ev DetectedEvent) (Classification, bool)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(ev DetectedEvent) (Classification, bool)

func (f RuleFunc) Classify(ev DetectedEvent) (Classification, bool) { return f(ev) }

// categoryFor maps the structural event type to its base category.
func categoryFor(t Type) string {
	switch t {
	case TypeFieldChange:
		return "data_modification"
	case TypeContentAdded:
		return "data_creation"
	case TypeContentRemoved:
		return "data_removal"
	}
	return "unknown"
}

// defaultPriorities is the fixed importance table, overridable per
// category via WithPriority.
var defaultPriorities = map[string]Importance{
	"data_modification": ImportanceMedium,
	"data_creation":     ImportanceMedium,
	"data_removal":      ImportanceLow,
	"security":          ImportanceCritical,
	"error":             ImportanceHigh,
	"unknown":           ImportanceLow,
}

// Classifier assigns category and importance to detected events.
type Classifier struct {
	rules      []Rule
	priorities map[string]Importance
}

// ClassifierOption mutates a Classifier during construction.
type ClassifierOption func(*Classifier)

// WithRule appends a classification rule. Rules added first win.
func WithRule(r Rule) ClassifierOption {
	return func(c *Classifier) { c.rules = append(c.rules, r) }
}

// WithPriority overrides the importance assigned to a category.
func WithPriority(category string, imp Importance) ClassifierOption {
	return func(c *Classifier) { c.priorities[category] = imp }
}

// NewClassifier builds the base classifier plus any supplied rules.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{priorities: make(map[string]Importance, len(defaultPriorities))}
	for k, v := range defaultPriorities {
		c.priorities[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify runs the rule chain, falling back to the structural category
// table. The classification confidence mirrors the event confidence; a
// classifier never claims more certainty than recognition provided.
func (c *Classifier) Classify(ev DetectedEvent) Classification {
	for _, r := range c.rules {
		if cl, ok := r.Classify(ev); ok {
			if cl.Importance == "" {
				cl.Importance = c.importance(cl.Category)
			}
			if cl.Confidence == 0 || cl.Confidence > ev.Confidence {
				cl.Confidence = ev.Confidence
			}
			return cl
		}
	}

	category := categoryFor(ev.Type)
	cl := Classification{
		Category:   category,
		Importance: c.importance(category),
		Confidence: ev.Confidence,
	}
	// A handful of lexical refinements the base classifier knows about.
	lower := strings.ToLower(ev.ValueAfter + " " + ev.ValueBefore)
	switch {
	case strings.Contains(lower, "password") || strings.Contains(lower, "2fa") || strings.Contains(lower, "passcode"):
		cl.Category = "security"
		cl.Importance = c.importance("security")
		cl.Tags = append(cl.Tags, "credentials")
	case strings.Contains(lower, "error") || strings.Contains(lower, "failed") || strings.Contains(lower, "exception"):
		cl.Category = "error"
		cl.Importance = c.importance("error")
	}
	return cl
}

func (c *Classifier) importance(category string) Importance {
	if imp, ok := c.priorities[category]; ok {
		return imp
	}
	return ImportanceLow
}
