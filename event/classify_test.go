package event

import "testing"

func TestClassifyBaseCategories(t *testing.T) {
	c := NewClassifier()
	cases := []struct {
		typ        Type
		wantCat    string
		wantImport Importance
	}{
		{TypeFieldChange, "data_modification", ImportanceMedium},
		{TypeContentAdded, "data_creation", ImportanceMedium},
		{TypeContentRemoved, "data_removal", ImportanceLow},
	}
	for _, tc := range cases {
		cl := c.Classify(DetectedEvent{Type: tc.typ, ValueAfter: "some text", Confidence: 0.8})
		if cl.Category != tc.wantCat {
			t.Fatalf("Classify(%s) category = %q, want %q", tc.typ, cl.Category, tc.wantCat)
		}
		if cl.Importance != tc.wantImport {
			t.Fatalf("Classify(%s) importance = %q, want %q", tc.typ, cl.Importance, tc.wantImport)
		}
		if cl.Confidence != 0.8 {
			t.Fatalf("classification confidence must mirror the event, got %v", cl.Confidence)
		}
	}
}

func TestClassifySecurityLexicalRefinement(t *testing.T) {
	c := NewClassifier()
	cl := c.Classify(DetectedEvent{
		Type:        TypeFieldChange,
		ValueBefore: "Password: ********",
		ValueAfter:  "Password: changed",
		Confidence:  0.9,
	})
	if cl.Category != "security" {
		t.Fatalf("expected security category, got %q", cl.Category)
	}
	if cl.Importance != ImportanceCritical {
		t.Fatalf("security must be critical, got %q", cl.Importance)
	}
}

func TestClassifyErrorLexicalRefinement(t *testing.T) {
	c := NewClassifier()
	cl := c.Classify(DetectedEvent{
		Type:       TypeContentAdded,
		ValueAfter: "Build failed: exit status 1",
		Confidence: 0.7,
	})
	if cl.Category != "error" || cl.Importance != ImportanceHigh {
		t.Fatalf("unexpected classification: %+v", cl)
	}
}

func TestClassifyCustomRuleWinsOverBase(t *testing.T) {
	rule := RuleFunc(func(ev DetectedEvent) (Classification, bool) {
		if ev.Target == "deploy status" {
			return Classification{Category: "deployment", Subcategory: "release"}, true
		}
		return Classification{}, false
	})
	c := NewClassifier(WithRule(rule), WithPriority("deployment", ImportanceHigh))

	cl := c.Classify(DetectedEvent{Type: TypeFieldChange, Target: "deploy status", Confidence: 0.6})
	if cl.Category != "deployment" || cl.Subcategory != "release" {
		t.Fatalf("custom rule did not claim the event: %+v", cl)
	}
	if cl.Importance != ImportanceHigh {
		t.Fatalf("overridden priority not applied: %q", cl.Importance)
	}
	if cl.Confidence != 0.6 {
		t.Fatalf("rule classification must not exceed event confidence, got %v", cl.Confidence)
	}
}

func TestClassifyPriorityOverride(t *testing.T) {
	c := NewClassifier(WithPriority("data_removal", ImportanceHigh))
	cl := c.Classify(DetectedEvent{Type: TypeContentRemoved, ValueBefore: "row 7", Confidence: 0.8})
	if cl.Importance != ImportanceHigh {
		t.Fatalf("priority override not applied: %q", cl.Importance)
	}
}
