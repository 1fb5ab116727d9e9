// Package toolkit provides generic enhancement heuristics that concrete
// plugins compose: spatial label/value pairing and interactive-element
// detection. It is a shared library, not a plugin itself.
package toolkit

import (
	"math"
	"regexp"
	"strings"

	"github.com/wudi/screenkit/recognition"
)

// LabelValuePair is a label result paired with the value it most likely
// describes. Confidence is the minimum of the two recognition confidences:
// the pairing is only as trustworthy as its weakest member.
type LabelValuePair struct {
	Label      recognition.Result
	Value      recognition.Result
	Confidence float64
}

// Pairing options. The defaults suit 1x-scale desktop UI text.
type PairOptions struct {
	// MaxDistance is the largest center-to-center distance, in pixels, at
	// which a value is considered for a label.
	MaxDistance float64
	// RightBias discounts the distance of candidates placed to the right
	// of or below the label, the dominant layouts in form UIs.
	RightBias float64
}

// DefaultPairOptions returns the tuned defaults.
func DefaultPairOptions() PairOptions {
	return PairOptions{MaxDistance: 300, RightBias: 0.6}
}

// IsLabel reports whether a result looks like a form label: short text
// ending in a colon, or a short capitalized word run.
func IsLabel(r recognition.Result) bool {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return false
	}
	if strings.HasSuffix(text, ":") {
		return true
	}
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	for _, w := range words {
		first := rune(w[0])
		if first < 'A' || first > 'Z' {
			return false
		}
	}
	return len(text) <= 24
}

// PairLabels pairs each label-looking result with its nearest
// value-looking neighbor, preferring placement to the right of or below
// the label. Each value is claimed by at most one label; ties resolve to
// the closer label. Produces exactly one pair per matched label.
func PairLabels(results []recognition.Result, opts PairOptions) []LabelValuePair {
	if opts.MaxDistance <= 0 {
		opts = DefaultPairOptions()
	}
	var labels, values []recognition.Result
	for _, r := range results {
		if IsLabel(r) {
			labels = append(labels, r)
		} else if strings.TrimSpace(r.Text) != "" {
			values = append(values, r)
		}
	}

	type claim struct {
		labelIdx int
		distance float64
	}
	claims := make(map[int]claim) // value index -> winning label
	for li, label := range labels {
		best := -1
		bestDist := math.MaxFloat64
		for vi, value := range values {
			d := pairDistance(label.Region, value.Region, opts)
			if d >= 0 && d < bestDist && d <= opts.MaxDistance {
				best = vi
				bestDist = d
			}
		}
		if best < 0 {
			continue
		}
		if prev, ok := claims[best]; !ok || bestDist < prev.distance {
			claims[best] = claim{labelIdx: li, distance: bestDist}
		}
	}

	var pairs []LabelValuePair
	for vi, cl := range claims {
		label := labels[cl.labelIdx]
		value := values[vi]
		pairs = append(pairs, LabelValuePair{
			Label:      label,
			Value:      value,
			Confidence: math.Min(label.Confidence, value.Confidence),
		})
	}
	return pairs
}

// pairDistance returns the effective distance from a label to a candidate
// value, or -1 when the candidate sits in an implausible direction
// (above, or far to the left of, the label).
func pairDistance(label, value recognition.Region, opts PairOptions) float64 {
	lx, ly := label.Center()
	vx, vy := value.Center()
	dx, dy := vx-lx, vy-ly

	// Values above the label line or clearly left of it are not what the
	// label describes.
	if dy < -label.Height || dx < -label.Width {
		return -1
	}
	d := math.Hypot(dx, dy)
	rightOf := dx > 0 && math.Abs(dy) <= label.Height
	below := dy > 0 && math.Abs(dx) <= label.Width*1.5
	if rightOf || below {
		d *= opts.RightBias
	}
	return d
}

var interactivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(OK|Cancel|Apply|Save|Delete|Close|Submit|Send|Open|Done|Next|Back|Yes|No|Retry)$`),
	regexp.MustCompile(`^(Sign [Ii]n|Sign [Oo]ut|Log [Ii]n|Log [Oo]ut|Add .{1,20}|New .{1,20}|Create .{1,20})$`),
	regexp.MustCompile(`^\[.{1,16}\]$`),
}

// InteractiveElement is a recognition result that looks like a clickable
// control.
type InteractiveElement struct {
	Result recognition.Result
	// Kind is "button" or "link".
	Kind string
}

// DetectInteractive flags results whose text matches common control
// vocabulary or URL shapes. Purely lexical: the pipeline has text and
// geometry, not widget trees.
func DetectInteractive(results []recognition.Result) []InteractiveElement {
	var out []InteractiveElement
	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if looksLikeURL(text) {
			out = append(out, InteractiveElement{Result: r, Kind: "link"})
			continue
		}
		for _, p := range interactivePatterns {
			if p.MatchString(text) {
				out = append(out, InteractiveElement{Result: r, Kind: "button"})
				break
			}
		}
	}
	return out
}

var bareHostPattern = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}(/\S*)?$`)

func looksLikeURL(text string) bool {
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		return true
	}
	return !strings.Contains(text, " ") && strings.Count(text, ".") >= 1 &&
		strings.Count(text, ".") <= 4 && bareHostPattern.MatchString(strings.ToLower(text))
}
