package analysis

import (
	"strings"

	"github.com/BengalSapper007/fitness-microservice/internal/domain"
)

// DefaultSummary is used when the model output carries no recognizable summary.
const DefaultSummary = "No detailed analysis was available for this session. Keep up your current routine and stay consistent."

const (
	sectionSummary      = "summary"
	sectionImprovements = "improvements"
	sectionSuggestions  = "suggestions"
	sectionSafety       = "safety"
)

// headerAliases maps the section names models actually emit onto canonical sections.
// Longer aliases are matched first so "safety guidelines" wins over "safety".
var headerAliases = []struct {
	alias   string
	section string
}{
	{"areas for improvement", sectionImprovements},
	{"safety guidelines", sectionSafety},
	{"recommendations", sectionSuggestions},
	{"improvements", sectionImprovements},
	{"improvement", sectionImprovements},
	{"suggestions", sectionSuggestions},
	{"summary", sectionSummary},
	{"safety", sectionSafety},
}

// Parse converts raw model output into a Recommendation. It never fails: missing
// sections fall back to defaults and unparseable text yields a default-valued
// recommendation that still carries the activity's identity and type verbatim.
// The caller assigns the recommendation id and creation timestamp.
func Parse(raw string, req Request) domain.Recommendation {
	rec := domain.Recommendation{
		ActivityID:   req.ActivityID,
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		ActivityType: req.ActivityType,
		Summary:      DefaultSummary,
		Improvements: []string{},
		Suggestions:  []string{},
		Safety:       []string{},
	}

	var summaryParts []string
	sections := map[string][]string{}
	current := ""

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if section, inline, ok := matchHeader(trimmed); ok {
			current = section
			if inline == "" {
				continue
			}
			trimmed = inline
		} else if current == "" {
			// Preamble before the first recognizable header carries no structure.
			continue
		}

		item := stripListPrefix(trimmed)
		if item == "" {
			continue
		}
		if current == sectionSummary {
			summaryParts = append(summaryParts, item)
		} else {
			sections[current] = append(sections[current], item)
		}
	}

	if len(summaryParts) > 0 {
		rec.Summary = strings.Join(summaryParts, " ")
	}
	if items := sections[sectionImprovements]; len(items) > 0 {
		rec.Improvements = items
	}
	if items := sections[sectionSuggestions]; len(items) > 0 {
		rec.Suggestions = items
	}
	if items := sections[sectionSafety]; len(items) > 0 {
		rec.Safety = items
	}
	return rec
}

// matchHeader reports whether the line opens a known section, returning any
// content that follows the header on the same line ("Summary: Good pace.").
func matchHeader(line string) (section, inline string, ok bool) {
	candidate := strings.TrimLeft(line, "#")
	candidate = strings.Trim(candidate, "*_ \t")
	lower := strings.ToLower(candidate)

	for _, h := range headerAliases {
		if lower == h.alias {
			return h.section, "", true
		}
		rest, found := strings.CutPrefix(lower, h.alias)
		if !found {
			continue
		}
		if !strings.HasPrefix(rest, ":") {
			continue
		}
		inline = strings.TrimSpace(candidate[len(candidate)-len(rest)+1:])
		inline = strings.Trim(inline, "* \t")
		return h.section, inline, true
	}
	return "", "", false
}

// stripListPrefix removes bullet markers ("-", "*") and numbered prefixes ("1.", "2)").
func stripListPrefix(line string) string {
	for _, marker := range []string{"- ", "* ", "• "} {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			return strings.TrimSpace(rest)
		}
	}
	if line == "-" || line == "*" {
		return ""
	}

	digits := 0
	for digits < len(line) && line[digits] >= '0' && line[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(line) && (line[digits] == '.' || line[digits] == ')') {
		return strings.TrimSpace(line[digits+1:])
	}
	return strings.TrimSpace(line)
}
