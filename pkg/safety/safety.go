// Package safety detects physically risky robotics topics in learner
// messages and supplies the disclaimer text that must accompany generated
// answers. Conceptual explanation stays allowed; the guardrail qualifies it.
package safety

import (
	"regexp"
	"strings"
)

// CheckResult reports the outcome of a guardrail scan.
type CheckResult struct {
	// RequiresDisclaimer is true when any category matched.
	RequiresDisclaimer bool `json:"requires_disclaimer"`

	// Category is the first matched category, e.g. "electrical".
	Category string `json:"category"`

	// HighRisk marks requests that get a refusal-grade warning instead of a
	// cautionary note.
	HighRisk bool `json:"is_high_risk"`

	// KeywordsMatched lists triggering terms in first-seen order, lowercased,
	// without duplicates.
	KeywordsMatched []string `json:"keywords_matched"`
}

type category struct {
	name     string
	patterns []*regexp.Regexp
	keywords []string
	highRisk bool
}

// Categories are scanned in a fixed order so that high-risk bypass requests
// win over the incidental electrical or mechanical terms they tend to
// contain.
var categories = []category{
	{
		name: "safety_bypass",
		patterns: compile(
			`\bbypass\b.*\b(safety|interlock|limit|stop)\b`,
			`\bdisable\b.*\b(safety|interlock|limit|stop|emergency)\b`,
			`\boverride\b.*\b(safety|limit|protection)\b`,
			`\bremove\b.*\b(safety|guard|interlock)\b`,
			`\bdeactivate\b.*\b(safety|protection)\b`,
			`\bemergency\s*stop\b.*\b(disable|bypass|remove)\b`,
		),
		keywords: []string{
			"bypass", "disable safety", "override safety", "remove interlock",
			"disable interlock", "bypass limit", "defeat safety",
		},
		highRisk: true,
	},
	{
		name: "electrical",
		patterns: compile(
			`\b(rewire|rewiring)\b`,
			`\bvoltage\b`,
			`\bcurrent\b.*\b(adjust|change|modify|limit)\b`,
			`\bshort\s*circuit\b`,
			`\bpower\s*supply\b.*\b(modify|build|change)\b`,
			`\bbattery\b.*\b(connect|wire|mod)\b`,
		),
		keywords: []string{
			"rewire", "voltage", "short circuit", "power supply",
			"amp", "amperage", "electrical connection",
		},
	},
	{
		name: "mechanical",
		patterns: compile(
			`\btorque\b.*\b(adjust|change|limit|increase)\b`,
			`\bjoint\b.*\b(limit|force|torque)\b`,
			`\bmotor\b.*\b(control|direct|modify)\b`,
			`\bservo\b`,
			`\bactuator\b.*\b(control|modify)\b`,
		),
		keywords: []string{
			"motor", "servo", "actuator", "torque", "joint limit",
			"gear", "pulley", "belt", "chain",
		},
	},
	{
		name: "physical_modification",
		patterns: compile(
			`\b(modify|modifying)\b.*\bhardware\b`,
			`\bbuild\b.*\brobot\b`,
			`\bassemble\b`,
			`\bsolder\b`,
			`\bmount\b.*\b(motor|sensor|camera)\b`,
		),
		keywords: []string{
			"rewire", "solder", "assemble", "mount", "install",
			"hardware modification", "physical setup",
		},
	},
}

func compile(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return compiled
}

var disclaimerTemplates = map[string]string{
	"safety_bypass": `**IMPORTANT SAFETY WARNING**: I cannot provide instructions for bypassing, disabling, or removing safety systems. Safety mechanisms exist to prevent injury and equipment damage. Attempting to circumvent them can result in:

- Serious personal injury
- Damage to expensive equipment
- Voiding warranties and violating regulations

If you believe a safety system is malfunctioning, please consult your equipment manual or contact a qualified technician.`,
	"electrical": `**Safety Note**: This response discusses electrical systems. Before attempting any electrical work on real hardware:

- Verify all information against official documentation
- Ensure power is disconnected before making changes
- Use appropriate safety equipment (insulated tools, safety glasses)
- Consult an instructor or qualified technician if unsure

This explanation is for educational and conceptual understanding. Always verify procedures before attempting on actual hardware.`,
	"mechanical": `**Safety Note**: This response involves mechanical systems. Before working with real hardware:

- Ensure the robot is powered off and secured
- Verify torque and force limits from official specifications
- Use appropriate personal protective equipment
- Consult official manuals for your specific hardware

This information is for learning purposes. Always verify with official documentation before attempting on real hardware.`,
	"physical_modification": `**Safety Note**: This response discusses physical hardware operations. Before attempting any modifications:

- Review official documentation for your specific equipment
- Consult with an instructor or experienced mentor
- Ensure you have appropriate safety equipment
- Start with simulation or disconnected hardware when possible

This explanation is for conceptual understanding. Always verify procedures and consult official sources before working on actual hardware.`,
	"default": `**Safety Note**: This topic involves physical robotics operations. Please:

- Verify all information against official documentation
- Consult your instructor or equipment manuals
- Use appropriate safety precautions

This response is for educational purposes. Always consult official sources before attempting procedures on real hardware.`,
}

// Checker scans text for safety-relevant robotics content. The zero value is
// disabled; use NewChecker. A Checker is immutable and safe for concurrent
// use.
type Checker struct {
	enabled bool
}

// NewChecker creates a safety checker. When enabled is false every check
// passes clean, which serves as the operational kill switch.
func NewChecker(enabled bool) *Checker {
	return &Checker{enabled: enabled}
}

// Check scans text for safety concerns. A later pattern match within a
// category scan replaces the matched category; keyword hits never displace
// an earlier match. Scanning stops once a high-risk category has matched.
func (c *Checker) Check(text string) CheckResult {
	if !c.enabled {
		return CheckResult{KeywordsMatched: []string{}}
	}

	textLower := strings.ToLower(text)

	var matched []string
	var matchedCategory string
	var highRisk bool

	for _, cat := range categories {
		for _, pattern := range cat.patterns {
			if m := pattern.FindString(text); m != "" {
				matchedCategory = cat.name
				highRisk = cat.highRisk
				matched = append(matched, strings.ToLower(m))
			}
		}

		for _, keyword := range cat.keywords {
			if strings.Contains(textLower, keyword) {
				if matchedCategory == "" {
					matchedCategory = cat.name
					highRisk = cat.highRisk
				}
				matched = append(matched, keyword)
			}
		}

		if highRisk {
			break
		}
	}

	unique := dedupe(matched)
	return CheckResult{
		RequiresDisclaimer: len(unique) > 0,
		Category:           matchedCategory,
		HighRisk:           highRisk,
		KeywordsMatched:    unique,
	}
}

// Disclaimer returns the disclaimer text for a check result, empty when none
// is required. Unknown categories fall back to the generic template.
func (c *Checker) Disclaimer(result CheckResult) string {
	if !result.RequiresDisclaimer {
		return ""
	}
	if template, ok := disclaimerTemplates[result.Category]; ok {
		return template
	}
	return disclaimerTemplates["default"]
}

func dedupe(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	unique := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		unique = append(unique, kw)
	}
	return unique
}
