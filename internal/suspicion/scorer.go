package suspicion

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/X0IVY/prompt-injection-detector/internal/features"
)

// Level is the discrete severity band of a suspicion score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Rank orders levels from low (0) to critical (3). Unknown levels rank -1.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 0
	case LevelMedium:
		return 1
	case LevelHigh:
		return 2
	case LevelCritical:
		return 3
	}
	return -1
}

// Contribution weights. Each contribution is capped independently and the sum
// is clamped to 1.0.
const (
	keywordWeight    = 0.1
	keywordCap       = 0.4
	lengthWeight     = 0.2
	complexityWeight = 0.2
	sentimentScale   = 10.0
	sentimentCap     = 0.2
	attackWeight     = 0.3
)

const (
	DefaultComplexity = 0.7
	DefaultMinLength  = 10
	DefaultMaxLength  = 500
)

// NoFindingsReason is reported when no contribution triggers.
const NoFindingsReason = "no suspicious patterns detected"

// Thresholds are the calibration constants of the scorer.
type Thresholds struct {
	Complexity float64
	MinLength  int
	MaxLength  int
}

// DefaultThresholds returns the stock calibration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Complexity: DefaultComplexity,
		MinLength:  DefaultMinLength,
		MaxLength:  DefaultMaxLength,
	}
}

// AttackPattern is a named regular expression for a known injection shape.
type AttackPattern struct {
	Name string
	Expr *regexp.Regexp
}

// AttackPatterns are checked in order; any match adds the flat attack weight once.
var AttackPatterns = []AttackPattern{
	{"instruction_override", regexp.MustCompile(`(?i)\b(ignore|disregard|forget)\s+(all\s+)?(the\s+|your\s+)?(previous|prior|above|earlier)\s+(instructions|prompts?|rules|directions)`)},
	{"role_hijack", regexp.MustCompile(`(?i)\b(you\s+are\s+now|act\s+as|pretend\s+(to\s+be|you\s+are))\s+(an?\s+)?(admin|administrator|root|developer|dan|unrestricted|unfiltered)\b`)},
	{"prompt_leak", regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|output)\s+(me\s+)?(your|the)\s+(system\s+prompt|hidden\s+prompt|initial\s+instructions)`)},
	{"mode_switch", regexp.MustCompile(`(?i)\b(developer|god|dan|jailbreak)\s+mode\b`)},
	{"delimiter_injection", regexp.MustCompile(`(?i)(<\|?(im_start|system)\|?>|\[\s*system\s*\]|###\s*system\b)`)},
}

// Result is the outcome of scoring one prompt.
type Result struct {
	Score    float64  `json:"score"`
	Level    Level    `json:"level"`
	Reasons  []string `json:"reasons"`
	Patterns []string `json:"patterns,omitempty"`
}

type Scorer struct {
	th Thresholds
}

func NewScorer(th Thresholds) *Scorer {
	if th.Complexity <= 0 {
		th.Complexity = DefaultComplexity
	}
	if th.MinLength <= 0 {
		th.MinLength = DefaultMinLength
	}
	if th.MaxLength <= 0 {
		th.MaxLength = DefaultMaxLength
	}
	return &Scorer{th: th}
}

// Score sums the weighted contributions for v and text. Contributions are not
// mutually exclusive (a keyword may also be a demanding cue); the total
// saturates at 1.0.
func (s *Scorer) Score(v features.Vector, text string) Result {
	var score float64
	var reasons []string

	if n := len(v.MatchedKeywords); n > 0 {
		score += math.Min(float64(n)*keywordWeight, keywordCap)
		reasons = append(reasons, "matched suspicious keywords: "+strings.Join(v.MatchedKeywords, ", "))
	}

	if v.Length < s.th.MinLength || v.Length > s.th.MaxLength {
		score += lengthWeight
		reasons = append(reasons, fmt.Sprintf("unusual prompt length (%d chars)", v.Length))
	}

	if v.ComplexityScore > s.th.Complexity {
		score += complexityWeight
		reasons = append(reasons, fmt.Sprintf("high linguistic complexity (%.2f)", v.ComplexityScore))
	}

	if v.SentimentShift > 0 {
		score += math.Min(v.SentimentShift*sentimentScale, sentimentCap)
		reasons = append(reasons, fmt.Sprintf("demanding tone shift (%.2f)", v.SentimentShift))
	}

	matched := MatchAttackPatterns(text)
	if len(matched) > 0 {
		score += attackWeight
		reasons = append(reasons, "matches known attack pattern: "+strings.Join(matched, ", "))
	}

	if len(reasons) == 0 {
		reasons = []string{NoFindingsReason}
	}

	score = clamp(score)
	return Result{
		Score:    score,
		Level:    LevelFor(score),
		Reasons:  reasons,
		Patterns: matched,
	}
}

// MatchAttackPatterns returns the names of the attack patterns found in text.
func MatchAttackPatterns(text string) []string {
	var names []string
	for _, p := range AttackPatterns {
		if p.Expr.MatchString(text) {
			names = append(names, p.Name)
		}
	}
	return names
}

// LevelFor maps a score onto the fixed severity bands.
func LevelFor(score float64) Level {
	switch {
	case score < 0.3:
		return LevelLow
	case score < 0.6:
		return LevelMedium
	case score < 0.85:
		return LevelHigh
	default:
		return LevelCritical
	}
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
