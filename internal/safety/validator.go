package safety

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/engram-labs/engram/internal/models"
)

// Level orders the validator's verdicts from harmless to blocking.
type Level int

const (
	LevelSafe Level = iota
	LevelWarning
	LevelDanger
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelSafe:
		return "SAFE"
	case LevelWarning:
		return "WARNING"
	case LevelDanger:
		return "DANGER"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders levels as their names rather than ints.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Metrics holds the raw scores behind a verdict. All heuristic scores are
// in [0,1]; TokenCount is an estimate, not a tokenizer.
type Metrics struct {
	TokenCount       int     `json:"tokenCount"`
	CoherenceScore   float64 `json:"coherenceScore"`
	PoisoningRisk    float64 `json:"poisoningRisk"`
	AdversarialScore float64 `json:"adversarialScore"`
	Level            Level   `json:"level"`
}

// Result is one validation verdict. The validator is a gate, not a filter:
// it never rewrites text, it only reports.
type Result struct {
	IsValid                 bool     `json:"isValid"`
	Metrics                 Metrics  `json:"metrics"`
	Warnings                []string `json:"warnings,omitempty"`
	Errors                  []string `json:"errors,omitempty"`
	FallbackRecommended     bool     `json:"fallbackRecommended"`
	OptimizationSuggestions []string `json:"optimizationSuggestions,omitempty"`
}

// DefaultMaxTokens is the budget a context blob should stay under.
const DefaultMaxTokens = 8000

// Validator screens text before it is injected into a model prompt. It is
// stateless and safe for concurrent use.
type Validator struct {
	maxTokens int
	logger    *slog.Logger
}

func NewValidator(maxTokens int, logger *slog.Logger) *Validator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Validator{maxTokens: maxTokens, logger: logger}
}

// Validate scores text on size, coherence, poisoning and adversarial
// signals, then derives a level from the worst metric. Any single metric at
// its critical threshold forces CRITICAL.
func (v *Validator) Validate(text string) Result {
	m := Metrics{
		TokenCount:       estimateTokens(text),
		CoherenceScore:   coherenceScore(text),
		PoisoningRisk:    poisoningRisk(text),
		AdversarialScore: adversarialScore(text),
	}

	res := Result{Metrics: m}

	tokenLevel := v.tokenLevel(m.TokenCount)
	coherenceLevel := levelBelow(m.CoherenceScore, 0.5, 0.3, 0.15)
	poisoningLevel := levelAbove(m.PoisoningRisk, 0.3, 0.5, 0.8)
	adversarialLevel := levelAbove(m.AdversarialScore, 0.0001, 0.5, 0.8)

	m.Level = maxLevel(tokenLevel, coherenceLevel, poisoningLevel, adversarialLevel)
	res.Metrics = m

	switch tokenLevel {
	case LevelWarning, LevelDanger:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("estimated %d tokens exceeds the %d budget", m.TokenCount, v.maxTokens))
		res.OptimizationSuggestions = append(res.OptimizationSuggestions,
			fmt.Sprintf("trim the text to stay under %d tokens", v.maxTokens))
	case LevelCritical:
		res.Errors = append(res.Errors,
			fmt.Sprintf("estimated %d tokens is more than double the %d budget", m.TokenCount, v.maxTokens))
	}

	if coherenceLevel >= LevelWarning {
		msg := fmt.Sprintf("low coherence score %.2f", m.CoherenceScore)
		if coherenceLevel == LevelCritical {
			res.Errors = append(res.Errors, msg)
		} else {
			res.Warnings = append(res.Warnings, msg)
			res.OptimizationSuggestions = append(res.OptimizationSuggestions,
				"rewrite repetitive or fragmented passages")
		}
	}

	if poisoningLevel >= LevelWarning {
		msg := fmt.Sprintf("poisoning risk %.2f: repetition or malformed structure detected", m.PoisoningRisk)
		if poisoningLevel == LevelCritical {
			res.Errors = append(res.Errors, msg)
		} else {
			res.Warnings = append(res.Warnings, msg)
		}
	}

	if adversarialLevel >= LevelWarning {
		msg := fmt.Sprintf("adversarial score %.2f: text matches known prompt-injection phrasing", m.AdversarialScore)
		if adversarialLevel == LevelCritical {
			res.Errors = append(res.Errors, msg)
		} else {
			res.Warnings = append(res.Warnings, msg)
		}
	}

	res.FallbackRecommended = m.Level >= LevelDanger
	res.IsValid = m.Level < LevelCritical

	if m.Level >= LevelDanger && v.logger != nil {
		v.logger.Warn("unsafe text detected",
			"level", m.Level.String(),
			"tokens", m.TokenCount,
			"coherence", m.CoherenceScore,
			"poisoning", m.PoisoningRisk,
			"adversarial", m.AdversarialScore)
	}

	return res
}

// Ensure is the blocking form of Validate: callers that would proceed with
// CRITICAL text get ErrSafetyCritical instead.
func (v *Validator) Ensure(text string) error {
	res := v.Validate(text)
	if res.Metrics.Level == LevelCritical {
		return fmt.Errorf("%w: %s", models.ErrSafetyCritical, strings.Join(res.Errors, "; "))
	}
	return nil
}

func (v *Validator) tokenLevel(tokens int) Level {
	switch {
	case float64(tokens) >= float64(v.maxTokens)*2:
		return LevelCritical
	case float64(tokens) >= float64(v.maxTokens)*1.5:
		return LevelDanger
	case tokens >= v.maxTokens:
		return LevelWarning
	default:
		return LevelSafe
	}
}

// levelAbove grades a score where higher is worse.
func levelAbove(score, warn, danger, critical float64) Level {
	switch {
	case score >= critical:
		return LevelCritical
	case score >= danger:
		return LevelDanger
	case score >= warn:
		return LevelWarning
	default:
		return LevelSafe
	}
}

// levelBelow grades a score where lower is worse.
func levelBelow(score, warn, danger, critical float64) Level {
	switch {
	case score < critical:
		return LevelCritical
	case score < danger:
		return LevelDanger
	case score < warn:
		return LevelWarning
	default:
		return LevelSafe
	}
}

func maxLevel(levels ...Level) Level {
	worst := LevelSafe
	for _, l := range levels {
		if l > worst {
			worst = l
		}
	}
	return worst
}

// estimateTokens approximates a tokenizer as length/4, nudged by the
// density of whitespace and punctuation since both tend to force token
// boundaries.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	var breaks int
	total := 0
	for _, r := range text {
		total++
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			breaks++
		}
	}
	base := float64(total) / 4.0
	density := float64(breaks) / float64(total)
	est := base * (0.85 + density)
	if est < 1 {
		est = 1
	}
	return int(math.Round(est))
}

// coherenceScore blends sentence-length regularity, vocabulary variety and
// logical-connector density. Empty text is trivially coherent.
func coherenceScore(text string) float64 {
	words := splitWords(text)
	if len(words) == 0 {
		return 1.0
	}

	// Inverse of normalized sentence-length variance: uniform sentences
	// score 1, wildly uneven ones approach 0.
	lengths := sentenceLengths(text)
	variance := 0.0
	if len(lengths) > 1 {
		mean := 0.0
		for _, l := range lengths {
			mean += float64(l)
		}
		mean /= float64(len(lengths))
		for _, l := range lengths {
			d := float64(l) - mean
			variance += d * d
		}
		variance /= float64(len(lengths))
		if mean > 0 {
			variance /= mean * mean
		}
	}
	regularity := 1.0 / (1.0 + variance)

	unique := map[string]struct{}{}
	connectors := 0
	for _, w := range words {
		unique[w] = struct{}{}
		if _, ok := logicalConnectors[w]; ok {
			connectors++
		}
	}
	variety := float64(len(unique)) / float64(len(words))
	connectorDensity := math.Min(float64(connectors)/float64(len(words))*10, 1.0)

	return 0.4*regularity + 0.4*variety + 0.2*connectorDensity
}

// poisoningRisk combines excessive word repetition, malformed structure and
// contradiction patterns into one [0,1] score.
func poisoningRisk(text string) float64 {
	words := splitWords(text)
	risk := 0.0

	if len(words) >= 10 {
		counts := map[string]int{}
		for _, w := range words {
			if len(w) >= 3 {
				counts[w]++
			}
		}
		maxRatio := 0.0
		for _, n := range counts {
			if r := float64(n) / float64(len(words)); r > maxRatio {
				maxRatio = r
			}
		}
		if maxRatio > 0.15 {
			risk += math.Min((maxRatio-0.15)*3, 0.5)
		}
	}

	if strings.Count(text, "```")%2 != 0 {
		risk += 0.3
	}
	risk += 0.3 * float64(malformedJSONFragments(text))

	lower := strings.ToLower(text)
	wordSet := map[string]struct{}{}
	for _, w := range words {
		wordSet[w] = struct{}{}
	}
	// Single-word poles match whole words only; phrases match as substrings.
	present := func(s string) bool {
		if strings.ContainsRune(s, ' ') {
			return strings.Contains(lower, s)
		}
		_, ok := wordSet[s]
		return ok
	}
	for _, p := range contradictionPairs {
		if present(p.a) && present(p.b) {
			risk += 0.15
		}
	}

	return math.Min(risk, 1.0)
}

// malformedJSONFragments counts lines that look like JSON but do not parse.
func malformedJSONFragments(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < 2 {
			continue
		}
		first := trimmed[0]
		last := trimmed[len(trimmed)-1]
		looksJSON := (first == '{' && last == '}') || (first == '[' && last == ']')
		if looksJSON && !json.Valid([]byte(trimmed)) {
			count++
		}
	}
	if count > 3 {
		count = 3
	}
	return count
}

// adversarialScore sums catalog weights for every matched injection
// phrasing, capped at 1.
func adversarialScore(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, p := range adversarialCatalog {
		if strings.Contains(lower, p.phrase) {
			score += p.weight
		}
	}
	return math.Min(score, 1.0)
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func sentenceLengths(text string) []int {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	lengths := make([]int, 0, len(sentences))
	for _, s := range sentences {
		if n := len(strings.Fields(s)); n > 0 {
			lengths = append(lengths, n)
		}
	}
	return lengths
}
