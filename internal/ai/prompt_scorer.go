package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/logger"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/profile"
	"github.com/spigell/job-sift/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength  = 200
	maxDescriptionRunes  = 6000
	maxCandidateRunes    = 4000
	maxRationaleReasons  = 3
	noneText             = "none"
	missingCandidateText = "No candidate summary provided. Judge by the keywords only."
)

// PromptScorer renders a posting and profile into a prompt and parses the
// model answer into an Assessment.
type PromptScorer struct {
	generator Generator
	provider  string
	logger    *zap.Logger
	maxLogLen int
}

func NewPromptScorer(generator Generator, provider string, log *zap.Logger, maxLogLength int) *PromptScorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &PromptScorer{
		generator: generator,
		provider:  provider,
		logger:    logger.WithCommonFields(log, provider, generator.Model()),
		maxLogLen: maxLogLength,
	}
}

func (s *PromptScorer) Evaluate(ctx context.Context, p posting.Canonical, prof profile.Profile) (*Assessment, error) {
	model := s.generator.Model()

	prompt, err := buildPrompt(p, prof)
	if err != nil {
		return nil, &Failure{Kind: Unavailable, Model: model, Err: err}
	}

	fields := logger.PostingFields(p.IdentityKey, p.Title, p.Company)

	s.logger.Debug("generate content request", append(fields,
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)...)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, Classify(model, err)
	}

	s.logger.Debug("generate content response", append(fields,
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)...)

	assessment, err := parseResponse(model, raw)
	if err != nil {
		return nil, err
	}

	assessment.Model = model
	assessment.Raw = raw
	return assessment, nil
}

type postingPayload struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location,omitempty"`
	URL         string   `json:"url,omitempty"`
	Sources     []string `json:"sources,omitempty"`
	Description string   `json:"description"`
}

func buildPrompt(p posting.Canonical, prof profile.Profile) (string, error) {
	payload := postingPayload{
		Title:       p.Title,
		Company:     p.Company,
		Location:    p.Location,
		URL:         p.URL,
		Sources:     p.Sources,
		Description: truncateRunes(p.Description, maxDescriptionRunes),
	}

	postingJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal posting payload: %w", err)
	}

	candidate := strings.TrimSpace(truncateRunes(prof.Summary, maxCandidateRunes))
	if candidate == "" {
		candidate = missingCandidateText
	}

	replacer := strings.NewReplacer(
		"{{CANDIDATE}}", candidate,
		"{{MUST_HAVE}}", listOrNone(prof.MustHave),
		"{{PREFERRED}}", listOrNone(weightedKeys(prof.Positive)),
		"{{AVOID}}", listOrNone(weightedKeys(prof.Negative)),
		"{{POSTING_JSON}}", string(postingJSON),
		"{{MIN_SCORE}}", strconv.Itoa(prof.MinScore),
	)
	return replacer.Replace(promptTemplate), nil
}

func weightedKeys(weights map[string]int) []string {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func listOrNone(items []string) string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		// single line only, the template is line oriented
		if item = utils.CollapseSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	if len(cleaned) == 0 {
		return noneText
	}
	return strings.Join(cleaned, ", ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func parseResponse(model, raw string) (*Assessment, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, malformed(model, "no json object in response")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, malformed(model, "parse response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		return nil, malformed(model, "score is missing or not a number")
	}

	if score < MinScore || score > MaxScore {
		return nil, malformed(model, "score %v outside [%d, %d]", score, MinScore, MaxScore)
	}
	rounded := int(math.Round(score))

	return &Assessment{
		Score:     rounded,
		Rationale: rationale(data),
	}, nil
}

// rationale prefers the reasons list and falls back to a free-form field.
func rationale(data map[string]any) string {
	if reasons, ok := data["reasons"].([]any); ok {
		parts := make([]string, 0, len(reasons))
		for _, r := range reasons {
			if text := coerceString(r); text != "" {
				parts = append(parts, text)
			}
			if len(parts) == maxRationaleReasons {
				break
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}

	for _, key := range []string{"rationale", "reason"} {
		if text := coerceString(data[key]); text != "" {
			return text
		}
	}
	return ""
}

// extractJSON strips code fences and surrounding prose and returns the first
// balanced JSON object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}

	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
