package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"hire-realtime/internal/models"
)

const (
	MinReviewLength = 80

	defaultCategory = "general"
	defaultPriority = 3
)

// ErrInvalidResponse marks scorer output that failed parsing or shape checks.
var ErrInvalidResponse = errors.New("invalid scoring response")

type rawResult struct {
	Scores      rawScores       `json:"scores"`
	Review      string          `json:"review"`
	Suggestions []rawSuggestion `json:"suggestions"`
}

type rawScores struct {
	SkillsMatch         *flexNumber `json:"skills_match"`
	ExperienceRelevance *flexNumber `json:"experience_relevance"`
	EducationFit        *flexNumber `json:"education_fit"`
	KeywordAlignment    *flexNumber `json:"keyword_alignment"`
	Formatting          *flexNumber `json:"formatting"`
}

type rawSuggestion struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Priority    *flexNumber `json:"priority"`
}

// flexNumber accepts 72, 72.5 and "72".
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = flexNumber(f)
	return nil
}

// ParseResult validates raw model output into an EvaluationResult.
func ParseResult(raw, model string) (models.EvaluationResult, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return models.EvaluationResult{}, err
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return models.EvaluationResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	required := map[string]*flexNumber{
		"skills_match":         parsed.Scores.SkillsMatch,
		"experience_relevance": parsed.Scores.ExperienceRelevance,
		"education_fit":        parsed.Scores.EducationFit,
		"keyword_alignment":    parsed.Scores.KeywordAlignment,
	}
	for name, v := range required {
		if v == nil {
			return models.EvaluationResult{}, fmt.Errorf("%w: missing score %s", ErrInvalidResponse, name)
		}
	}

	scores := models.SubScores{
		SkillsMatch:         ClampScore(float64(*parsed.Scores.SkillsMatch)),
		ExperienceRelevance: ClampScore(float64(*parsed.Scores.ExperienceRelevance)),
		EducationFit:        ClampScore(float64(*parsed.Scores.EducationFit)),
		KeywordAlignment:    ClampScore(float64(*parsed.Scores.KeywordAlignment)),
	}
	sum, count := scores.SkillsMatch+scores.ExperienceRelevance+scores.EducationFit+scores.KeywordAlignment, 4
	if parsed.Scores.Formatting != nil {
		f := ClampScore(float64(*parsed.Scores.Formatting))
		scores.Formatting = &f
		sum += f
		count++
	}

	review := strings.TrimSpace(parsed.Review)
	if utf8.RuneCountInString(review) < MinReviewLength {
		return models.EvaluationResult{}, fmt.Errorf("%w: review shorter than %d characters", ErrInvalidResponse, MinReviewLength)
	}

	suggestions, err := normalizeSuggestions(parsed.Suggestions)
	if err != nil {
		return models.EvaluationResult{}, err
	}

	return models.EvaluationResult{
		Scores:       scores,
		OverallScore: ClampScore(float64(sum) / float64(count)),
		Review:       review,
		Suggestions:  suggestions,
		Model:        model,
	}, nil
}

func normalizeSuggestions(raw []rawSuggestion) ([]models.Suggestion, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no suggestions", ErrInvalidResponse)
	}
	out := make([]models.Suggestion, 0, len(raw))
	for i, s := range raw {
		title := strings.TrimSpace(s.Title)
		description := strings.TrimSpace(s.Description)
		if title == "" || description == "" {
			return nil, fmt.Errorf("%w: suggestion %d needs title and description", ErrInvalidResponse, i)
		}
		id := strings.TrimSpace(s.ID)
		if id == "" {
			id = uuid.NewString()
		}
		category := strings.ToLower(strings.TrimSpace(s.Category))
		if category == "" {
			category = defaultCategory
		}
		priority := defaultPriority
		if s.Priority != nil {
			priority = ClampPriority(float64(*s.Priority))
		}
		out = append(out, models.Suggestion{
			ID:          id,
			Title:       title,
			Description: description,
			Category:    category,
			Priority:    priority,
		})
	}
	return out, nil
}

// ClampScore rounds v and clamps it to [0,100]. NaN maps to 0.
func ClampScore(v float64) int {
	return clampInt(v, 0, 100)
}

// ClampPriority rounds v and clamps it to [1,5].
func ClampPriority(v float64) int {
	return clampInt(v, 1, 5)
}

// ClampProgress clamps a progress value to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func clampInt(v float64, lo, hi int) int {
	if math.IsNaN(v) {
		return lo
	}
	r := math.Round(v)
	if r < float64(lo) {
		return lo
	}
	if r > float64(hi) {
		return hi
	}
	return int(r)
}

// extractJSON strips code fences and keeps the outermost object.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in response", ErrInvalidResponse)
	}
	return s[start : end+1], nil
}
