package evaluation

import (
	"fmt"
	"regexp"
	"strings"
)

const maxPromptResumeChars = 12000

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	linkPattern  = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s,;)]+|\b(?:linkedin\.com|github\.com)/[^\s,;)]+`)
)

// section headings, matched case-insensitively against a whole line
var sectionHeadings = map[string][]string{
	"skills":     {"skills", "technical skills", "core skills", "competencies", "technologies", "tech stack"},
	"experience": {"experience", "work experience", "professional experience", "employment", "employment history", "work history"},
	"education":  {"education", "academic background", "qualifications", "certifications"},
}

// ResumeFields is what can be recovered from resume text without a model.
type ResumeFields struct {
	Email      string
	Phone      string
	Links      []string
	Skills     []string
	Experience []string
	Education  []string
	WordCount  int
	Text       string
}

// ParseResume fills ResumeFields from extracted text.
func ParseResume(text string) ResumeFields {
	fields := ResumeFields{
		Email:     emailPattern.FindString(text),
		Links:     dedupe(linkPattern.FindAllString(text, 10)),
		WordCount: len(strings.Fields(text)),
		Text:      text,
	}
	if phone := phonePattern.FindString(text); phone != "" {
		fields.Phone = strings.TrimSpace(phone)
	}

	sections := splitSections(text)
	fields.Experience = sections["experience"]
	fields.Education = sections["education"]
	for _, line := range sections["skills"] {
		for _, skill := range strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ';' || r == '|' || r == '•' || r == '·'
		}) {
			if skill = strings.TrimSpace(strings.TrimLeft(skill, "-* ")); skill != "" {
				fields.Skills = append(fields.Skills, skill)
			}
		}
	}
	fields.Skills = dedupe(fields.Skills)
	return fields
}

func splitSections(text string) map[string][]string {
	sections := make(map[string][]string)
	current := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if name, ok := headingOf(line); ok {
			current = name
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], line)
		}
	}
	return sections
}

func headingOf(line string) (string, bool) {
	normalized := strings.ToLower(strings.TrimRight(line, ": "))
	for name, headings := range sectionHeadings {
		for _, h := range headings {
			if normalized == h {
				return name, true
			}
		}
	}
	return "", false
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(not detected)"
	}
	return "- " + strings.Join(items, "\n- ")
}

func valueOrNone(v string) string {
	if v == "" {
		return "(not detected)"
	}
	return v
}

// BuildPrompt asks the model for the JSON shape ParseResult accepts.
func BuildPrompt(fields ResumeFields, jobDescription string) string {
	text := fields.Text
	if runes := []rune(text); len(runes) > maxPromptResumeChars {
		text = string(runes[:maxPromptResumeChars])
	}
	return fmt.Sprintf(`You are an expert technical recruiter grading a candidate's resume against a job description.

JOB DESCRIPTION:
%s

PARSED RESUME FIELDS:
Email: %s
Phone: %s
Links: %s
Word count: %d
Skills:
%s
Experience:
%s
Education:
%s

FULL RESUME TEXT:
%s

Score each dimension from 0 to 100:
1. skills_match - how well the candidate's skills cover the required ones
2. experience_relevance - how relevant and senior the experience is for this role
3. education_fit - how well education and certifications fit the role
4. keyword_alignment - overlap with the job description's key terms
5. formatting - clarity and structure of the resume (optional)

Return ONLY a JSON object in this exact format:
{
  "scores": {
    "skills_match": <0-100>,
    "experience_relevance": <0-100>,
    "education_fit": <0-100>,
    "keyword_alignment": <0-100>,
    "formatting": <0-100>
  },
  "review": "<at least %d characters: strengths, gaps and overall fit>",
  "suggestions": [
    {
      "id": "<short identifier>",
      "title": "<short title>",
      "description": "<concrete, actionable change>",
      "category": "<skills|experience|education|keywords|formatting|general>",
      "priority": <1-5, 1 is most important>
    }
  ]
}

Give at least three suggestions. Be objective and cite specifics from the resume.`,
		strings.TrimSpace(jobDescription),
		valueOrNone(fields.Email),
		valueOrNone(fields.Phone),
		valueOrNone(strings.Join(fields.Links, ", ")),
		fields.WordCount,
		listOrNone(fields.Skills),
		listOrNone(fields.Experience),
		listOrNone(fields.Education),
		text,
		MinReviewLength)
}
