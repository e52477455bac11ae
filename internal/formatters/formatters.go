package formatters

import (
	"encoding/json"
	"fmt"
	"strings"

	"aceinterview/internal/scoring"
	"aceinterview/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	// Register default formatters
	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "Results", &ResultsTextFormatter{})
	registry.RegisterFormatter("markdown", "Results", &ResultsMarkdownFormatter{})
	registry.RegisterFormatter("text", "Evaluation", &EvaluationTextFormatter{})
	registry.RegisterFormatter("markdown", "Evaluation", &EvaluationMarkdownFormatter{})
	registry.RegisterFormatter("text", "Questions", &QuestionsTextFormatter{})
	registry.RegisterFormatter("markdown", "Questions", &QuestionsMarkdownFormatter{})
	registry.RegisterFormatter("text", "ParseResumeOutput", &ResumeTextFormatter{})
	registry.RegisterFormatter("markdown", "ParseResumeOutput", &ResumeMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	// Try specific formatter first
	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		// Fall back to generic formatter
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case scoring.Results:
		return "Results"
	case scoring.Evaluation:
		return "Evaluation"
	case []types.QuestionRecord:
		return "Questions"
	case types.ParseResumeOutput:
		return "ParseResumeOutput"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// scoreLine renders a score out of ten, or N/A
func scoreLine(score *float64) string {
	return scoring.FormatScore(score) + " / 10"
}

type subscore struct {
	label string
	value *float64
}

func subscoreList(s scoring.Subscores) []subscore {
	all := []subscore{
		{"Accuracy", s.Accuracy},
		{"Completeness", s.Completeness},
		{"Clarity", s.Clarity},
		{"Depth", s.Depth},
		{"Relevance", s.Relevance},
	}
	present := all[:0]
	for _, sc := range all {
		if sc.value != nil {
			present = append(present, sc)
		}
	}
	return present
}

func writeList(output *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	output.WriteString(heading)
	output.WriteString("\n")
	for _, item := range items {
		output.WriteString(fmt.Sprintf("- %s\n", item))
	}
	output.WriteString("\n")
}

func writeEvaluationText(output *strings.Builder, ev scoring.Evaluation) {
	output.WriteString(fmt.Sprintf("Score: %s\n", scoreLine(ev.Score)))
	if subs := subscoreList(ev.Subscores); len(subs) > 0 {
		for _, sc := range subs {
			output.WriteString(fmt.Sprintf("  %s: %s\n", sc.label, scoreLine(sc.value)))
		}
	}
	output.WriteString("\n")

	writeList(output, "Strengths:", ev.Strengths)
	writeList(output, "Areas to Improve:", ev.Improvements)

	if ev.Detailed != "" {
		output.WriteString("Detailed Feedback:\n")
		output.WriteString(ev.Detailed)
		output.WriteString("\n\n")
	}
}

func writeEvaluationMarkdown(output *strings.Builder, ev scoring.Evaluation, level string) {
	output.WriteString(fmt.Sprintf("**Score:** %s\n\n", scoreLine(ev.Score)))
	if subs := subscoreList(ev.Subscores); len(subs) > 0 {
		output.WriteString("| Dimension | Score |\n|---|---|\n")
		for _, sc := range subs {
			output.WriteString(fmt.Sprintf("| %s | %s |\n", sc.label, scoreLine(sc.value)))
		}
		output.WriteString("\n")
	}

	writeList(output, level+" Strengths", ev.Strengths)
	writeList(output, level+" Areas to Improve", ev.Improvements)

	if ev.Detailed != "" {
		output.WriteString(level + " Detailed Feedback\n")
		output.WriteString(ev.Detailed)
		output.WriteString("\n\n")
	}
}

// ResultsTextFormatter handles text formatting for session results
type ResultsTextFormatter struct{}

func (rtf *ResultsTextFormatter) Format(data any) (string, error) {
	result, ok := data.(scoring.Results)
	if !ok {
		return "", fmt.Errorf("expected Results, got %T", data)
	}

	var output strings.Builder

	output.WriteString("=== INTERVIEW RESULTS ===\n\n")

	if result.Empty() {
		output.WriteString(scoring.EmptyResultsMessage)
		output.WriteString("\n")
		return output.String(), nil
	}

	for i, item := range result.Items {
		output.WriteString(fmt.Sprintf("%d. %s\n", i+1, item.Question))
		writeEvaluationText(&output, item.Evaluation)
	}

	output.WriteString(fmt.Sprintf("=== TOTAL SCORE: %s ===\n", scoreLine(result.Total)))
	if result.Celebrate {
		output.WriteString("Outstanding performance!\n")
	}

	return output.String(), nil
}

func (rtf *ResultsTextFormatter) SupportedType() string {
	return "Results"
}

// ResultsMarkdownFormatter handles markdown formatting for session results
type ResultsMarkdownFormatter struct{}

func (rmf *ResultsMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(scoring.Results)
	if !ok {
		return "", fmt.Errorf("expected Results, got %T", data)
	}

	var output strings.Builder

	output.WriteString("# Interview Results\n\n")

	if result.Empty() {
		output.WriteString(scoring.EmptyResultsMessage)
		output.WriteString("\n")
		return output.String(), nil
	}

	for i, item := range result.Items {
		output.WriteString(fmt.Sprintf("## %d. %s\n\n", i+1, item.Question))
		writeEvaluationMarkdown(&output, item.Evaluation, "###")
	}

	output.WriteString(fmt.Sprintf("## Total Score: %s\n", scoreLine(result.Total)))
	if result.Celebrate {
		output.WriteString("\n:tada: **Outstanding performance!**\n")
	}

	return output.String(), nil
}

func (rmf *ResultsMarkdownFormatter) SupportedType() string {
	return "Results"
}

// EvaluationTextFormatter handles text formatting for a single answer evaluation
type EvaluationTextFormatter struct{}

func (etf *EvaluationTextFormatter) Format(data any) (string, error) {
	ev, ok := data.(scoring.Evaluation)
	if !ok {
		return "", fmt.Errorf("expected Evaluation, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== ANSWER EVALUATION ===\n\n")
	writeEvaluationText(&output, ev)
	return output.String(), nil
}

func (etf *EvaluationTextFormatter) SupportedType() string {
	return "Evaluation"
}

// EvaluationMarkdownFormatter handles markdown formatting for a single answer evaluation
type EvaluationMarkdownFormatter struct{}

func (emf *EvaluationMarkdownFormatter) Format(data any) (string, error) {
	ev, ok := data.(scoring.Evaluation)
	if !ok {
		return "", fmt.Errorf("expected Evaluation, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Answer Evaluation\n\n")
	writeEvaluationMarkdown(&output, ev, "##")
	return output.String(), nil
}

func (emf *EvaluationMarkdownFormatter) SupportedType() string {
	return "Evaluation"
}

// QuestionsTextFormatter handles text formatting for generated questions
type QuestionsTextFormatter struct{}

func (qtf *QuestionsTextFormatter) Format(data any) (string, error) {
	questions, ok := data.([]types.QuestionRecord)
	if !ok {
		return "", fmt.Errorf("expected []QuestionRecord, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== INTERVIEW QUESTIONS ===\n\n")
	for i, q := range questions {
		if q.Type != "" {
			output.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, q.Type, q.Question))
		} else {
			output.WriteString(fmt.Sprintf("%d. %s\n", i+1, q.Question))
		}
	}
	return output.String(), nil
}

func (qtf *QuestionsTextFormatter) SupportedType() string {
	return "Questions"
}

// QuestionsMarkdownFormatter handles markdown formatting for generated questions
type QuestionsMarkdownFormatter struct{}

func (qmf *QuestionsMarkdownFormatter) Format(data any) (string, error) {
	questions, ok := data.([]types.QuestionRecord)
	if !ok {
		return "", fmt.Errorf("expected []QuestionRecord, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Interview Questions\n\n")
	for i, q := range questions {
		output.WriteString(fmt.Sprintf("%d. %s", i+1, q.Question))
		if q.Type != "" {
			output.WriteString(fmt.Sprintf(" _(%s)_", q.Type))
		}
		output.WriteString("\n")
	}
	return output.String(), nil
}

func (qmf *QuestionsMarkdownFormatter) SupportedType() string {
	return "Questions"
}

// ResumeTextFormatter handles text formatting for a parsed resume
type ResumeTextFormatter struct{}

func (rtf *ResumeTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.ParseResumeOutput)
	if !ok {
		return "", fmt.Errorf("expected ParseResumeOutput, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== RESUME ===\n\n")
	output.WriteString(fmt.Sprintf("Name: %s\n", valueOrNone(result.Name)))
	output.WriteString(fmt.Sprintf("Resume Token: %s\n", valueOrNone(result.ResumeToken)))
	return output.String(), nil
}

func (rtf *ResumeTextFormatter) SupportedType() string {
	return "ParseResumeOutput"
}

// ResumeMarkdownFormatter handles markdown formatting for a parsed resume
type ResumeMarkdownFormatter struct{}

func (rmf *ResumeMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.ParseResumeOutput)
	if !ok {
		return "", fmt.Errorf("expected ParseResumeOutput, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Resume\n\n")
	output.WriteString(fmt.Sprintf("**Name:** %s\n\n", valueOrNone(result.Name)))
	output.WriteString(fmt.Sprintf("**Resume Token:** `%s`\n", valueOrNone(result.ResumeToken)))
	return output.String(), nil
}

func (rmf *ResumeMarkdownFormatter) SupportedType() string {
	return "ParseResumeOutput"
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
