package usecase

import (
	_ "embed"
	"strings"
	"text/template"
)

//go:embed templates/answer_prompt.txt
var answerPromptText string

var answerPrompt = template.Must(template.New("answer").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(answerPromptText))

// PromptData is the input of the answer prompt template.
type PromptData struct {
	Contexts []string
	Question string
}

// RenderPrompt builds the instruction sent to the generation model. It has
// no side effects and is deterministic for the same inputs.
func RenderPrompt(contexts []string, question string) (string, error) {
	trimmed := make([]string, 0, len(contexts))
	for _, c := range contexts {
		if c = strings.TrimSpace(c); c != "" {
			trimmed = append(trimmed, c)
		}
	}

	var b strings.Builder
	err := answerPrompt.Execute(&b, PromptData{
		Contexts: trimmed,
		Question: strings.TrimSpace(question),
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
