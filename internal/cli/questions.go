package cli

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"docqa/internal/domain"
)

// loadQuestionsFile reads questions from YAML. The file is either a bare
// list of questions or a mapping with "documents" and "questions" keys.
func loadQuestionsFile(path string) (domain.Request, error) {
	var req domain.Request

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read questions file: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return req, fmt.Errorf("failed to parse questions file: %w", err)
	}
	if len(node.Content) == 0 {
		return req, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&req.Questions)
	case yaml.MappingNode:
		err = root.Decode(&req)
	default:
		err = fmt.Errorf("expected a list of questions or a mapping with documents and questions")
	}
	if err != nil {
		return req, fmt.Errorf("failed to parse questions file: %w", err)
	}
	return req, nil
}

// buildRequest merges --doc / -q flags with an optional questions file.
// Flags win for the document; questions are appended after the file's.
func buildRequest(doc string, questions []string, file string) (domain.Request, error) {
	var req domain.Request
	if file != "" {
		var err error
		req, err = loadQuestionsFile(file)
		if err != nil {
			return req, err
		}
	}
	if doc != "" {
		req.DocumentURL = doc
	}
	req.Questions = append(req.Questions, questions...)

	if strings.TrimSpace(req.DocumentURL) == "" {
		return req, fmt.Errorf("a document is required (--doc or documents: in the questions file)")
	}
	if len(req.Questions) == 0 {
		return req, fmt.Errorf("at least one question is required (-q or --questions-file)")
	}
	return req, nil
}
