package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrService marks a failure of the upstream language model.
var ErrService = errors.New("AI service error")

const groundedPrompt = `Based on the following document content, answer the question in the same language as the question. If the answer is not in the content, say so in the appropriate language.

Document Content:
%s

Question: %s

Please provide a clear and helpful answer in the same language as the question, based on the document content above. You can respond in any language that best serves the user.`

const generalPrompt = `You are a helpful assistant. Answer the following question in the most appropriate language for the user, typically the same language as the question:

%s

Please respond in whatever language would be most helpful to the user.`

// AnswerGenerator turns a question and optional retrieved context into an answer.
type AnswerGenerator struct {
	text TextGenerator
}

// NewAnswerGenerator wraps a TextGenerator.
func NewAnswerGenerator(text TextGenerator) *AnswerGenerator {
	return &AnswerGenerator{text: text}
}

// GenerateAnswer asks the model to answer question. A non-empty docContext selects
// the document-grounded prompt; otherwise the question is answered as general chat.
// Failures wrap ErrService.
func (g *AnswerGenerator) GenerateAnswer(ctx context.Context, question, docContext string) (string, error) {
	answer, err := g.text.GenerateText(ctx, "", BuildPrompt(question, docContext))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	return answer, nil
}

// BuildPrompt renders the prompt sent for question and context.
func BuildPrompt(question, docContext string) string {
	if docContext != "" {
		return fmt.Sprintf(groundedPrompt, docContext, question)
	}
	return fmt.Sprintf(generalPrompt, question)
}
