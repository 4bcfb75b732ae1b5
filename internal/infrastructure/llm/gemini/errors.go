package gemini

import (
	"errors"

	"google.golang.org/genai"

	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/resilience"
)

func classifyGeminiError(err error) resilience.Verdict {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		transient := resilience.IsTransientStatus(apiErr.Code)
		return resilience.Verdict{Retry: transient, Trip: transient}
	}
	return resilience.ClassifyTransport(err)
}
