package llm

import (
	"net/http"
	"strings"
)

// FirstChoice safely returns the first choice from a ChatResponse.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil || len(resp.Choices) == 0 {
		provider := ""
		if resp != nil {
			provider = resp.Provider
		}
		return ChatChoice{}, &Error{
			Code:       ErrEmptyResponse,
			Message:    "model returned no choices",
			HTTPStatus: http.StatusBadGateway,
			Provider:   provider,
		}
	}
	return resp.Choices[0], nil
}

// FirstContent returns the trimmed text of the first choice.
func FirstContent(resp *ChatResponse) (string, error) {
	choice, err := FirstChoice(resp)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(choice.Message.Content), nil
}
