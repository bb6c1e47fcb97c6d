package openrouter

// OpenAI-compatible Chat Completions API types, as served by OpenRouter.

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatCompletionResponse is the response body from POST /chat/completions.
type ChatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *APIError `json:"error,omitempty"`
}

// APIError is the error payload some providers embed in a 200 response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
