package model

const (
	RoleUser         = "user"
	ContentTypeAudio = "audio_url"
)

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type AudioURL struct {
	URL string `json:"url"`
}

// ContentPart is one block of a chat message's content list. Only audio
// references are produced by this module.
type ContentPart struct {
	Type     string    `json:"type"`
	AudioURL *AudioURL `json:"audio_url,omitempty"`
	Text     string    `json:"text,omitempty"`
}

type ChatMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ChatCompletionRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	TopK        int           `json:"top_k"`
	MaxTokens   int           `json:"max_tokens"`
}

// TokenUsage fields are pointers because the service may omit any of them.
type TokenUsage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

type ChoiceMessage struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content"`
}

type Choice struct {
	Index        int            `json:"index"`
	Message      *ChoiceMessage `json:"message"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

type ChatCompletionResponse struct {
	ID      string      `json:"id,omitempty"`
	Object  string      `json:"object,omitempty"`
	Model   string      `json:"model,omitempty"`
	Choices []Choice    `json:"choices"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// NewAudioCaptionRequest builds a caption request carrying only the audio
// reference. Captioner models reject text prompts.
func NewAudioCaptionRequest(audioURL string, temperature, topP float64, topK, maxTokens int) ChatCompletionRequest {
	return ChatCompletionRequest{
		Messages: []ChatMessage{{
			Role: RoleUser,
			Content: []ContentPart{{
				Type:     ContentTypeAudio,
				AudioURL: &AudioURL{URL: audioURL},
			}},
		}},
		Temperature: temperature,
		TopP:        topP,
		TopK:        topK,
		MaxTokens:   maxTokens,
	}
}

// IntPtr is a small helper for building TokenUsage values.
func IntPtr(v int) *int {
	return &v
}

