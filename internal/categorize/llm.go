package categorize

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// LLM calls an OpenAI-compatible chat completions endpoint and asks it to
// pick from the predefined category set.
type LLM struct {
	client *resty.Client
	model  string
}

// NewLLM builds the client. baseURL is the API root (e.g.
// "https://api.siliconflow.cn/v1"); transient failures are retried twice.
func NewLLM(baseURL, apiKey, model string) *LLM {
	cl := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &LLM{client: cl, model: model}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You are a precise text classification assistant. " +
	"Choose only from the predefined categories and respond with JSON."

func userPrompt(content string) string {
	var b strings.Builder
	b.WriteString("Classify the following text into one or more of these categories: ")
	b.WriteString(strings.Join(Categories, ", "))
	b.WriteString(".\n\nRules:\n")
	b.WriteString("1. If the text mentions eating or drinking, include \"food\".\n")
	b.WriteString("2. If the text expresses likes or dislikes, include \"preferences\".\n")
	b.WriteString("3. If the text contains names or contact details, include \"personal\".\n")
	b.WriteString("4. Avoid \"other\" unless nothing fits.\n")
	b.WriteString("5. Respond as JSON: {\"categories\": [\"a\", \"b\"]}\n\n")
	b.WriteString("Text: ")
	b.WriteString(content)
	return b.String()
}

func (l *LLM) Categorize(ctx context.Context, content string) ([]string, error) {
	req := chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(content)},
		},
		Temperature: 0,
	}

	var out chatResponse
	resp, err := l.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, errors.Wrap(err, "categorization request failed")
	}
	if resp.IsError() {
		return nil, errors.Errorf("categorization endpoint returned %s", resp.Status())
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("categorization response has no choices")
	}
	return parseCategories(out.Choices[0].Message.Content)
}

// parseCategories extracts the category list, tolerating ```json fences and
// names outside the predefined set.
func parseCategories(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var parsed struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, errors.Wrap(err, "unparseable categorization response")
	}

	known := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		known[c] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, c := range parsed.Categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if _, ok := known[c]; !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
