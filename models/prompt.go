package models

// Prompt is a named text template the backend pipeline reads.
type Prompt struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type PromptList struct {
	Prompts []Prompt `json:"prompts"`
}

type UpdatePromptRequest struct {
	BrandID string `json:"brand_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// WithContent returns a copy of prompts where the named prompt carries content.
// Unknown names are appended.
func WithContent(prompts []Prompt, name, content string) []Prompt {
	out := make([]Prompt, len(prompts))
	copy(out, prompts)
	for i := range out {
		if out[i].Name == name {
			out[i].Content = content
			return out
		}
	}
	return append(out, Prompt{Name: name, Content: content})
}

// FindPrompt returns the prompt named name, or the first one when name is empty.
func FindPrompt(prompts []Prompt, name string) (Prompt, bool) {
	if len(prompts) == 0 {
		return Prompt{}, false
	}
	if name == "" {
		return prompts[0], true
	}
	for _, p := range prompts {
		if p.Name == name {
			return p, true
		}
	}
	return Prompt{}, false
}
