package modal

// Message is a platform-neutral outbound message. The discord adapter renders it.
type Message struct {
	Content string   `json:"content,omitempty"`
	Embed   *Embed   `json:"embed,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      string  `json:"footer,omitempty"`
	Color       int     `json:"color,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type ButtonStyle string

const (
	ButtonPrimary ButtonStyle = "primary"
	ButtonSuccess ButtonStyle = "success"
	ButtonDanger  ButtonStyle = "danger"
)

type Button struct {
	ID       string      `json:"id"`
	Label    string      `json:"label"`
	Style    ButtonStyle `json:"style"`
	Disabled bool        `json:"disabled,omitempty"`
}

func Text(content string) Message {
	return Message{Content: content}
}

// Plain flattens the message for logs and notices that cannot carry embeds.
func (m Message) Plain() string {
	out := m.Content
	if m.Embed == nil {
		return out
	}
	if m.Embed.Title != "" {
		out = appendLine(out, m.Embed.Title)
	}
	if m.Embed.Description != "" {
		out = appendLine(out, m.Embed.Description)
	}
	for _, f := range m.Embed.Fields {
		out = appendLine(out, f.Name+": "+f.Value)
	}
	return out
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return s + "\n" + line
}
