package notifier

import (
	"strings"
	"time"
)

const maxMessageLen = 3800

// Section 是告警中的一个段落。
type Section struct {
	Title string
	Lines []string
}

// Message 描述统一格式的告警推送。
type Message struct {
	Icon      string
	Title     string
	Sections  []Section
	Footer    string
	Timestamp time.Time
}

// Markdown 渲染为 Telegram Markdown，超长时截断。
func (m Message) Markdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	b.WriteString(codeBlock(m.Sections))
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(escapeFence(footer))
		b.WriteString("\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：")
		b.WriteString(m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}

// codeBlock 将非空段落放进一个 ``` 代码块；全部为空时返回空串。
func codeBlock(secs []Section) string {
	blocks := make([]string, 0, len(secs))
	for _, sec := range secs {
		var lines []string
		for _, line := range sec.Lines {
			if text := strings.TrimSpace(line); text != "" {
				lines = append(lines, "- "+escapeFence(text))
			}
		}
		if len(lines) == 0 {
			continue
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			lines = append([]string{escapeFence(title)}, lines...)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	if len(blocks) == 0 {
		return ""
	}
	return "```\n" + strings.Join(blocks, "\n\n") + "\n```\n\n"
}

func escapeFence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
