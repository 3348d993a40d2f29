// Package jsonutil pulls the JSON payload out of free-form model replies.
package jsonutil

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// fence 匹配 ```json ... ``` 代码块（语言标记可省略）。
var fence = regexp.MustCompile("(?s)```[\\w-]*[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSON returns the first valid JSON object or array in raw. Fenced blocks are
// searched before the surrounding prose.
func ExtractJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, m := range fence.FindAllStringSubmatch(raw, -1) {
		if out, ok := firstValue(m[1]); ok {
			return out, true
		}
	}
	return firstValue(raw)
}

// firstValue 依次从每个 '{' / '[' 截取平衡片段，返回第一个能通过 gjson 校验的。
func firstValue(s string) (string, bool) {
	for off := 0; off < len(s); {
		i := strings.IndexAny(s[off:], "{[")
		if i < 0 {
			break
		}
		start := off + i
		if end := closing(s, start); end > 0 && gjson.Valid(s[start:end]) {
			return s[start:end], true
		}
		off = start + 1
	}
	return "", false
}

// closing 返回与 s[start] 配对的闭合括号之后的下标，找不到时返回 -1。
func closing(s string, start int) int {
	var stack []byte
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case inStr:
			esc = c == '\\'
			inStr = c != '"'
		case c == '"':
			inStr = true
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case c == '}' || c == ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1
			}
		}
	}
	return -1
}
