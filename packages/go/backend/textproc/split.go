// Package textproc extracts plain text from uploaded documents and splits it
// into translatable paragraphs.
package textproc

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sentenceEnds are the runes a long paragraph may be broken after.
const sentenceEnds = "。！？；.!?;"

// Split returns the non-empty, trimmed lines of text in order. When
// maxRunes > 0, paragraphs longer than maxRunes are broken after sentence
// terminators so that no piece exceeds maxRunes unless a single sentence does.
func Split(text string, maxRunes int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var paragraphs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimFunc(line, unicode.IsSpace)
		if line == "" {
			continue
		}
		if maxRunes > 0 && utf8.RuneCountInString(line) > maxRunes {
			paragraphs = append(paragraphs, splitLong(line, maxRunes)...)
			continue
		}
		paragraphs = append(paragraphs, line)
	}
	return paragraphs
}

func splitLong(paragraph string, maxRunes int) []string {
	var (
		out     []string
		current strings.Builder
		count   int
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
		count = 0
	}

	for _, sentence := range sentences(paragraph) {
		n := utf8.RuneCountInString(sentence)
		if count > 0 && count+n > maxRunes {
			flush()
		}
		current.WriteString(sentence)
		count += n
	}
	flush()
	return out
}

// sentences cuts s after every terminator, keeping the terminator.
func sentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if strings.ContainsRune(sentenceEnds, r) {
			end := i + utf8.RuneLen(r)
			out = append(out, s[start:end])
			start = end
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
