package summarize

import (
	"context"
	"strings"
	"unicode"
)

const (
	maxBullets       = 4
	maxFirstSentence = 120
	maxBullet        = 240
)

// HeuristicSummarizer builds an article without any network call: the first
// sentence becomes the headline and sentences carrying figures are listed.
type HeuristicSummarizer struct{}

func (h *HeuristicSummarizer) Summarize(_ context.Context, req Request) (Article, error) {
	sentences := splitSentences(cleanText(req.Text))
	if len(sentences) == 0 {
		return Article{}, ErrEmptyResponse
	}

	title := truncateWords(sentences[0], maxFirstSentence)

	var withFigures, others []string
	for _, s := range sentences[1:] {
		if strings.IndexFunc(s, unicode.IsDigit) >= 0 {
			withFigures = append(withFigures, s)
		} else {
			others = append(others, s)
		}
	}

	var b strings.Builder
	for i, s := range append(withFigures, others...) {
		if i == maxBullets {
			break
		}
		b.WriteString("- ")
		b.WriteString(truncateWords(s, maxBullet))
		b.WriteByte('\n')
	}

	body := strings.TrimSpace(b.String())
	if body == "" {
		body = title
	}
	return Article{Title: title, Body: body}, nil
}

// cleanText turns box-drawing table borders into plain separators and drops
// lines that carry no letters or digits.
func cleanText(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Map(func(r rune) rune {
			if r >= 0x2500 && r <= 0x257F {
				return ' '
			}
			return r
		}, line)
		line = strings.Join(strings.Fields(line), " ")
		if strings.IndexFunc(line, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// splitSentences splits text into sentences by ". " or newline boundaries.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			flush()
			continue
		}
		current.WriteByte(text[i])
		if text[i] == '.' && i+1 < len(text) && text[i+1] == ' ' {
			flush()
		}
	}
	flush()
	return sentences
}

// truncateWords caps s at maxLen runes, cutting at the last space when possible.
func truncateWords(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	cut := string(r[:maxLen])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
