package deliver

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Chunk splits text into pieces of at most max runes. A split prefers the
// last newline in the back half of the window. Concatenating the chunks
// yields text unchanged.
func Chunk(text string, max int) []string {
	return split(text, max, runePrefix)
}

// ChunkBytes is Chunk with the limit counted in bytes, never splitting a rune.
func ChunkBytes(text string, max int) []string {
	return split(text, max, bytePrefix)
}

// ChunkUTF16 is Chunk with the limit counted in UTF-16 code units, the way
// Telegram measures message length. A rune outside the BMP counts as two.
func ChunkUTF16(text string, max int) []string {
	return split(text, max, utf16Prefix)
}

func split(text string, max int, prefix func(string, int) int) []string {
	if text == "" {
		return nil
	}
	if max <= 0 {
		return []string{text}
	}

	var out []string
	for text != "" {
		end := prefix(text, max)
		if end < len(text) {
			if nl := strings.LastIndexByte(text[:end], '\n'); nl >= end/2 && nl+1 < end {
				end = nl + 1
			}
		}
		out = append(out, text[:end])
		text = text[end:]
	}
	return out
}

// runePrefix returns the byte length of the first max runes of s.
func runePrefix(s string, max int) int {
	n := 0
	for i := range s {
		if n == max {
			return i
		}
		n++
	}
	return len(s)
}

// bytePrefix returns the longest prefix of at most max bytes ending on a rune
// boundary, or the first rune when it alone exceeds max.
func bytePrefix(s string, max int) int {
	if len(s) <= max {
		return len(s)
	}
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	if i == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return i
}

// utf16Prefix returns the byte length of the longest prefix of s that fits
// in max UTF-16 code units, or the first rune when it alone exceeds max.
func utf16Prefix(s string, max int) int {
	units := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if units+w > max {
			if i == 0 {
				_, size := utf8.DecodeRuneInString(s)
				return size
			}
			return i
		}
		units += w
	}
	return len(s)
}

func truncateUTF16(s string, n int) string {
	if n <= 0 {
		return ""
	}
	return s[:utf16Prefix(s, n)]
}
