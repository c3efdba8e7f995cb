package render

import (
	"bytes"
	"unicode/utf8"

	"github.com/charliek/catview/internal/constants"
)

// Backlog is the authoritative text of the current session, capped at a
// maximum number of characters and trimmed from the head. Offsets are bytes.
type Backlog struct {
	buf   []byte
	chars int
	max   int
}

// NewBacklog creates a backlog holding at most max characters
func NewBacklog(max int) *Backlog {
	if max <= 0 {
		max = constants.MaxBacklogChars
	}
	return &Backlog{max: max}
}

// Append adds text and reports how many bytes were trimmed from the head
func (b *Backlog) Append(text string) int {
	b.buf = append(b.buf, text...)
	b.chars += utf8.RuneCountInString(text)
	return b.trim()
}

// Reset replaces the whole backlog
func (b *Backlog) Reset(text string) int {
	b.buf = append(b.buf[:0], text...)
	b.chars = utf8.RuneCountInString(text)
	return b.trim()
}

// Text returns a copy of the backlog contents
func (b *Backlog) Text() string {
	return string(b.buf)
}

// Slice returns the text between two offsets
func (b *Backlog) Slice(from, to int) string {
	return string(b.buf[from:to])
}

// Len returns the size in bytes
func (b *Backlog) Len() int {
	return len(b.buf)
}

// Chars returns the size in characters
func (b *Backlog) Chars() int {
	return b.chars
}

// Max returns the character cap
func (b *Backlog) Max() int {
	return b.max
}

// trim drops whole characters from the head until the cap holds and
// returns the bytes dropped
func (b *Backlog) trim() int {
	over := b.chars - b.max
	if over <= 0 {
		return 0
	}
	cut := 0
	for ; over > 0 && cut < len(b.buf); over-- {
		_, size := utf8.DecodeRune(b.buf[cut:])
		cut += size
		b.chars--
	}
	n := copy(b.buf, b.buf[cut:])
	b.buf = b.buf[:n]
	return cut
}

// completeEnd returns the offset just past the last newline at or after from
func (b *Backlog) completeEnd(from int) int {
	if from >= len(b.buf) {
		return from
	}
	i := bytes.LastIndexByte(b.buf[from:], '\n')
	if i < 0 {
		return from
	}
	return from + i + 1
}
