package supervisor

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func dedupAll(chunks []string) string {
	var d Deduper
	var out strings.Builder
	for _, c := range chunks {
		out.WriteString(d.Push(c))
	}
	out.WriteString(d.Flush())
	return out.String()
}

func TestDeduper_CollapsesAdjacentRepeats(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"single chunk", []string{"a\na\na\nb\n"}, "a\nb\n"},
		{"repeat across chunks", []string{"a\n", "a\n"}, "a\n"},
		{"split inside line", []string{"hel", "lo\nhel", "lo\n"}, "hello\n"},
		{"non adjacent kept", []string{"a\nb\na\n"}, "a\nb\na\n"},
		{"interleaved not collapsed", []string{"x\ny\nx\ny\n"}, "x\ny\nx\ny\n"},
		{"trailing fragment released on flush", []string{"a\n", "b"}, "a\nb"},
		{"trailing fragment equal to last", []string{"a\n", "a"}, "a\n"},
		{"empty lines", []string{"\n\n\nz\n"}, "\nz\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dedupAll(tt.chunks))
		})
	}
}

func TestDeduper_SplitInvariance(t *testing.T) {
	input := strings.Repeat("10-01 10:00:00.000 1 1 D TagA: hello\n", 5) +
		"10-01 10:00:00.001 1 1 I TagB: world\n" +
		strings.Repeat("same\n", 3) + "other\nsame\n" + "tail without newline"
	want := dedupAll([]string{input})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		var chunks []string
		rest := input
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			if n > 17 {
				n = 1 + rng.Intn(17)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		assert.Equal(t, want, dedupAll(chunks), "split %d: %q", i, chunks)
	}
}

func TestDeduper_Carry(t *testing.T) {
	var d Deduper
	assert.Equal(t, "", d.Push("partial"))
	assert.Equal(t, len("partial"), d.Pending())
	assert.Equal(t, "partial line\n", d.Push(" line\nnext"))
	assert.Equal(t, len("next"), d.Pending())

	d.Break()
	assert.Equal(t, "next\n", d.Push("\n"))

	d.Reset()
	assert.Zero(t, d.Pending())
}
