package supervisor

import "strings"

// Deduper collapses runs of identical adjacent lines, keeping the first.
// A trailing fragment without a newline is carried into the next Push, so
// the result does not depend on how the input was split into chunks.
// Only the single previous line is compared.
type Deduper struct {
	carry   string
	last    string
	hasLast bool
}

// Push consumes a chunk and returns the complete lines that survive dedup
func (d *Deduper) Push(chunk string) string {
	if chunk == "" {
		return ""
	}

	text := d.carry + chunk
	cut := strings.LastIndexByte(text, '\n')
	if cut < 0 {
		d.carry = text
		return ""
	}
	d.carry = text[cut+1:]

	var out strings.Builder
	complete := text[:cut+1]
	for len(complete) > 0 {
		i := strings.IndexByte(complete, '\n')
		line := complete[:i]
		complete = complete[i+1:]

		if d.hasLast && line == d.last {
			continue
		}
		d.last = line
		d.hasLast = true
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.String()
}

// Flush releases the carried fragment, subject to the same dedup rule
func (d *Deduper) Flush() string {
	frag := d.carry
	d.carry = ""
	if frag == "" || (d.hasLast && frag == d.last) {
		return ""
	}
	d.last = frag
	d.hasLast = true
	return frag
}

// Pending returns the carried fragment length
func (d *Deduper) Pending() int {
	return len(d.carry)
}

// Break forgets the previous line so the next line is never collapsed.
// Used when synthetic lines are injected between producer lines.
func (d *Deduper) Break() {
	d.hasLast = false
	d.last = ""
}

// Reset drops all state
func (d *Deduper) Reset() {
	*d = Deduper{}
}
