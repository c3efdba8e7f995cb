package render

import (
	"regexp"
	"strconv"
	"strings"
)

// Line is one backlog line, parsed into display columns when it follows a
// known logcat format.
type Line struct {
	Raw        string
	Structured bool

	// Date is YYYY-MM-DD when the format carries one
	Date     string
	Time     string
	PID      int
	TID      int
	Priority string
	Tag      string
	// Package is parsed from the line or resolved later
	Package string
	Message string
	// MsgStart is the byte offset of Message within Raw
	MsgStart int
}

// Parser turns a raw line into a structured one, reporting false when the
// line is not in its format.
type Parser func(raw string, year int) (Line, bool)

// Parsers are tried in order by ParseLine
var Parsers = []Parser{ParseThreadtime, ParseTime, ParseBrief}

const priorities = `[VDIWEFAS]`

var (
	threadtimeRe = regexp.MustCompile(`^(?:(\d{4})-)?(\d{2}-\d{2})\s+(\d{2}:\d{2}:\d{2}(?:\.\d+)?)\s+(\d+)\s+(\d+)\s+(?:([A-Za-z][\w]*(?:\.[\w]+)+(?::[\w]+)?)\s+)?(` + priorities + `)\s+(.*?)\s*: ?(.*)$`)
	timeRe       = regexp.MustCompile(`^(?:(\d{4})-)?(\d{2}-\d{2})\s+(\d{2}:\d{2}:\d{2}(?:\.\d+)?)\s+(` + priorities + `)/(.*?)\(\s*(\d+)\): ?(.*)$`)
	briefRe      = regexp.MustCompile(`^(` + priorities + `)/(.*?)\(\s*(\d+)\): ?(.*)$`)
	priorityRe   = regexp.MustCompile(`(?:^|\s)(` + priorities + `)[/\s]`)
)

// ParseLine applies every parser in order and falls back to a raw line with
// a best-effort priority.
func ParseLine(raw string, year int) Line {
	raw = strings.TrimSuffix(raw, "\r")
	for _, p := range Parsers {
		if line, ok := p(raw, year); ok {
			return line
		}
	}
	line := Line{Raw: raw, Message: raw}
	if m := priorityRe.FindStringSubmatch(raw); m != nil {
		line.Priority = m[1]
	}
	return line
}

// ParseThreadtime parses `date time pid tid [package] priority tag: message`
func ParseThreadtime(raw string, year int) (Line, bool) {
	m := threadtimeRe.FindStringSubmatchIndex(raw)
	if m == nil {
		return Line{}, false
	}
	g := groups(raw, m)
	return Line{
		Raw:        raw,
		Structured: true,
		Date:       normalizeDate(g[1], g[2], year),
		Time:       g[3],
		PID:        atoi(g[4]),
		TID:        atoi(g[5]),
		Package:    g[6],
		Priority:   g[7],
		Tag:        strings.TrimSpace(g[8]),
		Message:    g[9],
		MsgStart:   m[18],
	}, true
}

// ParseTime parses `date time priority/tag(pid): message`
func ParseTime(raw string, year int) (Line, bool) {
	m := timeRe.FindStringSubmatchIndex(raw)
	if m == nil {
		return Line{}, false
	}
	g := groups(raw, m)
	return Line{
		Raw:        raw,
		Structured: true,
		Date:       normalizeDate(g[1], g[2], year),
		Time:       g[3],
		Priority:   g[4],
		Tag:        strings.TrimSpace(g[5]),
		PID:        atoi(g[6]),
		Message:    g[7],
		MsgStart:   m[14],
	}, true
}

// ParseBrief parses `priority/tag(pid): message`
func ParseBrief(raw string, _ int) (Line, bool) {
	m := briefRe.FindStringSubmatchIndex(raw)
	if m == nil {
		return Line{}, false
	}
	g := groups(raw, m)
	return Line{
		Raw:        raw,
		Structured: true,
		Priority:   g[1],
		Tag:        strings.TrimSpace(g[2]),
		PID:        atoi(g[3]),
		Message:    g[4],
		MsgStart:   m[8],
	}, true
}

// Searchable is the text a filter is matched against
func (l Line) Searchable() string {
	if l.Tag == "" && l.Package == "" {
		return l.Raw
	}
	return l.Raw + " " + l.Tag + " " + l.Package
}

// groups extracts submatches, "" for groups that did not participate
func groups(s string, idx []int) []string {
	out := make([]string, len(idx)/2)
	for i := range out {
		if idx[2*i] >= 0 {
			out[i] = s[idx[2*i]:idx[2*i+1]]
		}
	}
	return out
}

// normalizeDate turns MM-DD into YYYY-MM-DD. An explicit year is kept.
func normalizeDate(yyyy, mmdd string, year int) string {
	if yyyy != "" {
		return yyyy + "-" + mmdd
	}
	return strconv.Itoa(year) + "-" + mmdd
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
