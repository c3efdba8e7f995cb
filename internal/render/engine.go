// Package render turns the growing log stream into display lines. The
// Engine owns the backlog and decides, frame by frame, whether new text is
// appended incrementally or the whole view is rebuilt.
package render

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/clock"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// NoticeWithheld is shown when output is held because the view is scrolled up
const NoticeWithheld = "new logs paused while scrolled up"

// Surface is the scrollable display the engine draws on. Offsets and line
// counts refer to rendered lines.
type Surface interface {
	AtBottom() bool
	ScrollToBottom()
	Offset() int
	SetOffset(offset int)
	AppendLines(lines []string)
	SetLines(lines []string)
	SetWrap(wrap bool)
	Notify(text string)
}

// FrameScheduler runs a callback at the next frame. It must not run the
// callback synchronously.
type FrameScheduler interface {
	RequestFrame(fn func())
}

// Options configure an Engine
type Options struct {
	Surface   Surface
	Scheduler FrameScheduler
	Formatter Formatter
	Clock     clock.Clock
	MaxChars  int
	// PidRebuildDelay coalesces rebuilds after pid map updates
	PidRebuildDelay time.Duration
}

// Engine is the render/filter pipeline. All methods are safe for
// concurrent use; surface calls happen with the engine lock held.
type Engine struct {
	mu sync.Mutex

	surface   Surface
	scheduler FrameScheduler
	formatter Formatter
	clock     clock.Clock
	pidDelay  time.Duration

	backlog *Backlog
	// queued is flushed to the backlog at the next frame
	queued strings.Builder
	// withheld accumulates while the view is not following
	withheld strings.Builder
	follow   bool
	notified bool

	frameRequested   bool
	rebuildRequested bool
	preserveOffset   bool

	filterText    string
	caseSensitive bool
	wrap          bool
	serial        string
	pkg           string
	filter        *FilterAST

	pids       map[int]string
	pidTimer   clock.Timer
	misses     map[int]struct{}
	finder     Finder
	renderedTo int
	// lineStarts holds the backlog offset of every rendered line
	lineStarts []int
}

// NewEngine creates an engine drawing on opts.Surface
func NewEngine(opts Options) *Engine {
	if opts.Formatter == nil {
		opts.Formatter = HTMLFormatter{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.PidRebuildDelay <= 0 {
		opts.PidRebuildDelay = constants.PidMapRebuildDelay
	}
	e := &Engine{
		surface:   opts.Surface,
		scheduler: opts.Scheduler,
		formatter: opts.Formatter,
		clock:     opts.Clock,
		pidDelay:  opts.PidRebuildDelay,
		backlog:   NewBacklog(opts.MaxChars),
	}
	e.resetLocked()
	return e
}

// Reset returns the engine to its initial state
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	e.surface.SetLines(nil)
}

func (e *Engine) resetLocked() {
	e.backlog.Reset("")
	e.queued.Reset()
	e.withheld.Reset()
	e.follow = true
	e.notified = false
	e.rebuildRequested = false
	e.preserveOffset = false
	e.filterText = ""
	e.caseSensitive = false
	e.wrap = false
	e.serial = ""
	e.pkg = ""
	e.filter = CompileFilter("", false)
	e.pids = make(map[int]string)
	if e.pidTimer != nil {
		e.pidTimer.Stop()
		e.pidTimer = nil
	}
	e.misses = make(map[int]struct{})
	e.finder = Finder{}
	e.renderedTo = 0
	e.lineStarts = nil
}

// Append accepts streamed text. While following at the bottom it is queued
// for the next frame; otherwise it is withheld until follow resumes.
func (e *Engine) Append(text string) {
	if text == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.follow && e.surface.AtBottom() {
		e.queued.WriteString(text)
		e.requestFrameLocked()
		return
	}
	e.follow = false
	e.withheld.WriteString(text)
	if !e.notified {
		e.notified = true
		e.surface.Notify(NoticeWithheld)
	}
}

// ResumeFollow releases withheld text in order and sticks to the bottom
func (e *Engine) ResumeFollow() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumeLocked()
}

func (e *Engine) resumeLocked() {
	if e.withheld.Len() > 0 {
		e.queued.WriteString(e.withheld.String())
		e.withheld.Reset()
	}
	e.follow = true
	e.notified = false
	e.surface.ScrollToBottom()
	e.requestFrameLocked()
}

// CheckFollow recomputes follow from the surface position. Reaching the
// bottom releases withheld text.
func (e *Engine) CheckFollow() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.surface.AtBottom() {
		e.follow = false
		return
	}
	if e.withheld.Len() > 0 {
		e.resumeLocked()
		return
	}
	e.follow = true
}

// ScheduleRebuild requests a full rebuild at the next frame. The scroll
// offset is kept only if every request since the last frame asked for it.
func (e *Engine) ScheduleRebuild(preserveOffset bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scheduleRebuildLocked(preserveOffset)
}

func (e *Engine) scheduleRebuildLocked(preserveOffset bool) {
	e.markRebuildLocked(preserveOffset)
	e.requestFrameLocked()
}

func (e *Engine) markRebuildLocked(preserveOffset bool) {
	if e.rebuildRequested {
		e.preserveOffset = e.preserveOffset && preserveOffset
	} else {
		e.rebuildRequested = true
		e.preserveOffset = preserveOffset
	}
}

func (e *Engine) requestFrameLocked() {
	if e.frameRequested {
		return
	}
	e.frameRequested = true
	e.scheduler.RequestFrame(e.flush)
}

// flush runs once per frame
func (e *Engine) flush() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.frameRequested = false
	wasFollowing := e.follow

	if e.queued.Len() > 0 {
		text := e.queued.String()
		e.queued.Reset()

		if trimmed := e.backlog.Append(text); trimmed > 0 {
			e.markRebuildLocked(false)
		} else if !e.rebuildRequested {
			from := e.renderedTo
			if e.finder.Active() {
				e.finder.Extend(e.backlog.Slice(from, e.backlog.completeEnd(from)), from)
			}
			lines := e.renderRangeLocked(from)
			if len(lines) > 0 {
				e.surface.AppendLines(lines)
			}
			if wasFollowing {
				e.surface.ScrollToBottom()
			}
		}
	}

	if e.rebuildRequested {
		e.rebuildLocked()
	}
}

// rebuildLocked re-renders every complete backlog line
func (e *Engine) rebuildLocked() {
	preserve := e.preserveOffset
	e.rebuildRequested = false
	e.preserveOffset = false

	offset := e.surface.Offset()
	e.renderedTo = 0
	e.lineStarts = e.lineStarts[:0]
	e.indexFindLocked()
	lines := e.renderRangeLocked(0)

	e.surface.SetWrap(e.wrap)
	e.surface.SetLines(lines)
	switch {
	case preserve:
		e.surface.SetOffset(offset)
	case e.follow:
		e.surface.ScrollToBottom()
	}
}

// renderRangeLocked renders complete lines from offset from and advances
// renderedTo past them
func (e *Engine) renderRangeLocked(from int) []string {
	end := e.backlog.completeEnd(from)
	if end <= from {
		return nil
	}
	chunk := e.backlog.Slice(from, end)
	e.renderedTo = end

	year := e.clock.Now().Year()
	var out []string
	pos := from
	for _, raw := range strings.SplitAfter(chunk, "\n") {
		if raw == "" {
			continue
		}
		start := pos
		pos += len(raw)
		if rendered, ok := e.renderLineLocked(strings.TrimSuffix(raw, "\n"), start, year); ok {
			out = append(out, rendered)
			e.lineStarts = append(e.lineStarts, start)
		}
	}
	return out
}

// renderLineLocked filters and formats one line. A panic while formatting
// degrades the line to escaped raw text.
func (e *Engine) renderLineLocked(raw string, start, year int) (out string, ok bool) {
	line := ParseLine(raw, year)
	line.Package = e.resolvePackageLocked(line)
	if !e.filter.Match(line.Searchable()) {
		return "", false
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("line", raw).Warnf("render: formatting failed: %v", r)
			out, ok = html.EscapeString(raw), true
		}
	}()
	var hl []Highlight
	if e.finder.Active() {
		hl = e.finder.Within(start, start+len(raw))
	}
	return e.formatter.Format(line, hl), true
}

// resolvePackageLocked picks the parsed package, then the pid map, then the
// session package. Unknown pids are recorded as misses.
func (e *Engine) resolvePackageLocked(line Line) string {
	if line.Package != "" {
		return line.Package
	}
	if !line.Structured {
		return ""
	}
	if line.PID > 0 {
		if name, ok := e.pids[line.PID]; ok {
			return name
		}
		e.misses[line.PID] = struct{}{}
	}
	return e.pkg
}

// SetFilter recompiles the filter and rebuilds
func (e *Engine) SetFilter(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if text == e.filterText {
		return
	}
	e.filterText = text
	e.filter = CompileFilter(text, e.caseSensitive)
	e.scheduleRebuildLocked(false)
}

// SetCaseSensitive toggles filter case sensitivity and rebuilds
func (e *Engine) SetCaseSensitive(caseSensitive bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caseSensitive == e.caseSensitive {
		return
	}
	e.caseSensitive = caseSensitive
	e.filter = CompileFilter(e.filterText, caseSensitive)
	e.scheduleRebuildLocked(false)
}

// SetWrap toggles soft wrap and rebuilds keeping the scroll position
func (e *Engine) SetWrap(wrap bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if wrap == e.wrap {
		return
	}
	e.wrap = wrap
	e.scheduleRebuildLocked(true)
}

// SetPackage changes the session package used for package resolution
func (e *Engine) SetPackage(pkg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pkg == e.pkg {
		return
	}
	e.pkg = pkg
	e.scheduleRebuildLocked(true)
}

// SetSerial switches device. The backlog and pid map belong to a device and
// are dropped when it changes.
func (e *Engine) SetSerial(serial string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if serial == e.serial {
		return
	}
	e.serial = serial
	e.clearLocked()
	e.pids = make(map[int]string)
	e.misses = make(map[int]struct{})
	e.scheduleRebuildLocked(false)
}

// MergePidMap adds pid names. The rebuild is debounced.
func (e *Engine) MergePidMap(delta map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := false
	for k, name := range delta {
		pid, err := strconv.Atoi(k)
		if err != nil || pid <= 0 {
			continue
		}
		if e.pids[pid] != name {
			e.pids[pid] = name
			changed = true
		}
		delete(e.misses, pid)
	}
	if !changed || e.pidTimer != nil {
		return
	}
	e.pidTimer = e.clock.AfterFunc(e.pidDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.pidTimer = nil
		e.scheduleRebuildLocked(true)
	})
}

// TakePidMisses returns and forgets the pids seen without a known name
func (e *Engine) TakePidMisses() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.misses) == 0 {
		return nil
	}
	out := make([]int, 0, len(e.misses))
	for pid := range e.misses {
		out = append(out, pid)
	}
	e.misses = make(map[int]struct{})
	sort.Ints(out)
	return out
}

// Clear empties the backlog and the view
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearLocked()
	e.surface.SetLines(nil)
}

func (e *Engine) clearLocked() {
	e.backlog.Reset("")
	e.queued.Reset()
	e.withheld.Reset()
	e.follow = true
	e.notified = false
	e.finder.Reset()
	e.renderedTo = 0
	e.lineStarts = nil
}

// LoadDump replaces the backlog with a history dump or an imported file
func (e *Engine) LoadDump(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clearLocked()
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	e.backlog.Reset(text)
	e.scheduleRebuildLocked(false)
}

// ExportText returns everything received: backlog, queued, then withheld
func (e *Engine) ExportText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backlog.Text() + e.queued.String() + e.withheld.String()
}

// Stats describes the engine for status lines
type Stats struct {
	BacklogBytes  int
	RenderedLines int
	Withheld      int
	Following     bool
	FindMatches   int
	FindCurrent   int
}

// Stats returns a snapshot of counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		BacklogBytes:  e.backlog.Len(),
		RenderedLines: len(e.lineStarts),
		Withheld:      e.withheld.Len(),
		Following:     e.follow,
		FindMatches:   e.finder.Count(),
		FindCurrent:   e.finder.CurrentIndex(),
	}
}

// SetFind sets the find query. Matches are indexed over the whole backlog
// and the current match is aligned with the top of the viewport by
// proportional line mapping. An invalid expression yields no matches.
func (e *Engine) SetFind(query string, regex, caseSensitive bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.finder.Set(query, regex, caseSensitive)
	e.indexFindLocked()
	if e.finder.Active() {
		e.finder.AlignTo(e.viewportOffsetLocked())
	}
	e.scheduleRebuildLocked(true)
	return err
}

// indexFindLocked recomputes matches over the complete backlog lines
func (e *Engine) indexFindLocked() {
	if e.finder.Active() {
		e.finder.Index(e.backlog.Slice(0, e.backlog.completeEnd(0)))
	}
}

// viewportOffsetLocked maps the top rendered line back to a backlog offset
func (e *Engine) viewportOffsetLocked() int {
	n := len(e.lineStarts)
	if n == 0 {
		return 0
	}
	top := min(max(e.surface.Offset(), 0), n-1)
	return e.lineStarts[top]
}

// FindNext moves to the next match and scrolls to it. It returns the 1-based
// index of the current match and the match count.
func (e *Engine) FindNext() (int, int) {
	return e.findStep(1)
}

// FindPrev moves to the previous match and scrolls to it
func (e *Engine) FindPrev() (int, int) {
	return e.findStep(-1)
}

func (e *Engine) findStep(d int) (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var span Span
	var ok bool
	if d > 0 {
		span, ok = e.finder.Next()
	} else {
		span, ok = e.finder.Prev()
	}
	if !ok {
		return 0, 0
	}

	// scroll after the rebuild that moves the current highlight
	e.scheduleRebuildLocked(true)
	if line := e.renderedLineAt(span.Start); line >= 0 {
		e.follow = false
		e.surface.SetOffset(line)
	}
	return e.finder.CurrentIndex() + 1, e.finder.Count()
}

// renderedLineAt returns the rendered line holding offset, -1 if filtered out
func (e *Engine) renderedLineAt(offset int) int {
	i := sort.Search(len(e.lineStarts), func(i int) bool { return e.lineStarts[i] > offset }) - 1
	if i < 0 {
		return -1
	}
	end := e.backlog.Len()
	if i+1 < len(e.lineStarts) {
		end = e.lineStarts[i+1]
	}
	text := e.backlog.Slice(e.lineStarts[i], end)
	if nl := strings.IndexByte(text, '\n'); nl >= 0 && e.lineStarts[i]+nl < offset {
		return -1
	}
	return i
}

// FindStatus formats the find position for display
func (e *Engine) FindStatus() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.finder.Active() {
		return ""
	}
	return fmt.Sprintf("%d/%d", e.finder.CurrentIndex()+1, e.finder.Count())
}

// State returns the persistable view state
func (e *Engine) State() domain.ViewState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.ViewState{
		Filter:        e.filterText,
		CaseSensitive: e.caseSensitive,
		Wrap:          e.wrap,
		Serial:        e.serial,
	}
}

// RestoreState applies a saved view state without dropping the backlog
func (e *Engine) RestoreState(s domain.ViewState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filterText = s.Filter
	e.caseSensitive = s.CaseSensitive
	e.wrap = s.Wrap
	e.serial = s.Serial
	e.filter = CompileFilter(s.Filter, s.CaseSensitive)
	e.scheduleRebuildLocked(false)
}

// Clusters groups the backlog by normalized pattern
func (e *Engine) Clusters() []Cluster {
	text := e.ExportText()
	return BuildClusters(text, ClusterOptions{})
}
