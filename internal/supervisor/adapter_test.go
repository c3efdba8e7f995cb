package supervisor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/catview/internal/domain"
)

type chunkCollector struct {
	mu     sync.Mutex
	chunks []string
	exits  chan domain.Exited
}

func newChunkCollector() *chunkCollector {
	return &chunkCollector{exits: make(chan domain.Exited, 1)}
}

func (c *chunkCollector) onChunk(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, s)
}

func (c *chunkCollector) onExit(e domain.Exited) {
	c.exits <- e
}

func (c *chunkCollector) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.chunks, "")
}

func TestAdapter_ForwardsOutputAndExit(t *testing.T) {
	col := newChunkCollector()
	a := NewAdapter(NewExecRunner(), col.onChunk, col.onExit)

	require.NoError(t, a.Start(context.Background(), shCommand("printf 'a\\nb\\n'; printf 'partial'; exit 3")))

	select {
	case exit := <-col.exits:
		assert.Equal(t, 3, exit.Code)
		assert.Empty(t, exit.Signal)
	case <-time.After(5 * time.Second):
		t.Fatal("expected exit")
	}

	<-a.Done()
	assert.Equal(t, "a\nb\npartial", col.text())
	assert.Zero(t, a.PID())
}

func TestAdapter_CapturesStderr(t *testing.T) {
	col := newChunkCollector()
	a := NewAdapter(NewExecRunner(), col.onChunk, col.onExit)

	require.NoError(t, a.Start(context.Background(), shCommand("echo oops >&2")))
	<-a.Done()

	assert.Equal(t, "oops\n", col.text())
}

func TestAdapter_StopInterrupts(t *testing.T) {
	col := newChunkCollector()
	a := NewAdapter(NewExecRunner(), col.onChunk, col.onExit)

	require.NoError(t, a.Start(context.Background(), shCommand("sleep 30")))
	time.Sleep(100 * time.Millisecond)
	assert.Greater(t, a.PID(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))

	exit := <-col.exits
	assert.Equal(t, -2, exit.Code)
	assert.Equal(t, "interrupt", exit.Signal)
}

func TestAdapter_StopWhenNotStarted(t *testing.T) {
	a := NewAdapter(NewExecRunner(), nil, nil)
	assert.ErrorIs(t, a.Stop(context.Background()), domain.ErrStreamNotRunning)
}

func TestAdapter_StartFailure(t *testing.T) {
	a := NewAdapter(NewExecRunner(), nil, nil)
	err := a.Start(context.Background(), Command{Name: "/nonexistent/producer"})
	assert.Error(t, err)

	select {
	case <-a.Done():
	default:
		t.Fatal("done should be closed after a failed start")
	}
}
