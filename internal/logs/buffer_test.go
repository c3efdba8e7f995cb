package logs

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/charliek/catview/internal/domain"
)

func makeEntry(seq uint64, text string) Entry {
	return Entry{
		Seq:       seq,
		Timestamp: time.Now(),
		Message:   domain.AppendMsg{Text: text},
	}
}

func textOf(e Entry) string {
	switch m := e.Message.(type) {
	case domain.AppendMsg:
		return m.Text
	case domain.StatusMsg:
		return m.Text
	}
	return ""
}

func TestRingBuffer_Write_Read(t *testing.T) {
	b := NewRingBuffer(5)

	b.Write(makeEntry(1, "1"))
	b.Write(makeEntry(2, "2"))
	b.Write(makeEntry(3, "3"))

	entries := b.Read()
	assert.Len(t, entries, 3)
	assert.Equal(t, "1", textOf(entries[0]))
	assert.Equal(t, "2", textOf(entries[1]))
	assert.Equal(t, "3", textOf(entries[2]))
}

func TestRingBuffer_Overflow(t *testing.T) {
	b := NewRingBuffer(3)

	for i := 1; i <= 10; i++ {
		b.Write(makeEntry(uint64(i), strconv.Itoa(i)))
	}

	entries := b.Read()
	assert.Len(t, entries, 3)
	assert.Equal(t, "8", textOf(entries[0]))
	assert.Equal(t, "9", textOf(entries[1]))
	assert.Equal(t, "10", textOf(entries[2]))
}

func TestRingBuffer_ReadLast(t *testing.T) {
	b := NewRingBuffer(5)
	for i := 1; i <= 7; i++ {
		b.Write(makeEntry(uint64(i), strconv.Itoa(i)))
	}

	t.Run("fewer than count", func(t *testing.T) {
		entries := b.ReadLast(2)
		assert.Len(t, entries, 2)
		assert.Equal(t, "6", textOf(entries[0]))
		assert.Equal(t, "7", textOf(entries[1]))
	})

	t.Run("more than count", func(t *testing.T) {
		assert.Len(t, b.ReadLast(50), 5)
	})

	t.Run("zero", func(t *testing.T) {
		assert.Nil(t, b.ReadLast(0))
	})
}

func TestRingBuffer_NotFull(t *testing.T) {
	b := NewRingBuffer(10)
	b.Write(makeEntry(1, "a"))
	b.Write(makeEntry(2, "b"))

	entries := b.ReadLast(1)
	assert.Equal(t, "b", textOf(entries[0]))
}

func TestRingBuffer_Clear(t *testing.T) {
	b := NewRingBuffer(3)
	b.Write(makeEntry(1, "a"))
	b.Clear()

	assert.Equal(t, 0, b.Count())
	assert.Nil(t, b.Read())
	assert.Equal(t, 3, b.Capacity())
}

func TestRingBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, 1000, NewRingBuffer(0).Capacity())
}

func TestRingBuffer_Concurrent(t *testing.T) {
	b := NewRingBuffer(100)
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Write(makeEntry(uint64(j), "x"))
			}
		}()
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Read()
				b.ReadLast(10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, b.Count())
}
