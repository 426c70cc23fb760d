package queue

import (
	"sync/atomic"
)

// Statistics counts queue operations. All methods are safe for concurrent use.
type Statistics struct {
	writes  atomic.Int64
	reads   atomic.Int64
	blocks  atomic.Int64
	size    atomic.Int64
	maxSize atomic.Int64
}

// NewStatistics creates an empty statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) write(size int64) {
	s.writes.Add(1)
	s.updateSize(size)
}

func (s *Statistics) read(size int64) {
	s.reads.Add(1)
	s.updateSize(size)
}

func (s *Statistics) block() { s.blocks.Add(1) }

func (s *Statistics) updateSize(size int64) {
	s.size.Store(size)
	for {
		cur := s.maxSize.Load()
		if size <= cur || s.maxSize.CompareAndSwap(cur, size) {
			return
		}
	}
}

// Writes returns the number of accepted writes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the number of items read.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Blocks returns how many writes had to wait for room.
func (s *Statistics) Blocks() int64 { return s.blocks.Load() }

// CurrentSize returns the queue length after the last operation.
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the high-water mark of the queue length.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// Summary is a point-in-time copy of the statistics.
type Summary struct {
	Writes      int64 `json:"writes"`
	Reads       int64 `json:"reads"`
	Blocks      int64 `json:"blocks"`
	CurrentSize int64 `json:"current_size"`
	MaxSize     int64 `json:"max_size"`
}

// Summary returns a snapshot of all counters.
func (s *Statistics) Summary() Summary {
	return Summary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Blocks:      s.Blocks(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
	}
}
