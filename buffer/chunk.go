package buffer

// Chunk accumulates formatted events until it is flushed. A chunk belongs to
// exactly one Buffer.
type Chunk struct {
	data    []byte
	records int
	size    int64
	binary  bool
}

func newChunk(binary bool) *Chunk {
	return &Chunk{binary: binary}
}

func (c *Chunk) add(data []byte) int {
	c.data = append(c.data, data...)
	c.records++
	if c.binary {
		c.size += int64(len(data))
	}
	return len(data)
}

// Bytes returns the concatenated data of the chunk.
func (c *Chunk) Bytes() []byte { return c.data }

// Records returns the number of events in the chunk.
func (c *Chunk) Records() int { return c.records }

// Size returns the accounted byte size. It is always 0 for non-binary chunks.
func (c *Chunk) Size() int64 { return c.size }

// Empty reports whether no event was added.
func (c *Chunk) Empty() bool { return c.records == 0 }
