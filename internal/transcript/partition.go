package transcript

// DefaultChunkSize is the number of sentences sent in one classification request.
const DefaultChunkSize = 25

// Chunk is a contiguous batch of sentences. Start is the global index of the first sentence.
type Chunk struct {
	Start     int
	Sentences []string
}

// End returns the global index one past the last sentence.
func (c Chunk) End() int {
	return c.Start + len(c.Sentences)
}

// Partition splits items into contiguous, order-preserving slices of at most size
// elements. The last slice may be shorter. A size below 1 falls back to DefaultChunkSize.
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = DefaultChunkSize
	}
	if len(items) == 0 {
		return [][]T{}
	}

	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}

// Chunks partitions sentences and records each batch's starting index.
func Chunks(sentences []string, size int) []Chunk {
	parts := Partition(sentences, size)
	chunks := make([]Chunk, len(parts))
	offset := 0
	for i, p := range parts {
		chunks[i] = Chunk{Start: offset, Sentences: p}
		offset += len(p)
	}
	return chunks
}
