package engine

// Batch planner for many pair runs

type Chunk struct {
	Start int
	End   int // exclusive
}

type Planner struct {
	MaxChunkSize int
	MaxWorkers   int
}

func NewPlanner(maxChunkSize, maxWorkers int) *Planner {
	if maxChunkSize <= 0 {
		maxChunkSize = 1
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Planner{
		MaxChunkSize: maxChunkSize,
		MaxWorkers:   maxWorkers,
	}
}

// PlanChunks splits n jobs into contiguous chunks of at most MaxChunkSize.
func (p *Planner) PlanChunks(n int) []Chunk {
	var chunks []Chunk
	for i := 0; i < n; i += p.MaxChunkSize {
		end := i + p.MaxChunkSize
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{Start: i, End: end})
	}
	return chunks
}

// Workers caps the worker count at the number of chunks.
func (p *Planner) Workers(chunks int) int {
	if chunks < p.MaxWorkers {
		return chunks
	}
	return p.MaxWorkers
}
