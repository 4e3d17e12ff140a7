package firmware

// MaxChunk is the largest payload of one flash upload command.
const MaxChunk = 128

// Chunks splits data into consecutive pieces of at most size bytes. Sizes
// outside 1..MaxChunk are clamped. The pieces alias data. Returns nil for
// empty data.
func Chunks(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	size = clampChunk(size)

	chunks := make([][]byte, 0, ChunkCount(len(data), size))
	for len(data) > 0 {
		n := min(size, len(data))
		chunks = append(chunks, data[:n:n])
		data = data[n:]
	}
	return chunks
}

// ChunkCount returns how many chunks of size bytes an n-byte image needs.
func ChunkCount(n, size int) int {
	if n <= 0 {
		return 0
	}
	size = clampChunk(size)
	return (n + size - 1) / size
}

func clampChunk(size int) int {
	if size <= 0 || size > MaxChunk {
		return MaxChunk
	}
	return size
}
