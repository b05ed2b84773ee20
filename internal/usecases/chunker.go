package usecases

import (
	"math"
	"regexp"
	"strings"
)

const (
	tokensPerWord     = 0.75
	targetChunkTokens = 500
	targetChunkWords  = 666 // floor(targetChunkTokens / tokensPerWord)
	chunkOverlap      = 0.2
	minChunks         = 2
	minWordsPerChunk  = 50
)

// Chunk is a slice of a document's words.
type Chunk struct {
	Text      string
	Index     int
	StartWord int
	EndWord   int
	Tokens    int
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

// CleanText collapses whitespace and removes control characters.
func CleanText(text string) string {
	text = controlChars.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// EstimateTokens approximates the model token count of text.
func EstimateTokens(text string) int {
	return wordsToTokens(len(strings.Fields(text)))
}

func wordsToTokens(words int) int {
	return int(math.Ceil(float64(words) * tokensPerWord))
}

// ChunkText splits text into overlapping word windows. Short texts get smaller
// windows so that they still produce at least two chunks when possible.
func ChunkText(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	size := targetChunkWords
	if len(words) < targetChunkWords*minChunks {
		size = max(minWordsPerChunk, len(words)/minChunks)
	}
	overlap := int(float64(size) * chunkOverlap)

	chunks := []Chunk{}
	for start := 0; start < len(words); {
		end := min(start+size, len(words))
		chunks = append(chunks, Chunk{
			Text:      strings.Join(words[start:end], " "),
			Index:     len(chunks),
			StartWord: start,
			EndWord:   end,
			Tokens:    wordsToTokens(end - start),
		})
		if end == len(words) {
			break
		}
		start = end - overlap
	}
	return chunks
}
