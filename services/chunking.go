package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"omnichannel-rag-platform/internal/config"
	"omnichannel-rag-platform/models"
)

// ChunkingService splits documents into retrievable chunks with boundary
// awareness: paragraphs first, sentences inside oversized paragraphs, hard
// character splits only as a last resort. Chunking is deterministic so
// re-ingesting the same document yields identical chunk IDs.
type ChunkingService struct {
	maxChunkSize   int
	overlap        int
	minChunkSize   int
	sentenceRegex  *regexp.Regexp
	paragraphRegex *regexp.Regexp
}

func NewChunkingService(cfg *config.Config) *ChunkingService {
	return &ChunkingService{
		maxChunkSize:   cfg.MaxChunkSize,
		overlap:        cfg.ChunkOverlap,
		minChunkSize:   cfg.MinChunkSize,
		sentenceRegex:  regexp.MustCompile(`[.!?]+[\s]+`),
		paragraphRegex: regexp.MustCompile(`\n\n+`),
	}
}

// ChunkDocument splits text into chunks carrying full tenant and document
// metadata. Chunk IDs derive from the document ID and sequence index.
func (cs *ChunkingService) ChunkDocument(tenantID, documentID, title, text string) []models.Chunk {
	pieces := cs.splitText(text)

	now := time.Now()
	chunks := make([]models.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, models.Chunk{
			ID:            fmt.Sprintf("%s-%04d", documentID, i),
			DocumentID:    documentID,
			DocumentTitle: title,
			TenantID:      tenantID,
			Text:          piece,
			SequenceIndex: i,
			Keywords:      extractKeywords(piece, 5),
			CreatedAt:     now,
		})
	}
	return chunks
}

func (cs *ChunkingService) splitText(text string) []string {
	paragraphs := filterEmpty(cs.paragraphRegex.Split(text, -1))
	if len(paragraphs) == 0 {
		return nil
	}

	var pieces []string
	current := new(strings.Builder)

	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, current.String())
		}
		next := new(strings.Builder)
		if len(pieces) > 0 && cs.overlap > 0 {
			if tail := cs.overlapText(pieces[len(pieces)-1]); tail != "" {
				next.WriteString(tail)
			}
		}
		current = next
	}

	appendPart := func(part string) {
		if current.Len() > 0 && current.Len()+len(part) > cs.maxChunkSize && current.Len() >= cs.minChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(part)
	}

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if len(paragraph) <= cs.maxChunkSize {
			appendPart(paragraph)
			continue
		}

		// Paragraph alone exceeds the budget: fall back to sentences, then
		// to hard character splits for pathological unbroken text.
		for _, sentence := range cs.splitOversized(paragraph) {
			appendPart(sentence)
		}
	}

	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

func (cs *ChunkingService) splitOversized(paragraph string) []string {
	sentences := filterEmpty(cs.sentenceRegex.Split(paragraph, -1))

	var parts []string
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		for len(sentence) > cs.maxChunkSize {
			cut := cs.maxChunkSize
			if idx := strings.LastIndex(sentence[:cut], " "); idx > cs.minChunkSize {
				cut = idx
			}
			parts = append(parts, strings.TrimSpace(sentence[:cut]))
			sentence = strings.TrimSpace(sentence[cut:])
		}
		if sentence != "" {
			parts = append(parts, sentence)
		}
	}
	return parts
}

// overlapText takes trailing sentences from the previous chunk, capped at
// the configured overlap size.
func (cs *ChunkingService) overlapText(prev string) string {
	if len(prev) <= cs.overlap {
		return prev
	}

	sentences := filterEmpty(cs.sentenceRegex.Split(prev, -1))
	if len(sentences) == 0 {
		return prev[len(prev)-cs.overlap:]
	}

	tail := ""
	for i := len(sentences) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(sentences[i])
		if tail != "" {
			candidate = candidate + ". " + tail
		}
		if len(candidate) > cs.overlap {
			break
		}
		tail = candidate
	}
	if tail == "" {
		return prev[len(prev)-cs.overlap:]
	}
	return tail
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "is": true, "are": true, "was": true, "were": true,
}

// extractKeywords returns the most frequent non-stop words, ordered by
// frequency then lexicographically so results are stable.
func extractKeywords(text string, limit int) []string {
	words := strings.Fields(strings.ToLower(text))

	wordFreq := make(map[string]int)
	for _, word := range words {
		word = strings.Trim(word, ".,;:!?()[]{}\"")
		if len(word) > 2 && !stopWords[word] {
			wordFreq[word]++
		}
	}

	type wordCount struct {
		word  string
		count int
	}
	counts := make([]wordCount, 0, len(wordFreq))
	for word, freq := range wordFreq {
		if freq >= 2 {
			counts = append(counts, wordCount{word, freq})
		}
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].word < counts[j].word
	})

	if len(counts) > limit {
		counts = counts[:limit]
	}
	keywords := make([]string, len(counts))
	for i, wc := range counts {
		keywords[i] = wc.word
	}
	return keywords
}

func filterEmpty(slice []string) []string {
	result := make([]string, 0, len(slice))
	for _, s := range slice {
		if len(strings.TrimSpace(s)) > 0 {
			result = append(result, s)
		}
	}
	return result
}
