package toolzoo

import (
	"regexp"
	"strings"
	"sync"
)

var tokenPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "to": true, "of": true, "in": true,
	"for": true, "on": true, "and": true, "or": true, "with": true,
}

// tokenize lowercases, splits on non-alphanumeric runs, and drops stopwords
// and words of length <= 2, matching the Register contract's keyword index
// tokenization rule.
func tokenize(text string) map[string]bool {
	words := tokenPattern.Split(strings.ToLower(text), -1)
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) > 2 && !stopwords[w] {
			out[w] = true
		}
	}
	return out
}

// keywordIndex is an inverted index from token to the set of tool ids
// containing it, guarded by its own mutex so Register/Remove can update it
// independently of the vector store.
type keywordIndex struct {
	mu    sync.RWMutex
	index map[string]map[string]bool // token -> set of tool ids
}

func newKeywordIndex() *keywordIndex {
	return &keywordIndex{index: make(map[string]map[string]bool)}
}

func (k *keywordIndex) add(toolID, text string) {
	tokens := tokenize(text)
	k.mu.Lock()
	defer k.mu.Unlock()
	for tok := range tokens {
		set, ok := k.index[tok]
		if !ok {
			set = make(map[string]bool)
			k.index[tok] = set
		}
		set[toolID] = true
	}
}

func (k *keywordIndex) remove(toolID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for tok, set := range k.index {
		delete(set, toolID)
		if len(set) == 0 {
			delete(k.index, tok)
		}
	}
}

func (k *keywordIndex) clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.index = make(map[string]map[string]bool)
}

// search scores each tool id by matches/|queryTokens|, per the KeywordSearch
// contract.
func (k *keywordIndex) search(query string) map[string]float64 {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	matches := make(map[string]int)
	for tok := range queryTokens {
		for toolID := range k.index[tok] {
			matches[toolID]++
		}
	}

	scores := make(map[string]float64, len(matches))
	for toolID, count := range matches {
		scores[toolID] = float64(count) / float64(len(queryTokens))
	}
	return scores
}
