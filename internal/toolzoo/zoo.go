package toolzoo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// defaultDomainKeywords grounds the domainMatch feature in a concrete
// trigger-word table, carried over from the router's domain detection so the
// Routing Pipeline has something to match against. Overridable via config.
var defaultDomainKeywords = map[string][]string{
	"email":         {"email", "mail", "inbox", "send message"},
	"calendar":      {"calendar", "meeting", "schedule", "appointment", "event"},
	"code":          {"pull request", "pr", "commit", "branch", "repository", "code"},
	"payments":      {"charge", "payment", "invoice", "refund", "stripe"},
	"communication": {"slack", "message", "chat", "notify", "channel"},
}

// Config configures a ToolZoo instance.
type Config struct {
	TopK               int
	SimilarityThreshold float64
	DomainKeywords      map[string][]string
}

// DefaultConfig returns the zoo's default query parameters.
func DefaultConfig() Config {
	return Config{TopK: 10, SimilarityThreshold: 0.0, DomainKeywords: defaultDomainKeywords}
}

// ToolZoo is the authoritative index of every known tool across all
// downstream servers. Reads take a read lock against the in-memory catalog
// snapshot; Register and Remove take the exclusive lock.
type ToolZoo struct {
	cfgMu sync.RWMutex
	cfg   Config

	embedder Embedder
	vectors  VectorStore
	keywords *keywordIndex
	logger   *slog.Logger

	mu      sync.RWMutex
	byID    map[string]*Tool
	vecByID map[string]string // tool id -> vector store row id
}

// config returns the zoo's current config. Reads take a read lock so
// UpdateConfig can swap it in from a hot-reload watcher concurrently with
// in-flight searches.
func (z *ToolZoo) config() Config {
	z.cfgMu.RLock()
	defer z.cfgMu.RUnlock()
	return z.cfg
}

// UpdateConfig replaces the zoo's config wholesale, for the fields a config
// hot-reload is allowed to change at runtime (top-k, similarity threshold,
// domain keywords).
func (z *ToolZoo) UpdateConfig(cfg Config) {
	z.cfgMu.Lock()
	defer z.cfgMu.Unlock()
	z.cfg = cfg
}

// New builds a ToolZoo over the given embedder and vector-store collaborators.
func New(embedder Embedder, vectors VectorStore, cfg Config, logger *slog.Logger) *ToolZoo {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DomainKeywords == nil {
		cfg.DomainKeywords = defaultDomainKeywords
	}
	if cfg.TopK == 0 {
		cfg.TopK = 10
	}
	return &ToolZoo{
		cfg:      cfg,
		embedder: embedder,
		vectors:  vectors,
		keywords: newKeywordIndex(),
		logger:   logger.With("component", "toolzoo"),
		byID:     make(map[string]*Tool),
		vecByID:  make(map[string]string),
	}
}

// Register idempotently upserts a set of tools: computes an embedding of
// each tool's rich description, stores the vector plus metadata and schema,
// and rebuilds the keyword index entry. A failing embed call aborts before
// any partial upsert for that tool (IndexFailure); a vector-store fault for
// one tool is logged and skipped, the rest of the batch still succeeds.
func (z *ToolZoo) Register(ctx context.Context, tools []*Tool) error {
	if len(tools) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tools))
	vectors := make([][]float32, 0, len(tools))
	metadatas := make([]map[string]string, 0, len(tools))
	documents := make([]string, 0, len(tools))
	accepted := make([]*Tool, 0, len(tools))

	for _, t := range tools {
		desc := t.RichDescription()
		vec, err := z.embedder.Embed(ctx, desc)
		if err != nil {
			return fmt.Errorf("embed tool %s: %w", t.ID, err)
		}
		vid := vectorID(t.ServerID, t.Name)
		ids = append(ids, vid)
		vectors = append(vectors, vec)
		metadatas = append(metadatas, map[string]string{
			"id":           t.ID,
			"name":         t.Name,
			"display_name": t.DisplayName,
			"server_id":    t.ServerID,
			"domain":       t.Domain,
		})
		documents = append(documents, desc)
		accepted = append(accepted, t)
	}

	if err := z.vectors.Upsert(ctx, ids, vectors, metadatas, documents); err != nil {
		z.logger.Error("vector store upsert failed, skipping batch", "error", err, "count", len(ids))
		return nil
	}

	z.mu.Lock()
	for i, t := range accepted {
		if t.Domain == "" {
			t.Domain = z.detectDomain(t.RichDescription())
		}
		z.byID[t.ID] = t
		z.vecByID[t.ID] = ids[i]
	}
	z.mu.Unlock()

	for _, t := range accepted {
		z.keywords.add(t.ID, t.RichDescription())
	}

	z.logger.Info("tools registered", "count", len(accepted))
	return nil
}

// detectDomain assigns a best-effort domain label using the keyword table,
// used only when a tool doesn't already carry an explicit domain.
func (z *ToolZoo) detectDomain(text string) string {
	lower := text
	for domain, keywords := range z.config().DomainKeywords {
		for _, kw := range keywords {
			if containsFold(lower, kw) {
				return domain
			}
		}
	}
	return ""
}

// SemanticSearch embeds query, retrieves the nearest 2k neighbors from the
// vector store (optionally filtered by domain/tag), drops results below
// minScore, and returns the top-k sorted by descending similarity.
func (z *ToolZoo) SemanticSearch(ctx context.Context, query string, k int, filters SearchFilters) ([]ScoredTool, error) {
	if k <= 0 {
		k = z.config().TopK
	}
	vec, err := z.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	where := map[string]string{}
	if filters.Domain != "" {
		where["domain"] = filters.Domain
	}

	matches, err := z.vectors.Query(ctx, vec, k*2, where)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	z.mu.RLock()
	defer z.mu.RUnlock()

	out := make([]ScoredTool, 0, len(matches))
	for _, m := range matches {
		sim := similarityFromDistance(m.Distance)
		if sim < z.config().SimilarityThreshold {
			continue
		}
		toolID := m.Metadata["id"]
		tool, ok := z.byID[toolID]
		if !ok {
			continue
		}
		if len(filters.Tags) > 0 && !anyTagMatch(tool.Tags, filters.Tags) {
			continue
		}
		out = append(out, ScoredTool{Tool: tool, Score: sim})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// KeywordSearch tokenizes query identically to Register's indexing step and
// scores each tool by matches/|queryTokens|.
func (z *ToolZoo) KeywordSearch(query string, k int) []ScoredTool {
	if k <= 0 {
		k = z.config().TopK
	}
	scores := z.keywords.search(query)
	if len(scores) == 0 {
		return nil
	}

	z.mu.RLock()
	defer z.mu.RUnlock()

	out := make([]ScoredTool, 0, len(scores))
	for toolID, score := range scores {
		if tool, ok := z.byID[toolID]; ok {
			out = append(out, ScoredTool{Tool: tool, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// HybridSearch runs both search modes and combines scores by
// w_sem*sem + w_kw*kw, resorts, and returns the top-k.
func (z *ToolZoo) HybridSearch(ctx context.Context, query string, k int, wSem, wKw float64) ([]ScoredTool, error) {
	if k <= 0 {
		k = z.config().TopK
	}
	if wSem == 0 && wKw == 0 {
		wSem, wKw = 0.7, 0.3
	}

	semantic, err := z.SemanticSearch(ctx, query, k*2, SearchFilters{})
	if err != nil {
		return nil, err
	}
	keyword := z.KeywordSearch(query, k*2)

	combined := make(map[string]float64, len(semantic)+len(keyword))
	toolByID := make(map[string]*Tool, len(semantic)+len(keyword))
	for _, st := range semantic {
		combined[st.Tool.ID] = wSem * st.Score
		toolByID[st.Tool.ID] = st.Tool
	}
	for _, st := range keyword {
		combined[st.Tool.ID] += wKw * st.Score
		toolByID[st.Tool.ID] = st.Tool
	}

	out := make([]ScoredTool, 0, len(combined))
	for id, score := range combined {
		out = append(out, ScoredTool{Tool: toolByID[id], Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Tool.ID < out[j].Tool.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Get looks up a tool by its fully-qualified id.
func (z *ToolZoo) Get(id string) (*Tool, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	t, ok := z.byID[id]
	return t, ok
}

// GetByServer returns every tool owned by the given server.
func (z *ToolZoo) GetByServer(serverID string) []*Tool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	var out []*Tool
	for _, t := range z.byID {
		if t.ServerID == serverID {
			out = append(out, t)
		}
	}
	return out
}

// All returns every indexed tool.
func (z *ToolZoo) All() []*Tool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	out := make([]*Tool, 0, len(z.byID))
	for _, t := range z.byID {
		out = append(out, t)
	}
	return out
}

// Remove purges both the vector store and keyword index for the given tool
// ids.
func (z *ToolZoo) Remove(ctx context.Context, ids []string) error {
	z.mu.Lock()
	vecIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if vid, ok := z.vecByID[id]; ok {
			vecIDs = append(vecIDs, vid)
		}
		delete(z.byID, id)
		delete(z.vecByID, id)
	}
	z.mu.Unlock()

	for _, id := range ids {
		z.keywords.remove(id)
	}

	if len(vecIDs) == 0 {
		return nil
	}
	return z.vectors.Delete(ctx, vecIDs)
}

// Clear empties the catalog, keyword index, and vector store.
func (z *ToolZoo) Clear(ctx context.Context) error {
	z.mu.Lock()
	ids := make([]string, 0, len(z.vecByID))
	for _, vid := range z.vecByID {
		ids = append(ids, vid)
	}
	z.byID = make(map[string]*Tool)
	z.vecByID = make(map[string]string)
	z.mu.Unlock()

	z.keywords.clear()

	if len(ids) == 0 {
		return nil
	}
	return z.vectors.Delete(ctx, ids)
}

func anyTagMatch(toolTags, filterTags []string) bool {
	set := make(map[string]bool, len(toolTags))
	for _, t := range toolTags {
		set[t] = true
	}
	for _, f := range filterTags {
		if set[f] {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	if len(n) == 0 || len(n) > len(h) {
		return false
	}
	lowerH := toLower(h)
	lowerN := toLower(n)
	for i := 0; i+len(lowerN) <= len(lowerH); i++ {
		match := true
		for j := range lowerN {
			if lowerH[i+j] != lowerN[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func toLower(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out[i] = r
	}
	return out
}
