// Package routing implements the pipeline that decides, for a given
// session and message, which tools to inject into the model's context:
// context assembly, candidate retrieval from the Tool Zoo, per-candidate
// feature scoring (bandit + bias), budgeted slate selection, and a
// co-occurrence learning hook fed by which tools were actually used.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ucpgw/ucpgw/internal/bandit"
	"github.com/ucpgw/ucpgw/internal/bias"
	"github.com/ucpgw/ucpgw/internal/observability"
	"github.com/ucpgw/ucpgw/internal/telemetry"
	"github.com/ucpgw/ucpgw/internal/toolzoo"
)

// SearchMode selects which Tool Zoo search method stage one uses.
type SearchMode string

const (
	ModeSemantic SearchMode = "semantic"
	ModeKeyword  SearchMode = "keyword"
	ModeHybrid   SearchMode = "hybrid"
)

// Config tunes slate size, fallback behavior, and diversity limits.
type Config struct {
	Mode            SearchMode
	MaxTools        int
	MinTools        int
	FallbackTools   []string
	MaxPerServer    int
	DomainKeywords  map[string][]string
	HybridSemWeight float64
	HybridKwWeight  float64
	// BanditWeight is λ_bandit, the weight the bandit scorer's contribution
	// carries in the final per-candidate score: final = adjusted + β_t +
	// BanditWeight·banditScore.
	BanditWeight float64
}

// DefaultDomainKeywords grounds domain detection in a fixed trigger table,
// richer than the Tool Zoo's own default since routing cares about intent
// phrases, not just tool descriptions.
var DefaultDomainKeywords = map[string][]string{
	"email":         {"email", "mail", "inbox", "send", "reply", "forward", "gmail", "outlook"},
	"calendar":      {"calendar", "schedule", "meeting", "event", "appointment", "book", "time"},
	"code":          {"code", "git", "github", "commit", "branch", "pull request", "merge", "repo"},
	"files":         {"file", "document", "folder", "drive", "upload", "download", "save", "open"},
	"database":      {"database", "sql", "query", "table", "insert", "update", "delete", "db"},
	"web":           {"browse", "search", "website", "url", "fetch", "scrape", "http"},
	"finance":       {"pay", "invoice", "charge", "refund", "stripe", "payment", "transaction"},
	"communication": {"slack", "message", "chat", "notify", "alert", "send"},
}

// DefaultConfig matches the reference router: up to 8 tools, at least 1,
// hybrid search, 3-per-server diversity cap.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeHybrid,
		MaxTools:        8,
		MinTools:        1,
		FallbackTools:   nil,
		MaxPerServer:    3,
		DomainKeywords:  DefaultDomainKeywords,
		HybridSemWeight: 0.7,
		HybridKwWeight:  0.3,
		BanditWeight:    0.2,
	}
}

// Decision is the outcome of one routing pass.
type Decision struct {
	EventID       uuid.UUID
	SelectedTools []string
	Scores        map[string]float64
	Reasoning     string
	QueryUsed     string
	Domains       []string
	Exploration   bool
}

// Pipeline wires the Tool Zoo, bandit scorer, bias store, and telemetry
// store into one routing decision per call.
type Pipeline struct {
	cfgMu sync.RWMutex
	cfg   Config

	zoo       *toolzoo.ToolZoo
	scorer    *bandit.Scorer
	featureFx *bandit.FeatureExtractor
	biasAdj   *bias.Adjuster
	telemetry telemetry.Store
	logger    *slog.Logger

	mu            sync.Mutex
	cooccurrence  map[string]map[string]int
	predictionLog []predictionRecord
}

// config returns the pipeline's current config. Reads take a read lock so
// UpdateConfig can swap it in from a hot-reload watcher concurrently with
// in-flight Route calls.
func (p *Pipeline) config() Config {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()
	return p.cfg
}

// UpdateConfig replaces the pipeline's config wholesale, for the fields a
// config hot-reload is allowed to change at runtime (slate size, fallback
// tools, domain keywords, search mode and weights). Callers are expected to
// have already decided which fields are safe to apply.
func (p *Pipeline) UpdateConfig(cfg Config) {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()
	p.cfg = cfg
}

type predictionRecord struct {
	predicted []string
	used      []string
	precision float64
	recall    float64
}

// New builds a Pipeline. telemetryStore may be nil to disable event logging
// (e.g. in tests).
func New(cfg Config, zoo *toolzoo.ToolZoo, scorer *bandit.Scorer, biasAdj *bias.Adjuster, telemetryStore telemetry.Store, logger *slog.Logger) *Pipeline {
	if cfg.MaxTools == 0 {
		cfg.MaxTools = DefaultConfig().MaxTools
	}
	if cfg.MaxPerServer == 0 {
		cfg.MaxPerServer = DefaultConfig().MaxPerServer
	}
	if cfg.DomainKeywords == nil {
		cfg.DomainKeywords = DefaultDomainKeywords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:          cfg,
		zoo:          zoo,
		scorer:       scorer,
		featureFx:    bandit.NewFeatureExtractor(bandit.DefaultFeatureExtractorConfig()),
		biasAdj:      biasAdj,
		telemetry:    telemetryStore,
		logger:       logger.With("component", "routing"),
		cooccurrence: make(map[string]map[string]int),
	}
}

// RouteInput bundles everything a routing decision needs from the caller.
type RouteInput struct {
	SessionID        uuid.UUID
	RecentMessages   []string // oldest first, already truncated by the caller
	CurrentMessage   string
	ToolUsageCounts  map[string]int // tool name -> times used this session
	MaxContextTokens int
}

// DetectDomains returns every configured domain whose trigger phrase
// appears in query (case-insensitive substring match).
func (p *Pipeline) DetectDomains(query string) []string {
	lower := strings.ToLower(query)
	var detected []string
	for domain, keywords := range p.config().DomainKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				detected = append(detected, domain)
				break
			}
		}
	}
	sort.Strings(detected)
	return detected
}

// Route assembles context, retrieves candidates, scores and selects a
// slate, and logs a RoutingEvent.
func (p *Pipeline) Route(ctx context.Context, in RouteInput) (Decision, error) {
	start := time.Now()

	var parts []string
	parts = append(parts, in.RecentMessages...)
	if in.CurrentMessage != "" {
		parts = append(parts, "user: "+in.CurrentMessage)
	}
	query := strings.Join(parts, "\n")

	if strings.TrimSpace(query) == "" {
		decision := Decision{
			EventID:       uuid.New(),
			SelectedTools: append([]string{}, p.config().FallbackTools...),
			Scores:        map[string]float64{},
			Reasoning:     "No context available, using fallback tools",
			QueryUsed:     "",
		}
		p.emit(ctx, in, decision, query, nil, start)
		return decision, nil
	}

	domains := p.DetectDomains(query)

	candidates, err := p.search(ctx, query)
	if err != nil {
		return Decision{}, fmt.Errorf("routing search: %w", err)
	}

	selected, scores, candidateInfo, explored := p.rerankAndFilter(ctx, candidates, domains, in.ToolUsageCounts, in.MaxContextTokens)

	if len(selected) < p.config().MinTools {
		for _, fallback := range p.config().FallbackTools {
			if containsString(selected, fallback) {
				continue
			}
			selected = append(selected, fallback)
			scores[fallback] = 0.1
			if len(selected) >= p.config().MinTools {
				break
			}
		}
	}

	decision := Decision{
		EventID:       uuid.New(),
		SelectedTools: selected,
		Scores:        scores,
		Reasoning:     p.buildReasoning(domains, candidates, selected),
		QueryUsed:     truncate(query, 500),
		Domains:       domains,
		Exploration:   explored,
	}

	p.emit(ctx, in, decision, query, candidateInfo, start)

	p.logger.Info("routing decision", "selected_count", len(selected), "domains", domains)
	return decision, nil
}

func (p *Pipeline) search(ctx context.Context, query string) ([]toolzoo.ScoredTool, error) {
	k := p.config().MaxTools * 2
	switch p.config().Mode {
	case ModeKeyword:
		return p.zoo.KeywordSearch(query, k), nil
	case ModeSemantic:
		return p.zoo.SemanticSearch(ctx, query, k, toolzoo.SearchFilters{})
	default:
		return p.zoo.HybridSearch(ctx, query, k, p.config().HybridSemWeight, p.config().HybridKwWeight)
	}
}

// rerankAndFilter applies domain/tag boosts, recency boosts, bandit +
// bias scoring, co-occurrence boosts, and a per-server diversity cap.
func (p *Pipeline) rerankAndFilter(ctx context.Context, candidates []toolzoo.ScoredTool, domains []string, toolUsage map[string]int, maxContextTokens int) ([]string, map[string]float64, []telemetry.CandidateInfo, bool) {
	if len(candidates) == 0 {
		return nil, map[string]float64{}, nil, false
	}

	domainSet := make(map[string]bool, len(domains))
	for _, d := range domains {
		domainSet[d] = true
	}

	p.mu.Lock()
	recentTools := lastN(recentUsedTools(toolUsage), 3)
	cooccurBoost := make(map[string]float64)
	for _, recent := range recentTools {
		for _, cooccur := range p.topCooccurring(recent, 3) {
			cooccurBoost[cooccur] += 0.1
		}
	}
	p.mu.Unlock()

	adjusted := make(map[string]float64, len(candidates))
	infoByTool := make(map[string]telemetry.CandidateInfo, len(candidates))
	successRateByTool := make(map[string]float64, len(candidates))
	anyExplored := false

	for _, c := range candidates {
		score := c.Score
		domainMatch := c.Tool.Domain != "" && domainSet[c.Tool.Domain]
		if domainMatch {
			score *= 1.3
		}
		for _, tag := range c.Tool.Tags {
			if domainSet[strings.ToLower(tag)] {
				score *= 1.2
				break
			}
		}
		if uses, ok := toolUsage[c.Tool.Name]; ok {
			score += minFloat(0.1, float64(uses)*0.02)
		}

		boost := cooccurBoost[c.Tool.Name]
		score += boost

		successRate := 0.5
		if p.telemetry != nil {
			if stats, err := p.telemetry.GetToolStats(ctx, c.Tool.ID); err == nil {
				successRate = stats.RollingSuccessRate
			}
		}
		successRateByTool[c.Tool.Name] = successRate

		var banditScore float64
		explored := false
		if p.scorer != nil {
			features := p.featureFx.Extract(bandit.CandidateSignals{
				SemanticScore:     c.Score,
				DomainMatch:       domainMatch,
				CooccurrenceBoost: boost,
				SuccessRate:       successRate,
				SchemaTokens:      c.Tool.SchemaTokens,
			})
			banditScore, explored = p.scorer.ScoreWithExploration(features)
			score += p.config().BanditWeight * banditScore
		}
		anyExplored = anyExplored || explored

		biasAdjustment := 0.0
		if p.biasAdj != nil {
			before := score
			score = p.biasAdj.AdjustSimilarity(c.Tool.ID, score, nil)
			biasAdjustment = score - before
		}

		adjusted[c.Tool.Name] = score
		infoByTool[c.Tool.Name] = telemetry.CandidateInfo{
			ToolName:          c.Tool.Name,
			BaseScore:         c.Score,
			DomainMatch:       domainMatch,
			CooccurrenceBoost: boost,
			BanditScore:       banditScore,
			BiasAdjustment:    biasAdjustment,
			FinalScore:        score,
			SchemaTokens:      c.Tool.SchemaTokens,
		}
	}

	type ranked struct {
		name  string
		score float64
	}
	sorted := make([]ranked, 0, len(adjusted))
	for name, score := range adjusted {
		sorted = append(sorted, ranked{name, score})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score > sorted[j].score
		}
		if sr := successRateByTool[sorted[i].name]; sr != successRateByTool[sorted[j].name] {
			return sr > successRateByTool[sorted[j].name]
		}
		return sorted[i].name < sorted[j].name
	})

	byName := make(map[string]*toolzoo.Tool, len(candidates))
	for _, c := range candidates {
		byName[c.Tool.Name] = c.Tool
	}

	var selected []string
	scores := make(map[string]float64)
	serverCounts := make(map[string]int)
	var infos []telemetry.CandidateInfo
	var usedTokens int

	for _, r := range sorted {
		tool := byName[r.name]
		if tool == nil {
			continue
		}
		if serverCounts[tool.ServerID] >= p.config().MaxPerServer {
			continue
		}
		if maxContextTokens > 0 && usedTokens+tool.SchemaTokens > maxContextTokens {
			continue
		}
		selected = append(selected, r.name)
		scores[r.name] = r.score
		serverCounts[tool.ServerID]++
		usedTokens += tool.SchemaTokens
		infos = append(infos, infoByTool[r.name])

		if len(selected) >= p.config().MaxTools {
			break
		}
	}

	return selected, scores, infos, anyExplored
}

func (p *Pipeline) buildReasoning(domains []string, candidates []toolzoo.ScoredTool, selected []string) string {
	var parts []string
	if len(domains) > 0 {
		parts = append(parts, fmt.Sprintf("Detected domains: %s", strings.Join(domains, ", ")))
	}
	if len(candidates) > 0 {
		n := 3
		if len(candidates) < n {
			n = len(candidates)
		}
		var top []string
		for _, c := range candidates[:n] {
			top = append(top, fmt.Sprintf("%s:%.2f", c.Tool.DisplayName, c.Score))
		}
		parts = append(parts, fmt.Sprintf("Top matches: %s", strings.Join(top, ", ")))
	}
	parts = append(parts, fmt.Sprintf("Selected %d tools", len(selected)))
	return strings.Join(parts, " | ")
}

func (p *Pipeline) emit(ctx context.Context, in RouteInput, decision Decision, rawQuery string, candidateInfo []telemetry.CandidateInfo, start time.Time) {
	if p.telemetry == nil {
		return
	}
	event := telemetry.RoutingEvent{
		EventID:              decision.EventID,
		SessionID:            in.SessionID,
		Timestamp:            time.Now().UTC(),
		QueryHash:            telemetry.HashQuery(rawQuery),
		Candidates:           candidateInfo,
		SelectedTools:        decision.SelectedTools,
		TotalCandidates:      len(candidateInfo),
		MaxContextTokens:     in.MaxContextTokens,
		SelectionTimeMS:      float64(time.Since(start).Microseconds()) / 1000.0,
		Strategy:             string(p.config().Mode),
		ExplorationTriggered: decision.Exploration,
		TraceID:              observability.GetTraceID(ctx),
	}
	if err := p.telemetry.LogRoutingEvent(ctx, event); err != nil {
		p.logger.Error("failed to log routing event", "error", err)
	}
}

// RecordUsage records which tools were actually invoked after a routing
// decision, updating the precision/recall prediction log and the
// co-occurrence matrix used for future cooccurrence_boost scoring.
func (p *Pipeline) RecordUsage(decision Decision, actuallyUsed []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	usedSet := toSet(actuallyUsed)
	predSet := toSet(decision.SelectedTools)
	overlap := 0
	for t := range usedSet {
		if predSet[t] {
			overlap++
		}
	}

	precision, recall := 0.0, 1.0
	if len(decision.SelectedTools) > 0 {
		precision = float64(overlap) / float64(len(decision.SelectedTools))
	}
	if len(actuallyUsed) > 0 {
		recall = float64(overlap) / float64(len(actuallyUsed))
	}

	p.predictionLog = append(p.predictionLog, predictionRecord{
		predicted: decision.SelectedTools,
		used:      actuallyUsed,
		precision: precision,
		recall:    recall,
	})

	for _, a := range actuallyUsed {
		for _, b := range actuallyUsed {
			if a == b {
				continue
			}
			if p.cooccurrence[a] == nil {
				p.cooccurrence[a] = make(map[string]int)
			}
			p.cooccurrence[a][b]++
		}
	}
}

// topCooccurring returns the top-k tools historically co-occurring with
// toolName, highest count first. Caller must hold p.mu.
func (p *Pipeline) topCooccurring(toolName string, k int) []string {
	counts, ok := p.cooccurrence[toolName]
	if !ok {
		return nil
	}
	type pair struct {
		name  string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for name, count := range counts {
		pairs = append(pairs, pair{name, count})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].count > pairs[j].count })
	if len(pairs) > k {
		pairs = pairs[:k]
	}
	out := make([]string, len(pairs))
	for i, pr := range pairs {
		out[i] = pr.name
	}
	return out
}

// LearningStats summarizes the AdaptiveRouter-style prediction history.
type LearningStats struct {
	Predictions       int     `json:"predictions"`
	AvgPrecision      float64 `json:"avg_precision"`
	AvgRecall         float64 `json:"avg_recall"`
	CooccurrencePairs int     `json:"cooccurrence_pairs"`
}

// Stats reports aggregate precision/recall and co-occurrence coverage
// across every RecordUsage call so far.
func (p *Pipeline) Stats() LearningStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.predictionLog) == 0 {
		return LearningStats{}
	}

	var precisionSum, recallSum float64
	for _, r := range p.predictionLog {
		precisionSum += r.precision
		recallSum += r.recall
	}

	pairs := 0
	for _, m := range p.cooccurrence {
		pairs += len(m)
	}

	return LearningStats{
		Predictions:       len(p.predictionLog),
		AvgPrecision:      precisionSum / float64(len(p.predictionLog)),
		AvgRecall:         recallSum / float64(len(p.predictionLog)),
		CooccurrencePairs: pairs,
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

// recentUsedTools returns the usage-count map's keys; ordering is
// unspecified since Go maps don't preserve insertion order, matching the
// "best effort" nature of the recency boost this feeds.
func recentUsedTools(toolUsage map[string]int) []string {
	out := make([]string, 0, len(toolUsage))
	for name := range toolUsage {
		out = append(out, name)
	}
	return out
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
