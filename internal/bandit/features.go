package bandit

// FeatureNames documents the fixed 7-dimensional feature vector the shared
// scorer consumes, in order.
var FeatureNames = []string{
	"semantic_score",
	"keyword_score",
	"domain_match",
	"cooccurrence_boost",
	"success_rate",
	"latency_score",
	"schema_size",
}

// FeatureExtractorConfig bounds the latency and schema-size features so a
// single pathological candidate can't dominate the vector.
type FeatureExtractorConfig struct {
	LatencyCapMS   float64
	SchemaCapTokens int
}

// DefaultFeatureExtractorConfig matches the reference caps: 5s latency,
// 1000-token schemas.
func DefaultFeatureExtractorConfig() FeatureExtractorConfig {
	return FeatureExtractorConfig{LatencyCapMS: 5000, SchemaCapTokens: 1000}
}

// FeatureExtractor turns raw per-candidate signals into the normalized
// feature vector the Scorer expects.
type FeatureExtractor struct {
	cfg FeatureExtractorConfig
}

func NewFeatureExtractor(cfg FeatureExtractorConfig) *FeatureExtractor {
	return &FeatureExtractor{cfg: cfg}
}

// CandidateSignals is the raw input to Extract, named after the routing
// pipeline's candidate feature computation stage.
type CandidateSignals struct {
	SemanticScore      float64
	KeywordScore       float64
	DomainMatch        bool
	CooccurrenceBoost  float64
	SuccessRate        float64
	LatencyMS          float64
	SchemaTokens       int
}

// Extract clamps and normalizes every signal into [0, 1], inverting latency
// and schema size so that "better" always means "higher".
func (f *FeatureExtractor) Extract(sig CandidateSignals) []float64 {
	domainMatch := 0.0
	if sig.DomainMatch {
		domainMatch = 1.0
	}
	return []float64{
		clamp01(sig.SemanticScore),
		clamp01(sig.KeywordScore),
		domainMatch,
		clamp01(sig.CooccurrenceBoost),
		clamp01(sig.SuccessRate),
		clamp01(1.0 - sig.LatencyMS/f.cfg.LatencyCapMS),
		clamp01(1.0 - float64(sig.SchemaTokens)/float64(f.cfg.SchemaCapTokens)),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
