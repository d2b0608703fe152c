package telemetry

// RewardCalculatorConfig tunes how raw tool-call outcomes are normalized
// into a reward signal in [-1, +1].
type RewardCalculatorConfig struct {
	LatencyScale     float64 // reward lost per millisecond of successful execution
	LatencyCap       float64 // maximum latency penalty
	ContextScale     float64 // reward lost per schema token
	ContextCap       float64 // maximum context penalty
	FollowupPenalty  float64 // flat penalty when the caller retried immediately
}

// DefaultRewardCalculatorConfig matches the reference reward shaping: small
// per-unit penalties capped well below the +1/-1 success/failure swing, so
// outcome always dominates the signal.
func DefaultRewardCalculatorConfig() RewardCalculatorConfig {
	return RewardCalculatorConfig{
		LatencyScale:    0.001,
		LatencyCap:      0.3,
		ContextScale:    0.0001,
		ContextCap:      0.2,
		FollowupPenalty: 0.2,
	}
}

// RewardCalculator turns a tool call outcome into a normalized RewardSignal.
type RewardCalculator struct {
	cfg RewardCalculatorConfig
}

// NewRewardCalculator builds a calculator with the given config.
func NewRewardCalculator(cfg RewardCalculatorConfig) *RewardCalculator {
	return &RewardCalculator{cfg: cfg}
}

// Calculate computes success/latency/context/followup components and clamps
// the sum to [-1, +1].
func (r *RewardCalculator) Calculate(success bool, executionTimeMS float64, schemaTokens int, isFollowupRetry bool) RewardSignal {
	reward := RewardSignal{}

	if success {
		reward.SuccessReward = 1.0
		penalty := executionTimeMS * r.cfg.LatencyScale
		if penalty > r.cfg.LatencyCap {
			penalty = r.cfg.LatencyCap
		}
		reward.LatencyPenalty = -penalty
	} else {
		reward.SuccessReward = -1.0
	}

	contextPenalty := float64(schemaTokens) * r.cfg.ContextScale
	if contextPenalty > r.cfg.ContextCap {
		contextPenalty = r.cfg.ContextCap
	}
	reward.ContextCostPenalty = -contextPenalty

	if isFollowupRetry {
		reward.FollowupPenalty = -r.cfg.FollowupPenalty
	}

	total := reward.SuccessReward + reward.LatencyPenalty + reward.ContextCostPenalty + reward.FollowupPenalty
	reward.TotalReward = clamp(total, -1.0, 1.0)
	return reward
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
