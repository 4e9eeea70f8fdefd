// Package cost implements the tariff and cost engine: converting a model's
// pricing record and a request's usage counters into an exact monetary
// amount. Every rate and every intermediate sum on this path is a
// shopspring/decimal.Decimal — float64 never appears here, because money
// computed in binary floating point silently drifts (spec: "Cost as
// decimal").
package cost

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Modality selects which pricing branch applies to a request.
type Modality int

const (
	ModalityChat Modality = iota
	ModalityEmbedding
	ModalityImage
	ModalityVideo
	ModalityRerank
)

// ContextTier is one bracket of a context-length-tiered pricing table.
// MaxContext of nil means unbounded — the last matching tier.
type ContextTier struct {
	MaxContext       *int
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

// ModelCost is the tariff record for one model (spec §3 "ModelCost").
// Only the fields relevant to the request's modality need be populated;
// Compute returns ErrPricingUnavailable when a required rate is missing
// rather than silently costing the request at zero.
type ModelCost struct {
	InputPerMillion             decimal.Decimal
	OutputPerMillion            decimal.Decimal
	CachedInputPerMillion       decimal.Decimal
	CachedInputWritePerMillion  decimal.Decimal
	EmbeddingPerMillion         decimal.Decimal

	ImagePerImage               decimal.Decimal
	ImageQualityMultipliers     map[string]decimal.Decimal
	ImageResolutionMultipliers  map[string]decimal.Decimal

	VideoPerSecond              decimal.Decimal
	VideoResolutionMultipliers  map[string]decimal.Decimal

	CostPerSearchUnit decimal.Decimal

	CostPerInferenceStep  decimal.Decimal
	DefaultInferenceSteps int

	BatchProcessingMultiplier decimal.Decimal
	SupportsBatchProcessing   bool

	// ContextTiers, when non-empty, overrides InputPerMillion/
	// OutputPerMillion with a context-length-tiered schedule (step 3 of
	// the algorithm). Tiers need not be pre-sorted; Compute sorts them.
	ContextTiers []ContextTier

	HasInputRate      bool
	HasOutputRate     bool
	HasEmbeddingRate  bool
	HasImageRate      bool
	HasVideoRate      bool
	HasSearchUnitRate bool
	HasInferenceStepRate bool
}

// Usage carries every counter the engine can bill against. Only the fields
// relevant to the request's Modality are read.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CachedReadTokens int
	CachedWriteTokens int

	EmbeddingTokens int

	ImageCount      int
	ImageQuality    string
	ImageResolution string
	InferenceSteps  int // 0 means "use DefaultInferenceSteps"

	VideoSeconds    int
	VideoResolution string

	SearchDocuments int // documents in one rerank query

	Batch bool
}

// ErrPricingUnavailable is returned when the tariff record lacks the rate a
// modality needs. Never substitute a zero cost for this.
type ErrPricingUnavailable struct {
	Modality Modality
	Reason   string
}

func (e *ErrPricingUnavailable) Error() string {
	return fmt.Sprintf("pricing unavailable for modality %d: %s", e.Modality, e.Reason)
}

// Compute returns the total cost in USD for one completed request.
// Increasing any Usage counter while holding everything else fixed never
// decreases the result (spec §8 invariant 3: cost engine monotonicity).
func Compute(mc ModelCost, modality Modality, usage Usage) (decimal.Decimal, error) {
	switch modality {
	case ModalityChat:
		return computeChat(mc, usage)
	case ModalityEmbedding:
		return computeEmbedding(mc, usage)
	case ModalityImage:
		return computeImage(mc, usage)
	case ModalityVideo:
		return computeVideo(mc, usage)
	case ModalityRerank:
		return computeRerank(mc, usage)
	default:
		return decimal.Zero, &ErrPricingUnavailable{Modality: modality, Reason: "unknown modality"}
	}
}

func computeChat(mc ModelCost, u Usage) (decimal.Decimal, error) {
	total := u.PromptTokens + u.CompletionTokens
	inputRate, outputRate, err := resolveTokenRates(mc, total)
	if err != nil {
		return decimal.Zero, err
	}

	million := decimal.NewFromInt(1_000_000)
	cost := decimal.Zero

	if u.CachedReadTokens > 0 || u.CachedWriteTokens > 0 {
		standardInput := u.PromptTokens - u.CachedReadTokens - u.CachedWriteTokens
		if standardInput < 0 {
			standardInput = 0
		}
		cost = cost.Add(decimal.NewFromInt(int64(u.CachedReadTokens)).Mul(mc.CachedInputPerMillion).Div(million))
		cost = cost.Add(decimal.NewFromInt(int64(u.CachedWriteTokens)).Mul(mc.CachedInputWritePerMillion).Div(million))
		cost = cost.Add(decimal.NewFromInt(int64(standardInput)).Mul(inputRate).Div(million))
	} else {
		cost = cost.Add(decimal.NewFromInt(int64(u.PromptTokens)).Mul(inputRate).Div(million))
	}
	cost = cost.Add(decimal.NewFromInt(int64(u.CompletionTokens)).Mul(outputRate).Div(million))

	if u.Batch {
		cost = applyBatchMultiplier(mc, cost)
	}
	return cost, nil
}

func resolveTokenRates(mc ModelCost, totalTokens int) (input, output decimal.Decimal, err error) {
	if len(mc.ContextTiers) > 0 {
		tier, ok := selectContextTier(mc.ContextTiers, totalTokens)
		if !ok {
			return decimal.Zero, decimal.Zero, &ErrPricingUnavailable{Modality: ModalityChat, Reason: "no context tier covers token count"}
		}
		return tier.InputPerMillion, tier.OutputPerMillion, nil
	}
	if !mc.HasInputRate || !mc.HasOutputRate {
		return decimal.Zero, decimal.Zero, &ErrPricingUnavailable{Modality: ModalityChat, Reason: "missing input/output rate"}
	}
	return mc.InputPerMillion, mc.OutputPerMillion, nil
}

// selectContextTier finds the first tier (by ascending MaxContext, nil
// last) whose MaxContext >= totalTokens, per spec §4.A step 3.
func selectContextTier(tiers []ContextTier, totalTokens int) (ContextTier, bool) {
	sorted := make([]ContextTier, len(tiers))
	copy(sorted, tiers)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0; j-- {
			if tierLess(sorted[j], sorted[j-1]) {
				sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
			} else {
				break
			}
		}
	}
	for _, t := range sorted {
		if t.MaxContext == nil || *t.MaxContext >= totalTokens {
			return t, true
		}
	}
	return ContextTier{}, false
}

func tierLess(a, b ContextTier) bool {
	if a.MaxContext == nil {
		return false
	}
	if b.MaxContext == nil {
		return true
	}
	return *a.MaxContext < *b.MaxContext
}

func computeEmbedding(mc ModelCost, u Usage) (decimal.Decimal, error) {
	if !mc.HasEmbeddingRate {
		return decimal.Zero, &ErrPricingUnavailable{Modality: ModalityEmbedding, Reason: "missing embedding rate"}
	}
	million := decimal.NewFromInt(1_000_000)
	cost := decimal.NewFromInt(int64(u.EmbeddingTokens)).Mul(mc.EmbeddingPerMillion).Div(million)
	if u.Batch {
		cost = applyBatchMultiplier(mc, cost)
	}
	return cost, nil
}

func computeImage(mc ModelCost, u Usage) (decimal.Decimal, error) {
	if mc.HasInferenceStepRate {
		steps := u.InferenceSteps
		if steps == 0 {
			steps = mc.DefaultInferenceSteps
		}
		perImage := decimal.NewFromInt(int64(steps)).Mul(mc.CostPerInferenceStep)
		cost := perImage.Mul(decimal.NewFromInt(int64(max(u.ImageCount, 1))))
		if u.Batch {
			cost = applyBatchMultiplier(mc, cost)
		}
		return cost, nil
	}
	if !mc.HasImageRate {
		return decimal.Zero, &ErrPricingUnavailable{Modality: ModalityImage, Reason: "missing image rate"}
	}
	perImage := mc.ImagePerImage
	if m, ok := mc.ImageResolutionMultipliers[u.ImageResolution]; ok {
		perImage = perImage.Mul(m)
	}
	if m, ok := mc.ImageQualityMultipliers[u.ImageQuality]; ok {
		perImage = perImage.Mul(m)
	}
	cost := perImage.Mul(decimal.NewFromInt(int64(max(u.ImageCount, 1))))
	if u.Batch {
		cost = applyBatchMultiplier(mc, cost)
	}
	return cost, nil
}

func computeVideo(mc ModelCost, u Usage) (decimal.Decimal, error) {
	if !mc.HasVideoRate {
		return decimal.Zero, &ErrPricingUnavailable{Modality: ModalityVideo, Reason: "missing video rate"}
	}
	perSecond := mc.VideoPerSecond
	if m, ok := mc.VideoResolutionMultipliers[u.VideoResolution]; ok {
		perSecond = perSecond.Mul(m)
	}
	cost := perSecond.Mul(decimal.NewFromInt(int64(u.VideoSeconds)))
	if u.Batch {
		cost = applyBatchMultiplier(mc, cost)
	}
	return cost, nil
}

// computeRerank implements spec §4.A step 6:
// ceil(documents_in_query / 100) × search_unit_cost / 1000.
func computeRerank(mc ModelCost, u Usage) (decimal.Decimal, error) {
	if !mc.HasSearchUnitRate {
		return decimal.Zero, &ErrPricingUnavailable{Modality: ModalityRerank, Reason: "missing search unit rate"}
	}
	units := (u.SearchDocuments + 99) / 100
	if units < 1 {
		units = 1
	}
	cost := decimal.NewFromInt(int64(units)).Mul(mc.CostPerSearchUnit).Div(decimal.NewFromInt(1000))
	if u.Batch {
		cost = applyBatchMultiplier(mc, cost)
	}
	return cost, nil
}

func applyBatchMultiplier(mc ModelCost, cost decimal.Decimal) decimal.Decimal {
	if !mc.SupportsBatchProcessing || mc.BatchProcessingMultiplier.IsZero() {
		return cost
	}
	return cost.Mul(mc.BatchProcessingMultiplier)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
