package trigger

// Default detector settings, used for every option left unset.
const (
	DefaultLoopThreshold       = 3
	DefaultLoopSimilarityFloor = 0.6

	DefaultLengthDropRatio    = 0.3
	DefaultFrequencyDropRatio = 3.0
	DefaultVelocityWindowSize = 4

	DefaultScopeCreepWindowSize = 5
	DefaultGrowthRatio          = 1.5

	DefaultAssistantResponseThreshold = 3
	DefaultMinAssistantLength         = 200

	// saturationMinRequests is how many follow-up requests after saturation
	// it takes to fire.
	saturationMinRequests = 2
)

// defaultRequestPatterns are the follow-up phrases the saturation detector
// looks for. Matching is case-insensitive substring matching.
var defaultRequestPatterns = []string{
	"can you also",
	"what about",
	"another",
	"more",
	"one more",
	"anything else",
	"what else",
	"give me",
	"how about",
	"and also",
	"additionally",
}

// DefaultRequestPatterns returns a fresh copy of the default saturation
// phrase list.
func DefaultRequestPatterns() []string {
	out := make([]string, len(defaultRequestPatterns))
	copy(out, defaultRequestPatterns)
	return out
}

// Int returns a pointer to v for setting an integer option explicitly.
func Int(v int) *int { return &v }

// Float returns a pointer to v for setting a ratio option explicitly.
func Float(v float64) *float64 { return &v }

// countOr resolves a count option. Counts below 1 have no meaning to the
// detectors; Check rejects them, direct detector calls get the default.
func countOr(p *int, def int) int {
	if p == nil || *p < 1 {
		return def
	}
	return *p
}

// ratioOr resolves a ratio option. An explicit zero is honoured.
func ratioOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Options groups the per-detector settings for Check. Every field is
// optional: a nil pointer means the detector's default, while an explicit
// value, zero included, is used as given.
type Options struct {
	Loop             LoopOptions       `json:"loop" yaml:"loop"`
	VelocityCollapse VelocityOptions   `json:"velocityCollapse" yaml:"velocityCollapse"`
	ScopeCreep       ScopeCreepOptions `json:"scopeCreep" yaml:"scopeCreep"`
	Saturation       SaturationOptions `json:"saturation" yaml:"saturation"`
}

// LoopOptions configures DetectLoop.
type LoopOptions struct {
	// Threshold is how many trailing user messages must be near-duplicates.
	Threshold *int `json:"threshold,omitempty" yaml:"threshold,omitempty" validate:"omitnil,gte=1"`
	// SimilarityFloor is the minimum cosine similarity for a pair to count.
	SimilarityFloor *float64 `json:"similarityFloor,omitempty" yaml:"similarityFloor,omitempty" validate:"omitnil,gte=0,lte=1"`
}

type loopSettings struct {
	threshold int
	floor     float64
}

func (o LoopOptions) resolve() loopSettings {
	return loopSettings{
		threshold: countOr(o.Threshold, DefaultLoopThreshold),
		floor:     ratioOr(o.SimilarityFloor, DefaultLoopSimilarityFloor),
	}
}

// VelocityOptions configures DetectVelocityCollapse.
type VelocityOptions struct {
	LengthDropRatio    *float64 `json:"lengthDropRatio,omitempty" yaml:"lengthDropRatio,omitempty" validate:"omitnil,gte=0"`
	FrequencyDropRatio *float64 `json:"frequencyDropRatio,omitempty" yaml:"frequencyDropRatio,omitempty" validate:"omitnil,gte=0"`
	WindowSize         *int     `json:"windowSize,omitempty" yaml:"windowSize,omitempty" validate:"omitnil,gte=1"`
}

type velocitySettings struct {
	lengthDrop    float64
	frequencyDrop float64
	window        int
}

func (o VelocityOptions) resolve() velocitySettings {
	return velocitySettings{
		lengthDrop:    ratioOr(o.LengthDropRatio, DefaultLengthDropRatio),
		frequencyDrop: ratioOr(o.FrequencyDropRatio, DefaultFrequencyDropRatio),
		window:        countOr(o.WindowSize, DefaultVelocityWindowSize),
	}
}

// ScopeCreepOptions configures DetectScopeCreep.
type ScopeCreepOptions struct {
	WindowSize  *int     `json:"windowSize,omitempty" yaml:"windowSize,omitempty" validate:"omitnil,gte=1"`
	GrowthRatio *float64 `json:"growthRatio,omitempty" yaml:"growthRatio,omitempty" validate:"omitnil,gte=0"`
}

type scopeCreepSettings struct {
	window int
	growth float64
}

func (o ScopeCreepOptions) resolve() scopeCreepSettings {
	return scopeCreepSettings{
		window: countOr(o.WindowSize, DefaultScopeCreepWindowSize),
		growth: ratioOr(o.GrowthRatio, DefaultGrowthRatio),
	}
}

// SaturationOptions configures DetectSaturation.
type SaturationOptions struct {
	AssistantResponseThreshold *int `json:"assistantResponseThreshold,omitempty" yaml:"assistantResponseThreshold,omitempty" validate:"omitnil,gte=1"`
	// MinAssistantLength may be 0, making every assistant reply substantive.
	MinAssistantLength *int `json:"minAssistantLength,omitempty" yaml:"minAssistantLength,omitempty" validate:"omitnil,gte=0"`
	// RequestPatterns replaces the default phrase list when non-nil. An
	// empty, non-nil list disables phrase matching entirely.
	RequestPatterns []string `json:"requestPatterns" yaml:"requestPatterns" validate:"omitempty,dive,min=1"`
}

type saturationSettings struct {
	responses int
	minLength int
	patterns  []string
}

func (o SaturationOptions) resolve() saturationSettings {
	st := saturationSettings{
		responses: countOr(o.AssistantResponseThreshold, DefaultAssistantResponseThreshold),
		minLength: DefaultMinAssistantLength,
		patterns:  o.RequestPatterns,
	}
	if o.MinAssistantLength != nil && *o.MinAssistantLength >= 0 {
		st.minLength = *o.MinAssistantLength
	}
	if st.patterns == nil {
		st.patterns = DefaultRequestPatterns()
	}
	return st
}
