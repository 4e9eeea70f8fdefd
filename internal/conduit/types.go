package conduit

import "time"

// ProviderType is the closed set of adapter kinds the client factory can
// construct. Adding a provider means adding a value here and a case in the
// factory's switch — there is no open-ended string discriminator.
type ProviderType int

const (
	ProviderOpenAI ProviderType = iota
	ProviderAzureOpenAI
	ProviderAnthropic
	ProviderMistral
	ProviderGroq
	ProviderCohere
	ProviderGemini
	ProviderVertexAI
	ProviderOllama
	ProviderBedrock
	ProviderHuggingFace
	ProviderReplicate
	ProviderFireworks
	ProviderSageMaker
	ProviderOpenRouter
	ProviderOpenAICompatible
	ProviderMiniMax
	ProviderUltravox
	ProviderElevenLabs
	ProviderGoogleCloud
	ProviderCerebras
	ProviderDeepInfra
	ProviderSambaNova
)

func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAzureOpenAI:
		return "azure"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderMistral:
		return "mistral"
	case ProviderGroq:
		return "groq"
	case ProviderCohere:
		return "cohere"
	case ProviderGemini:
		return "gemini"
	case ProviderVertexAI:
		return "vertexai"
	case ProviderOllama:
		return "ollama"
	case ProviderBedrock:
		return "bedrock"
	case ProviderHuggingFace:
		return "huggingface"
	case ProviderReplicate:
		return "replicate"
	case ProviderFireworks:
		return "fireworks"
	case ProviderSageMaker:
		return "sagemaker"
	case ProviderOpenRouter:
		return "openrouter"
	case ProviderOpenAICompatible:
		return "openai_compatible"
	case ProviderMiniMax:
		return "minimax"
	case ProviderUltravox:
		return "ultravox"
	case ProviderElevenLabs:
		return "elevenlabs"
	case ProviderGoogleCloud:
		return "googlecloud"
	case ProviderCerebras:
		return "cerebras"
	case ProviderDeepInfra:
		return "deepinfra"
	case ProviderSambaNova:
		return "sambanova"
	default:
		return "unknown"
	}
}

// Provider is a configured upstream LLM vendor account.
type Provider struct {
	ID      string
	Name    string
	Type    ProviderType
	BaseURL string // overrides the adapter's default base URL when non-empty
	Enabled bool
}

// ProviderKeyCredential is one set of secrets belonging to a Provider.
// SecondarySecret carries the AWS secret key for Bedrock providers; it is
// empty for every other provider type.
type ProviderKeyCredential struct {
	ID              string
	ProviderID      string
	APIKey          string
	SecondarySecret string
	APIVersion      string
	IsPrimary       bool
	IsEnabled       bool
}

// ModelMapping resolves a client-facing model alias to a provider and the
// provider-native model id. Unique by Alias.
type ModelMapping struct {
	Alias           string
	ProviderID      string
	ProviderModelID string
}

// ModelAuthor is the top of the display/capability hierarchy (e.g. "OpenAI").
type ModelAuthor struct {
	ID   string
	Name string
}

// ModelSeries groups related models sharing a tokenizer and UI parameters
// (e.g. the GPT family).
type ModelSeries struct {
	ID            string
	AuthorID      string
	Name          string
	TokenizerType string
	UIParameters  map[string]any
}

// Model is a single named, versioned model within a ModelSeries.
type Model struct {
	ID           string
	SeriesID     string
	Name         string
	Version      string
	Active       bool
	Capabilities ModelCapabilities
}

// ModelCapabilities enumerates what operations a model supports.
type ModelCapabilities struct {
	Chat           bool
	Vision         bool
	Transcription  bool
	TTS            bool
	RealtimeAudio  bool
	FunctionCall   bool
	Embeddings     bool
	ImageGen       bool
	VideoGen       bool
	TokenizerType  string
	MaxTokens      int
	SupportedVoices []string
	Languages       []string
	AudioFormats    []string
}

// TaskState is the lifecycle of one in-flight or completed request.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskProcessing
	TaskCompleted
	TaskFailed
	TaskCancelled
	TaskTimedOut
)

// TaskQueued is a display alias for TaskPending (spec §3: "Queued is an
// inbound alias for Pending"); the two names denote the same state value
// (see DESIGN.md Open Question decision #3).
const TaskQueued = TaskPending

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskProcessing:
		return "processing"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	case TaskTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// SessionState is the lifecycle of a real-time audio session (spec §4.G).
type SessionState int

const (
	SessionConnecting SessionState = iota
	SessionConnected
	SessionClosed
	SessionErrored
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionClosed:
		return "closed"
	case SessionErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// SessionUsage accumulates per-session consumption for real-time audio.
type SessionUsage struct {
	AudioBytes    int64
	Tokens        int64
	EstimatedCost float64
}

// CacheRegion names a logical partition of the cache (e.g. "responses",
// "embeddings", "credentials").
type CacheRegion string

// CacheRegionChatCompletions is the only region the gateway currently
// records cache statistics against (chat completions is the only cached
// route). CacheRegionEmbeddings is reserved for when embeddings responses
// gain a cache path of their own; CacheRegion stays an open string type so
// a deployment can introduce further regions without a type change.
const (
	CacheRegionChatCompletions CacheRegion = "chat_completions"
	CacheRegionEmbeddings      CacheRegion = "embeddings"
)

// CacheOperationType is the kind of cache operation a statistics sample
// describes.
type CacheOperationType int

const (
	CacheOpGet CacheOperationType = iota
	CacheOpSet
	CacheOpDelete
	CacheOpEvict
)

// CacheAlertType is the closed set of conditions a CacheAlert can report.
type CacheAlertType int

const (
	AlertLowHitRate CacheAlertType = iota
	AlertHighMemoryUsage
	AlertHighEvictionRate
	AlertHighResponseTime
	AlertCacheUnhealthy
	AlertRedisConnectionLost
	AlertRegionFailure
)

func (t CacheAlertType) String() string {
	switch t {
	case AlertLowHitRate:
		return "low_hit_rate"
	case AlertHighMemoryUsage:
		return "high_memory_usage"
	case AlertHighEvictionRate:
		return "high_eviction_rate"
	case AlertHighResponseTime:
		return "high_response_time"
	case AlertCacheUnhealthy:
		return "cache_unhealthy"
	case AlertRedisConnectionLost:
		return "redis_connection_lost"
	case AlertRegionFailure:
		return "region_failure"
	default:
		return "unknown"
	}
}

// AlertSeverity ranks a CacheAlert's urgency.
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// CacheAlert is a single firing of an alert condition for one
// (region, type) pair; re-firing is suppressed until Cooldown elapses
// after TriggeredAt (spec §3 invariant).
type CacheAlert struct {
	ID          string
	Region      CacheRegion
	Type        CacheAlertType
	Severity    AlertSeverity
	Current     float64
	Threshold   float64
	TriggeredAt time.Time
	Cooldown    time.Duration
}

// CacheStatistics is a point-in-time snapshot of counters for one region
// over a time window.
type CacheStatistics struct {
	Region              CacheRegion
	Hits                int64
	Misses              int64
	Sets                int64
	Removes             int64
	Evictions           int64
	Errors              int64
	SizeBytes           int64
	WindowStart         time.Time
	WindowEnd           time.Time
	LatencyAvgMs        float64
	LatencyP95Ms        float64
	LatencyP99Ms        float64
	LatencyMaxMs        float64
	OperationBreakdown  map[CacheOperationType]int64
}

// TotalRequests is Hits+Misses, the denominator for HitRate (spec §8
// invariant 8).
func (s CacheStatistics) TotalRequests() int64 { return s.Hits + s.Misses }

// HitRate is hits/total, or 0 when there have been no requests.
func (s CacheStatistics) HitRate() float64 {
	total := s.TotalRequests()
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
