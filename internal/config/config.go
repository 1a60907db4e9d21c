package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// DecayModel selects the scoring curve applied to all memories.
// The selection is per-process; there is no per-memory override.
type DecayModel string

const (
	DecayExponential  DecayModel = "exponential"
	DecayPowerLaw     DecayModel = "power_law"
	DecayTwoComponent DecayModel = "two_component"
)

// Config carries every tunable the core needs. It is loaded once at startup
// and injected into constructors; nothing reads the environment after Load.
type Config struct {
	// Storage
	StoragePath string

	// Decay parameters
	DecayModel  DecayModel
	DecayLambda float64 // decay constant for the exponential model
	DecayBeta   float64 // exponent for use_count in the scoring function

	// Power-law model
	PowerLawAlpha float64

	// Two-component model
	FastHalflifeDays float64
	SlowHalflifeDays float64
	FastWeight       float64

	HalflifeDays float64 // half-life the default lambda was derived from

	// Thresholds
	ForgetThreshold   float64
	PromoteThreshold  float64
	PromoteUseCount   int
	PromoteTimeWindow int // days
	UrgentThreshold   float64

	// Embeddings
	EnableEmbeddings  bool
	EmbeddingProvider string
	EmbeddingAPIKey   string
	EmbedModel        string

	// Semantic similarity thresholds
	SemanticHi float64
	SemanticLo float64

	// Clustering
	ClusterLinkThreshold float64
	ClusterMaxSize       int

	// Relationship discovery
	RelationMinShared     int
	RelationMinConfidence float64

	// Long-term memory vault
	LTMVaultPath      string
	LTMIndexPath      string
	LTMPromotedFolder string

	// Unified search weights
	SearchSTMWeight float64
	SearchLTMWeight float64

	// Activation
	ActivationTimeoutMS int
	ActivationMaxMemory int
	ActivationThreshold float64

	// Server
	ServerPort     int
	RateLimitRPS   float64
	RateLimitBurst int
	LogLevel       string
}

// DefaultHalflifeDays is the half-life behind the default decay lambda.
const DefaultHalflifeDays = 3.0

// Load reads the .env file named by MNEMOS_ENV (default ".env") and then
// builds a Config from flat environment variables.
func Load() (*Config, error) {
	envFile := os.Getenv("MNEMOS_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	cfg := Default()

	cfg.StoragePath = envString("STM_STORAGE_PATH", cfg.StoragePath)

	cfg.DecayModel = DecayModel(envString("STM_DECAY_MODEL", string(cfg.DecayModel)))
	cfg.DecayLambda = envFloat("STM_DECAY_LAMBDA", cfg.DecayLambda)
	cfg.DecayBeta = envFloat("STM_DECAY_BETA", cfg.DecayBeta)
	cfg.PowerLawAlpha = envFloat("STM_POWER_LAW_ALPHA", cfg.PowerLawAlpha)
	cfg.FastHalflifeDays = envFloat("STM_FAST_HALFLIFE_DAYS", cfg.FastHalflifeDays)
	cfg.SlowHalflifeDays = envFloat("STM_SLOW_HALFLIFE_DAYS", cfg.SlowHalflifeDays)
	cfg.FastWeight = envFloat("STM_FAST_WEIGHT", cfg.FastWeight)
	cfg.HalflifeDays = envFloat("STM_HALFLIFE_DAYS", cfg.HalflifeDays)

	cfg.ForgetThreshold = envFloat("STM_FORGET_THRESHOLD", cfg.ForgetThreshold)
	cfg.PromoteThreshold = envFloat("STM_PROMOTE_THRESHOLD", cfg.PromoteThreshold)
	cfg.PromoteUseCount = envInt("STM_PROMOTE_USE_COUNT", cfg.PromoteUseCount)
	cfg.PromoteTimeWindow = envInt("STM_PROMOTE_TIME_WINDOW", cfg.PromoteTimeWindow)
	cfg.UrgentThreshold = envFloat("STM_URGENT_THRESHOLD", cfg.UrgentThreshold)

	cfg.EnableEmbeddings = envBool("STM_ENABLE_EMBEDDINGS", cfg.EnableEmbeddings)
	cfg.EmbeddingProvider = envString("EMBEDDING_PROVIDER", cfg.EmbeddingProvider)
	cfg.EmbeddingAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.EmbedModel = envString("STM_EMBED_MODEL", cfg.EmbedModel)

	cfg.SemanticHi = envFloat("STM_SEMANTIC_HI", cfg.SemanticHi)
	cfg.SemanticLo = envFloat("STM_SEMANTIC_LO", cfg.SemanticLo)

	cfg.ClusterLinkThreshold = envFloat("STM_CLUSTER_LINK_THRESHOLD", cfg.ClusterLinkThreshold)
	cfg.ClusterMaxSize = envInt("STM_CLUSTER_MAX_SIZE", cfg.ClusterMaxSize)

	cfg.RelationMinShared = envInt("STM_RELATION_MIN_SHARED_ENTITIES", cfg.RelationMinShared)
	cfg.RelationMinConfidence = envFloat("STM_RELATION_MIN_CONFIDENCE", cfg.RelationMinConfidence)

	cfg.LTMVaultPath = os.Getenv("LTM_VAULT_PATH")
	cfg.LTMIndexPath = os.Getenv("LTM_INDEX_PATH")
	cfg.LTMPromotedFolder = envString("LTM_PROMOTED_FOLDER", cfg.LTMPromotedFolder)

	cfg.SearchSTMWeight = envFloat("SEARCH_STM_WEIGHT", cfg.SearchSTMWeight)
	cfg.SearchLTMWeight = envFloat("SEARCH_LTM_WEIGHT", cfg.SearchLTMWeight)

	cfg.ActivationTimeoutMS = envInt("STM_ACTIVATION_TIMEOUT_MS", cfg.ActivationTimeoutMS)
	cfg.ActivationMaxMemory = envInt("STM_ACTIVATION_MAX_MEMORIES", cfg.ActivationMaxMemory)
	cfg.ActivationThreshold = envFloat("STM_ACTIVATION_THRESHOLD", cfg.ActivationThreshold)

	cfg.ServerPort = envInt("SERVER_PORT", cfg.ServerPort)
	cfg.RateLimitRPS = envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = envInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)

	switch cfg.DecayModel {
	case DecayExponential, DecayPowerLaw, DecayTwoComponent:
	default:
		return nil, fmt.Errorf("invalid STM_DECAY_MODEL %q (valid: exponential, power_law, two_component)", cfg.DecayModel)
	}

	if cfg.LTMIndexPath == "" && cfg.LTMVaultPath != "" {
		cfg.LTMIndexPath = filepath.Join(cfg.LTMVaultPath, ".stm-index.jsonl")
	}

	return cfg, nil
}

// Default returns a Config with all defaults and no environment reads.
func Default() *Config {
	return &Config{
		StoragePath:          defaultStoragePath(),
		DecayModel:           DecayExponential,
		DecayLambda:          math.Ln2 / (DefaultHalflifeDays * 86400),
		DecayBeta:            0.6,
		PowerLawAlpha:        1.0,
		FastHalflifeDays:     1.0,
		SlowHalflifeDays:     14.0,
		FastWeight:           0.7,
		HalflifeDays:         DefaultHalflifeDays,
		ForgetThreshold:      0.05,
		PromoteThreshold:     0.65,
		PromoteUseCount:      5,
		PromoteTimeWindow:    14,
		UrgentThreshold:      0.10,
		EmbeddingProvider:    "mock",
		EmbedModel:           "text-embedding-3-small",
		SemanticHi:           0.88,
		SemanticLo:           0.78,
		ClusterLinkThreshold:  0.83,
		ClusterMaxSize:        12,
		RelationMinShared:     2,
		RelationMinConfidence: 0.3,
		LTMPromotedFolder:    "stm-promoted",
		SearchSTMWeight:      1.0,
		SearchLTMWeight:      0.7,
		ActivationTimeoutMS:  50,
		ActivationMaxMemory:  10,
		ActivationThreshold:  0.5,
		ServerPort:           8080,
		RateLimitRPS:         100,
		RateLimitBurst:       20,
		LogLevel:             "info",
	}
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stm/jsonl"
	}
	return filepath.Join(home, ".stm", "jsonl")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}
