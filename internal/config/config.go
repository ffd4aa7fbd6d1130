package config

import (
	_ "embed"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-search/internal/facematch"
	"gopkg.in/yaml.v3"
)

//go:embed matching.yaml
var matchingYAML []byte

type Config struct {
	Matching  MatchingConfig  `yaml:"matching"`
	Detection DetectionConfig `yaml:"detection"`
	Index     IndexConfig     `yaml:"index"`
	Detector  DetectorConfig  `yaml:"-"`
	Database  DatabaseConfig  `yaml:"-"`
	SQLite    SQLiteConfig    `yaml:"-"`
	Redis     RedisConfig     `yaml:"-"`
	Log       LogConfig       `yaml:"-"`
	Web       WebConfig       `yaml:"-"`
}

// MatchingConfig holds the base thresholds the adaptive policy relaxes from.
type MatchingConfig struct {
	SimilarityThreshold   float64 `yaml:"similarity_threshold"`
	ConfidenceThreshold   float64 `yaml:"confidence_threshold"`
	MinDescriptorQuality  float64 `yaml:"min_descriptor_quality"`
	MinLandmarkConfidence float64 `yaml:"min_landmark_confidence"`
	MaxResults            int     `yaml:"max_results"`
}

// DetectionConfig controls face admission after detection.
type DetectionConfig struct {
	DetectionThreshold  float64 `yaml:"detection_threshold"`
	MinFaceArea         float64 `yaml:"min_face_area"` // pixels
	MaxBlurScore        float64 `yaml:"max_blur_score"`
	MinVisibleLandmarks float64 `yaml:"min_visible_landmarks"`
	MultiScale          bool    `yaml:"multi_scale"`
	MaxScales           int     `yaml:"max_scales"`
	ScaleStep           float64 `yaml:"scale_step"`
	MaxImageSize        int     `yaml:"max_image_size"` // longest side in pixels
}

type IndexConfig struct {
	MinQuality float64 `yaml:"min_quality"` // faces below this are left out of the vector index
	MaxResults int     `yaml:"max_results"` // default top-N for nearest lookups
	Store      string  `yaml:"store"`       // file, sqlite, postgres or redis
	Path       string  `yaml:"path"`        // snapshot file for the file store
	VectorPath string  `yaml:"-"`           // optional persisted vector index
}

type DetectorConfig struct {
	URL     string        // face-analysis service, defaults to http://localhost:8000
	Timeout time.Duration // per request
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
}

type LogConfig struct {
	Level string
	File  string // optional rotating log file
	JSON  bool
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a finite float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Clamp01 limits v to [0, 1]. Invalid thresholds are clamped rather than
// rejected so a search stays usable.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Defaults returns the embedded defaults without environment overrides.
func Defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(matchingYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded matching.yaml: " + err.Error())
	}
	return cfg
}

func Load() *Config {
	cfg := Defaults()

	m := &cfg.Matching
	m.SimilarityThreshold = Clamp01(envFloat("MATCH_SIMILARITY_THRESHOLD", m.SimilarityThreshold))
	m.ConfidenceThreshold = Clamp01(envFloat("MATCH_CONFIDENCE_THRESHOLD", m.ConfidenceThreshold))
	m.MinDescriptorQuality = Clamp01(envFloat("MATCH_MIN_DESCRIPTOR_QUALITY", m.MinDescriptorQuality))
	m.MinLandmarkConfidence = Clamp01(envFloat("MATCH_MIN_LANDMARK_CONFIDENCE", m.MinLandmarkConfidence))
	m.MaxResults = envInt("MATCH_MAX_RESULTS", m.MaxResults)

	d := &cfg.Detection
	d.DetectionThreshold = Clamp01(envFloat("DETECTION_THRESHOLD", d.DetectionThreshold))
	d.MinFaceArea = math.Max(0, envFloat("DETECTION_MIN_FACE_AREA", d.MinFaceArea))
	d.MaxBlurScore = Clamp01(envFloat("DETECTION_MAX_BLUR_SCORE", d.MaxBlurScore))
	d.MinVisibleLandmarks = Clamp01(envFloat("DETECTION_MIN_VISIBLE_LANDMARKS", d.MinVisibleLandmarks))
	d.MultiScale = envBool("DETECTION_MULTI_SCALE", d.MultiScale)
	d.MaxScales = envInt("DETECTION_MAX_SCALES", d.MaxScales)
	d.ScaleStep = envFloat("DETECTION_SCALE_STEP", d.ScaleStep)
	if d.ScaleStep <= 0 || d.ScaleStep >= 1 {
		d.ScaleStep = 0.75
	}
	d.MaxImageSize = envInt("DETECTION_MAX_IMAGE_SIZE", d.MaxImageSize)

	ix := &cfg.Index
	ix.MinQuality = Clamp01(envFloat("INDEX_MIN_QUALITY", ix.MinQuality))
	ix.MaxResults = envInt("INDEX_MAX_RESULTS", ix.MaxResults)
	ix.Store = strings.ToLower(envString("INDEX_STORE", ix.Store))
	ix.Path = envString("INDEX_PATH", ix.Path)
	ix.VectorPath = os.Getenv("INDEX_VECTOR_PATH")

	cfg.Detector = DetectorConfig{
		URL:     envString("DETECTOR_URL", "http://localhost:8000"),
		Timeout: time.Duration(envInt("DETECTOR_TIMEOUT_SECONDS", 60)) * time.Second,
	}
	cfg.Database = DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
	}
	cfg.SQLite = SQLiteConfig{
		Path: envString("SQLITE_PATH", "face-index.db"),
	}
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	cfg.Redis = RedisConfig{
		Address:  envString("REDIS_ADDRESS", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
		Key:      envString("REDIS_KEY", "face-search:index"),
	}
	cfg.Log = LogConfig{
		Level: envString("LOG_LEVEL", "info"),
		File:  os.Getenv("LOG_FILE"),
		JSON:  envBool("LOG_JSON", false),
	}
	cfg.Web = WebConfig{
		Host:           envString("WEB_HOST", "0.0.0.0"),
		Port:           envInt("WEB_PORT", 8080),
		AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
	}

	return &cfg
}

// MatchConfig builds the value passed into the matching functions.
func (c *Config) MatchConfig() facematch.MatchConfig {
	return facematch.MatchConfig{
		SimilarityThreshold:   c.Matching.SimilarityThreshold,
		ConfidenceThreshold:   c.Matching.ConfidenceThreshold,
		QualityThreshold:      c.Matching.MinDescriptorQuality,
		MinLandmarkConfidence: c.Matching.MinLandmarkConfidence,
		MaxResults:            c.Matching.MaxResults,
	}.Normalize()
}
