package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings read from the environment.
type Config struct {
	// Postgres is optional. Without DB_HOST reports and call logs are not persisted.
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"paper_auditor"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Local call log used by the CLI when no database is configured.
	CallLogSQLitePath string `envconfig:"CALL_LOG_SQLITE_PATH"`

	EnabledProviders string        `envconfig:"ENABLED_PROVIDERS" default:"crossref,pubmed,arxiv,europepmc,semanticscholar,unpaywall"`
	ProviderTimeout  time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"8s"`
	UserAgent        string        `envconfig:"USER_AGENT" default:"paper-auditor/1.0 (citation verification)"`

	CrossrefBaseURL string        `envconfig:"CROSSREF_BASE_URL" default:"https://api.crossref.org"`
	CrossrefMailto  string        `envconfig:"CROSSREF_MAILTO"`
	CrossrefDelay   time.Duration `envconfig:"CROSSREF_DELAY" default:"1s"`

	PubMedBaseURL string        `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey  string        `envconfig:"PUBMED_API_KEY"`
	PubMedEmail   string        `envconfig:"PUBMED_EMAIL"`
	PubMedTool    string        `envconfig:"PUBMED_TOOL" default:"paper-auditor"`
	PubMedDelay   time.Duration `envconfig:"PUBMED_DELAY" default:"340ms"`

	ArxivBaseURL string        `envconfig:"ARXIV_BASE_URL" default:"https://export.arxiv.org/api/query"`
	ArxivDelay   time.Duration `envconfig:"ARXIV_DELAY" default:"3s"`

	EuropePMCBaseURL string        `envconfig:"EUROPEPMC_BASE_URL" default:"https://www.ebi.ac.uk/europepmc/webservices/rest/search"`
	EuropePMCDelay   time.Duration `envconfig:"EUROPEPMC_DELAY" default:"200ms"`

	SemanticScholarBaseURL string        `envconfig:"SEMANTIC_SCHOLAR_BASE_URL" default:"https://api.semanticscholar.org/graph/v1"`
	SemanticScholarAPIKey  string        `envconfig:"SEMANTIC_SCHOLAR_API_KEY"`
	SemanticScholarDelay   time.Duration `envconfig:"SEMANTIC_SCHOLAR_DELAY" default:"1s"`

	UnpaywallBaseURL string        `envconfig:"UNPAYWALL_BASE_URL" default:"https://api.unpaywall.org/v2"`
	UnpaywallEmail   string        `envconfig:"UNPAYWALL_EMAIL"`
	UnpaywallDelay   time.Duration `envconfig:"UNPAYWALL_DELAY" default:"100ms"`

	CacheTTL             time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	CacheMaxEntries      int           `envconfig:"CACHE_MAX_ENTRIES" default:"1000"`
	CacheCleanupSchedule string        `envconfig:"CACHE_CLEANUP_SCHEDULE" default:"@every 10m"`

	AuditConcurrency int    `envconfig:"AUDIT_CONCURRENCY" default:"4"`
	ScoringFile      string `envconfig:"SCORING_FILE"`

	LLMModel        string `envconfig:"LLM_MODEL"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	DeepSeekAPIKey  string `envconfig:"DEEPSEEK_API_KEY"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL"`

	// S3 compatible archive for finished reports. Disabled without a bucket.
	ArchiveS3URL         string `envconfig:"ARCHIVE_S3_URL"`
	ArchiveS3Region      string `envconfig:"ARCHIVE_S3_REGION" default:"us-east-1"`
	ArchiveS3Key         string `envconfig:"ARCHIVE_S3_KEY"`
	ArchiveS3Secret      string `envconfig:"ARCHIVE_S3_SECRET"`
	ArchiveS3Bucket      string `envconfig:"ARCHIVE_S3_BUCKET"`
	ArchiveKeep          int    `envconfig:"ARCHIVE_KEEP" default:"500"`
	ArchivePruneSchedule string `envconfig:"ARCHIVE_PRUNE_SCHEDULE" default:"0 3 * * *"`
}

// DSN returns the data source name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// DatabaseEnabled reports whether a Postgres host was configured.
func (c *Config) DatabaseEnabled() bool {
	return c.DBHost != ""
}

// ArchiveEnabled reports whether finished reports should be archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveS3Bucket != "" && c.ArchiveS3URL != ""
}

// ProviderNames splits ENABLED_PROVIDERS into trimmed, lower-case names.
func (c *Config) ProviderNames() []string {
	var names []string
	for _, name := range strings.Split(c.EnabledProviders, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ProviderDelays maps provider names to their minimum delay between calls.
func (c *Config) ProviderDelays() map[string]time.Duration {
	return map[string]time.Duration{
		"crossref":        c.CrossrefDelay,
		"pubmed":          c.PubMedDelay,
		"arxiv":           c.ArxivDelay,
		"europepmc":       c.EuropePMCDelay,
		"semanticscholar": c.SemanticScholarDelay,
		"unpaywall":       c.UnpaywallDelay,
	}
}

// Load reads the configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	if c.AuditConcurrency < 1 {
		c.AuditConcurrency = 1
	}
	return &c, nil
}
