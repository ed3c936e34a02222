package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	// StoreDriver selects the billing store: gorm or memory
	StoreDriver string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// Payment processor
	StripeSecretKey  string
	ProcessorTimeout time.Duration
	LedgerPosting    string
	Currency         string

	// Schedules
	AutopayCron    string
	LogFlushCron   string
	LogArchiveCron string

	// Kafka
	KafkaBrokers     []string
	KafkaLedgerTopic string

	// AWS S3
	AWSRegion       string
	S3BucketName    string
	S3ArchivePrefix string

	// Server
	Port        string
	AppEnv      string
	CORSOrigins string

	// Logging
	LogLevel string

	SeedOnStart bool
}

// GetDSN builds the driver-specific connection string.
func (c *Config) GetDSN() string {
	if c.DBDriver == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=UTC"
}

// IsProduction reports whether the app runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.ToLower(c.AppEnv) == "production"
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string
	if useSSM {
		prefix := strings.TrimRight(getEnv("SSM_PREFIX", "/danceportal/"+getEnv("APP_ENV", "production")), "/")
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "us-east-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	cfg, err := build(func(key, def string) string {
		if v, ok := paramMap[key]; ok && v != "" {
			return v
		}
		return getEnv(key, def)
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("%v (SSM=%v)", err, useSSM)
	}
	AppConfig = cfg
}

// build reads every key through get, applying defaults.
func build(get func(key, def string) string) (*Config, error) {
	jwtHours, err := strconv.Atoi(get("JWT_TTL_HOURS", "24"))
	if err != nil || jwtHours <= 0 {
		return nil, fmt.Errorf("invalid JWT_TTL_HOURS %q", get("JWT_TTL_HOURS", ""))
	}
	timeoutSeconds, err := strconv.Atoi(get("PROCESSOR_TIMEOUT_SECONDS", "20"))
	if err != nil || timeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid PROCESSOR_TIMEOUT_SECONDS %q", get("PROCESSOR_TIMEOUT_SECONDS", ""))
	}
	redisDB, err := strconv.Atoi(get("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB %q", get("REDIS_DB", ""))
	}

	driver := strings.ToLower(get("DB_DRIVER", "mysql"))
	defaultPort := "3306"
	if driver == "postgres" {
		defaultPort = "5432"
	}

	return &Config{
		DBDriver:    driver,
		DBHost:      get("DB_HOST", "localhost"),
		DBPort:      get("DB_PORT", defaultPort),
		DBUser:      get("DB_USER", "root"),
		DBPassword:  get("DB_PASSWORD", ""),
		DBName:      get("DB_NAME", "danceportal"),
		DBSSLMode:   get("DB_SSLMODE", "disable"),
		StoreDriver: strings.ToLower(get("STORE_DRIVER", "gorm")),

		RedisHost:     get("REDIS_HOST", "localhost"),
		RedisPort:     get("REDIS_PORT", "6379"),
		RedisPassword: get("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		JWTSecret:    get("JWT_SECRET", "your_super_secret_jwt_key"),
		JWTExpiresIn: time.Duration(jwtHours) * time.Hour,

		StripeSecretKey:  get("STRIPE_SECRET_KEY", ""),
		ProcessorTimeout: time.Duration(timeoutSeconds) * time.Second,
		LedgerPosting:    strings.ToLower(get("LEDGER_POSTING", "optimistic")),
		Currency:         strings.ToLower(get("CURRENCY", "usd")),

		AutopayCron:    get("AUTOPAY_CRON", "0 6 * * *"),
		LogFlushCron:   get("LOG_FLUSH_CRON", "*/5 * * * *"),
		LogArchiveCron: get("LOG_ARCHIVE_CRON", "30 2 * * *"),

		KafkaBrokers:     splitList(get("KAFKA_BROKERS", "")),
		KafkaLedgerTopic: get("KAFKA_LEDGER_TOPIC", "ledger-events"),

		AWSRegion:       get("AWS_REGION", "us-east-1"),
		S3BucketName:    get("S3_BUCKET", ""),
		S3ArchivePrefix: strings.Trim(get("S3_ARCHIVE_PREFIX", "archives"), "/"),

		Port:        get("APP_PORT", "3000"),
		AppEnv:      get("APP_ENV", "development"),
		CORSOrigins: get("CORS_ORIGINS", "*"),

		LogLevel:    get("LOG_LEVEL", "info"),
		SeedOnStart: strings.ToLower(get("SEED_ON_START", "false")) == "true",
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			key := name[strings.LastIndex(name, "/")+1:]
			if key == "" {
				continue
			}
			out[strings.ToUpper(key)] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

func validateConfig(c *Config) error {
	switch c.LedgerPosting {
	case "optimistic", "settled":
	default:
		return fmt.Errorf("unknown LEDGER_POSTING %q", c.LedgerPosting)
	}
	switch c.DBDriver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	switch c.StoreDriver {
	case "gorm", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Currency != "usd" {
		return fmt.Errorf("unsupported CURRENCY %q", c.Currency)
	}

	// Only enforce secrets in production
	if !c.IsProduction() {
		return nil
	}
	required := map[string]string{
		"DB_HOST":     c.DBHost,
		"DB_USER":     c.DBUser,
		"DB_PASSWORD": c.DBPassword,
		"DB_NAME":     c.DBName,
		"JWT_SECRET":  c.JWTSecret,
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("missing required setting %s in production", k)
		}
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET too short (min 16 chars)")
	}
	return nil
}
