package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	WorkbookPath string
	MappingPath  string
	DBPath       string
	BackupDir    string
	BackupsKept  int

	Headless       bool
	PageTimeoutMs  int
	SettleWaitMs   int
	FetchDelayMs   int
	RowDelayMs     int
	FetchRetries   int
	ScrollRounds   int
	SessionMaxRows int
	MinDetailChars int

	MatchThreshold      float64
	ShortMatchThreshold float64
	UnitThreshold       float64

	CheckpointEvery int

	PriceSlots  int
	SINSlots    int
	SINRequired int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	workbook := getEnv("WORKBOOK_PATH", filepath.Join(cwd, "data", "gsa_products.xlsx"))

	cfg := Config{
		WorkbookPath: workbook,
		MappingPath:  getEnv("MAPPING_PATH", filepath.Join(cwd, "data", "original_to_root.csv")),
		DBPath:       getEnv("DB_PATH", filepath.Join(cwd, "data", "runs.db")),
		BackupDir:    getEnv("BACKUP_DIR", filepath.Join(filepath.Dir(workbook), "backups")),
		BackupsKept:  getEnvInt("BACKUPS_KEPT", 5),

		Headless:       getEnvBool("BROWSER_HEADLESS", true),
		PageTimeoutMs:  getEnvInt("PAGE_TIMEOUT_MS", 45000),
		SettleWaitMs:   getEnvInt("SETTLE_WAIT_MS", 3000),
		FetchDelayMs:   getEnvInt("FETCH_DELAY_MS", 1500),
		RowDelayMs:     getEnvInt("ROW_DELAY_MS", 2000),
		FetchRetries:   getEnvInt("FETCH_RETRIES", 2),
		ScrollRounds:   getEnvInt("SCROLL_ROUNDS", 5),
		SessionMaxRows: getEnvInt("SESSION_MAX_ROWS", 100),
		MinDetailChars: getEnvInt("MIN_DETAIL_CHARS", 1500),

		MatchThreshold:      getEnvFloat("MATCH_THRESHOLD", 0.85),
		ShortMatchThreshold: getEnvFloat("SHORT_MATCH_THRESHOLD", 0.95),
		UnitThreshold:       getEnvFloat("UNIT_THRESHOLD", 0.80),

		CheckpointEvery: getEnvInt("CHECKPOINT_EVERY", 50),

		PriceSlots:  getEnvInt("PRICE_SLOTS", 3),
		SINSlots:    getEnvInt("SIN_SLOTS", 3),
		SINRequired: getEnvInt("SIN_REQUIRED", 2),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
