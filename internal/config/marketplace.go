package config

import (
	"os"
	"strconv"
	"time"
)

type MarketplaceConfig struct {
	SignupBonus         int64
	ReferralBonus       int64
	MinPrice            int64
	MaxPrice            int64
	ReferralCodeLength  int
	NicknameMaxAttempts int
	ViewDedupWindow     time.Duration
	ListingsPerPage     int
	MaxTags             int
}

func LoadMarketplaceConfig() *MarketplaceConfig {
	return &MarketplaceConfig{
		SignupBonus:         getEnvAsInt64("POINTS_SIGNUP_BONUS", 100),
		ReferralBonus:       getEnvAsInt64("POINTS_REFERRAL_BONUS", 50),
		MinPrice:            getEnvAsInt64("POINTS_MIN_PRICE", 10),
		MaxPrice:            getEnvAsInt64("POINTS_MAX_PRICE", 10000),
		ReferralCodeLength:  getEnvAsInt("REFERRAL_CODE_LENGTH", 8),
		NicknameMaxAttempts: getEnvAsInt("NICKNAME_MAX_ATTEMPTS", 10),
		ViewDedupWindow:     getEnvAsDuration("VIEW_DEDUP_WINDOW", 24*time.Hour),
		ListingsPerPage:     getEnvAsInt("LISTINGS_PER_PAGE", 20),
		MaxTags:             getEnvAsInt("LISTING_MAX_TAGS", 5),
	}
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
