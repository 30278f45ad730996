package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
)

// ReferralQRService renders a shareable QR image for an account's
// referral code. Images are cached in Redis since the code never changes.
type ReferralQRService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewReferralQRService(db *sql.DB, redisClient *redis.Client) *ReferralQRService {
	return &ReferralQRService{
		db:    db,
		redis: redisClient,
	}
}

// GenerateReferralQR returns the account's referral code, the signup URL
// it encodes and a base64 PNG of the QR image.
func (s *ReferralQRService) GenerateReferralQR(ctx context.Context, userID string) (string, string, string, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT referral_code FROM users WHERE id = $1`, userID).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", "", ErrNotFound
		}
		return "", "", "", storageError("fetch referral code", err)
	}

	viper.SetDefault("app.base_url", "http://localhost:8080")
	shareURL := fmt.Sprintf("%s/signup?ref=%s", viper.GetString("app.base_url"), code)

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, "refqr:"+code).Result(); err == nil {
			return code, shareURL, cached, nil
		}
	}

	qr, err := qrcode.New(shareURL, qrcode.Medium)
	if err != nil {
		return "", "", "", fmt.Errorf("encode referral QR: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", "", fmt.Errorf("render referral QR: %w", err)
	}

	image := base64.StdEncoding.EncodeToString(buf.Bytes())

	if s.redis != nil {
		s.redis.Set(ctx, "refqr:"+code, image, 24*time.Hour)
	}

	return code, shareURL, image, nil
}
