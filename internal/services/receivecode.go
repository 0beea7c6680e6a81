package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/coastledger/backend/internal/models"
)

const receiveCodeTTL = 5 * time.Minute

// ReceiveCodeService issues short-lived codes (and a QR rendering of them)
// that a payer can resolve to an account for an incoming transfer. Codes are
// single-use when Redis is available; without Redis the code payload is
// self-describing and resolution falls back to decoding it.
type ReceiveCodeService struct {
	redis *redis.Client
}

func NewReceiveCodeService(redisClient *redis.Client) *ReceiveCodeService {
	return &ReceiveCodeService{redis: redisClient}
}

type receiveCodePayload struct {
	AccountID     string `json:"accountId"`
	AccountNumber string `json:"accountNumber"`
	Timestamp     int64  `json:"timestamp"`
	Nonce         string `json:"nonce"`
}

// Generate returns the opaque code plus a base64-encoded PNG QR image of it.
func (s *ReceiveCodeService) Generate(ctx context.Context, acct *models.Account) (string, string, error) {
	payload := receiveCodePayload{
		AccountID:     acct.ID,
		AccountNumber: acct.AccountNumber,
		Timestamp:     time.Now().Unix(),
		Nonce:         generateNonce(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}
	code := base64.URLEncoding.EncodeToString(jsonData)

	if s.redis != nil {
		key := fmt.Sprintf("receive_code:%s", code)
		if err := s.redis.Set(ctx, key, acct.ID, receiveCodeTTL).Err(); err != nil {
			return "", "", err
		}
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return code, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Resolve maps a code back to the destination account id. With Redis the
// code is consumed on first use and expires after receiveCodeTTL.
func (s *ReceiveCodeService) Resolve(ctx context.Context, code string) (string, error) {
	if s.redis != nil {
		key := fmt.Sprintf("receive_code:%s", code)
		accountID, err := s.redis.Get(ctx, key).Result()
		if err == redis.Nil {
			return "", fmt.Errorf("invalid or expired receive code")
		}
		if err != nil {
			return "", err
		}
		s.redis.Del(ctx, key)
		return accountID, nil
	}

	raw, err := base64.URLEncoding.DecodeString(code)
	if err != nil {
		return "", fmt.Errorf("invalid receive code")
	}
	var payload receiveCodePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.AccountID == "" {
		return "", fmt.Errorf("invalid receive code")
	}
	if time.Since(time.Unix(payload.Timestamp, 0)) > receiveCodeTTL {
		return "", fmt.Errorf("receive code expired")
	}
	return payload.AccountID, nil
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
