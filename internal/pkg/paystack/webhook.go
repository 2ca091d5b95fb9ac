package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body
	SignatureHeader = "X-Paystack-Signature"

	EventChargeSuccess = "charge.success"
)

// Event is a webhook notification
type Event struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

// GenerateSignature computes the signature Paystack sends for body
func GenerateSignature(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the exact raw body bytes.
// Empty secret or header never verifies.
func VerifySignature(body []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}

	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// ParseEvent decodes a verified webhook body
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	ev.Event = strings.TrimSpace(ev.Event)
	ev.Data.Reference = strings.TrimSpace(ev.Data.Reference)
	return &ev, nil
}
