package store

import (
	"encoding/json"
	"fmt"

	"github.com/pavangelika/currency-rate-bot/internal/domain"
)

// Currencies and job ids live in JSON text columns so that each update
// stays a single-column write.

func marshalCurrencies(sel []domain.Currency) (string, error) {
	if sel == nil {
		sel = []domain.Currency{}
	}
	b, err := json.Marshal(sel)
	if err != nil {
		return "", fmt.Errorf("marshal currencies: %w", err)
	}
	return string(b), nil
}

func unmarshalCurrencies(s string) ([]domain.Currency, error) {
	if s == "" {
		return nil, nil
	}
	var sel []domain.Currency
	if err := json.Unmarshal([]byte(s), &sel); err != nil {
		return nil, fmt.Errorf("unmarshal currencies: %w", err)
	}
	return sel, nil
}

func marshalJobIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal job ids: %w", err)
	}
	return string(b), nil
}

func unmarshalJobIDs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal job ids: %w", err)
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
