package core

import (
	"strings"

	"rocklandcensus/internal/geo"
)

// KeyDelimiter separates keys in a raw request string.
const KeyDelimiter = ","

// ParseKeys splits a delimited key string and validates it. An empty string
// selects every registered key.
func ParseKeys(reg *geo.Registry, raw string) ([]GeoKey, error) {
	if strings.TrimSpace(raw) == "" {
		return reg.Keys(), nil
	}
	return ValidateKeys(reg, strings.Split(raw, KeyDelimiter))
}

// ValidateKeys trims tokens, drops empty ones and checks the rest against the
// registry in request order. No tokens left means every registered key.
// Duplicates are kept. The first unknown token rejects the whole request.
func ValidateKeys(reg *geo.Registry, raw []string) ([]GeoKey, error) {
	cleaned := make([]GeoKey, 0, len(raw))
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		key := GeoKey(token)
		if !reg.Contains(key) {
			return nil, &InvalidKeyError{Key: token, Allowed: reg.Keys()}
		}
		cleaned = append(cleaned, key)
	}
	if len(cleaned) == 0 {
		return reg.Keys(), nil
	}
	return cleaned, nil
}
