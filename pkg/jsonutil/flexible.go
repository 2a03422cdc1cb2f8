package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleFloatValue converts a json.RawMessage to a float64, handling cases
// where LLMs return numbers quoted as strings ("0.85") or percentages ("85%").
// Returns 0 when no numeric interpretation exists.
func FlexibleFloatValue(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err != nil {
		return 0
	}

	strVal = strings.TrimSpace(strVal)
	if strings.HasSuffix(strVal, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(strVal, "%"), 64)
		if err != nil {
			return 0
		}
		return pct / 100
	}

	parsed, err := strconv.ParseFloat(strVal, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// FlexibleStringSlice converts a json.RawMessage to a string slice, accepting
// either a JSON array or a single scalar value.
func FlexibleStringSlice(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err == nil {
		out := make([]string, 0, len(rawItems))
		for _, item := range rawItems {
			if s := FlexibleStringValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	if s := FlexibleStringValue(raw); s != "" {
		return []string{s}
	}
	return nil
}
