package ratelimit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultRetryDelaySeconds applies when a 429 carries no usable retry delay.
const DefaultRetryDelaySeconds = 60

const (
	retryInfoType    = "type.googleapis.com/google.rpc.RetryInfo"
	quotaFailureType = "type.googleapis.com/google.rpc.QuotaFailure"
)

var retryDelayExpr = regexp.MustCompile(`^(\d+(?:\.\d+)?)s?$`)

// ParseRetryDelay converts a protobuf duration string such as "15.0029s" to seconds.
func ParseRetryDelay(value string) float64 {
	match := retryDelayExpr.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return DefaultRetryDelaySeconds
	}
	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return DefaultRetryDelaySeconds
	}
	return seconds
}

type errorEnvelope struct {
	Error struct {
		Code    int               `json:"code"`
		Status  string            `json:"status"`
		Message string            `json:"message"`
		Details []json.RawMessage `json:"details"`
	} `json:"error"`
}

type errorDetail struct {
	Type       string          `json:"@type"`
	RetryDelay json.RawMessage `json:"retryDelay"`
	Violations []struct {
		QuotaMetric     string          `json:"quotaMetric"`
		QuotaID         string          `json:"quotaId"`
		QuotaDimensions json.RawMessage `json:"quotaDimensions"`
	} `json:"violations"`
}

// ParseHit extracts retry and quota details from a 429 body. Anything missing
// or malformed falls back to defaults; it never fails.
func ParseHit(payload []byte) Hit {
	hit := Hit{RetryDelaySeconds: DefaultRetryDelaySeconds}

	var env errorEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		if len(payload) > 0 {
			hit.ErrorMessage = strings.TrimSpace(string(payload))
		}
		return hit
	}
	hit.ErrorMessage = env.Error.Message

	retryFound := false
	quotaFound := false
	for _, rawDetail := range env.Error.Details {
		var detail errorDetail
		if err := json.Unmarshal(rawDetail, &detail); err != nil {
			continue
		}
		switch {
		case isType(detail.Type, retryInfoType) && !retryFound:
			retryFound = true
			hit.RetryDelaySeconds = ParseRetryDelay(rawString(detail.RetryDelay))
		case isType(detail.Type, quotaFailureType) && !quotaFound && len(detail.Violations) > 0:
			quotaFound = true
			v := detail.Violations[0]
			hit.QuotaMetric = v.QuotaMetric
			hit.QuotaID = v.QuotaID
			hit.QuotaDimensions = stringMap(v.QuotaDimensions)
		}
	}
	return hit
}

// isType matches on the type suffix since the URL prefix may vary.
func isType(got, want string) bool {
	if got == want {
		return true
	}
	suffix := want[strings.LastIndex(want, "/"):]
	return strings.HasSuffix(got, suffix)
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func stringMap(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	return out
}
