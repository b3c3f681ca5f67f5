package masking

import "strings"

const maskToken = "****"

var (
	sensitiveKeys = []string{"password", "secret", "token", "cookie"}
	// Values under these keys never keep a suffix.
	opaqueKeys = []string{"password", "secret"}
)

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 8 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive returns a copy of input where values under credential-like keys are redacted.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if containsAny(trimmedKey, opaqueKeys) {
			masked[trimmedKey] = maskToken
			continue
		}
		if containsAny(trimmedKey, sensitiveKeys) {
			if str, ok := value.(string); ok {
				masked[trimmedKey] = MaskSecret(str)
			} else {
				masked[trimmedKey] = maskToken
			}
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			masked[trimmedKey] = MaskSensitive(nested)
			continue
		}
		masked[trimmedKey] = value
	}
	return masked
}

func containsAny(key string, candidates []string) bool {
	lower := strings.ToLower(key)
	for _, candidate := range candidates {
		if strings.Contains(lower, candidate) {
			return true
		}
	}
	return false
}
