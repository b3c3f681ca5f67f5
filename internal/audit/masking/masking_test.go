package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"username":      "admin",
		"password":      "admin123",
		"session_token": "eyJhbGciOiJIUzI1NiJ9.payload.signature",
		"changes":       map[string]any{"api_secret": 42, "currency": "USD"},
		" ":             "dropped",
		"new_password":  "correct-horse-battery",
		"client_secret": "s3cr3t-value-long",
	})

	assert.Equal(t, "admin", out["username"])
	assert.Equal(t, "****", out["password"])
	assert.Equal(t, "****ture", out["session_token"])
	nested := out["changes"].(map[string]any)
	assert.Equal(t, "****", nested["api_secret"])
	assert.Equal(t, "USD", nested["currency"])
	assert.Equal(t, "****", out["new_password"])
	assert.Equal(t, "****", out["client_secret"])
	assert.NotContains(t, out, " ")
}
