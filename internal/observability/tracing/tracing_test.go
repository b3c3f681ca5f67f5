package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/licenses"),
		attribute.String("Authorization", "Bearer x"),
		attribute.String("cookie", "_sid=abc"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsOutermostMessage(t *testing.T) {
	err := SafeError(fmt.Errorf("fetch licenses: %w", errors.New("dial tcp 10.0.0.1:3306: refused")))
	assert.EqualError(t, err, "fetch licenses")
	assert.Nil(t, SafeError(nil))
}
