package broker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEnvelope_AcceptsWellFormedJSONUnderLimit(t *testing.T) {
	assert.True(t, ValidateEnvelope([]byte(`{"event":"join-room","payload":{"roomId":"abc123"}}`)))
}

func TestValidateEnvelope_RejectsMalformedJSON(t *testing.T) {
	assert.False(t, ValidateEnvelope([]byte(`{"event":`)))
	assert.False(t, ValidateEnvelope([]byte("not json at all")))
}

func TestValidateEnvelope_RejectsOverMaxEnvelopeBytes(t *testing.T) {
	oversized := `{"event":"offer","payload":"` + strings.Repeat("a", maxEnvelopeBytes) + `"}`
	assert.Greater(t, len(oversized), maxEnvelopeBytes)
	assert.False(t, ValidateEnvelope([]byte(oversized)))
}

func TestValidateEnvelope_AcceptsExactlyAtLimit(t *testing.T) {
	// A payload sized so the full envelope lands exactly at maxEnvelopeBytes.
	padding := maxEnvelopeBytes - len(`{"event":"x","payload":""}`)
	env := `{"event":"x","payload":"` + strings.Repeat("a", padding) + `"}`
	assert.Equal(t, maxEnvelopeBytes, len(env))
	assert.True(t, ValidateEnvelope([]byte(env)))
}

// TestTransportReadLimitLeavesMarginAboveEnvelopeBound guards against the
// bug where SetReadLimit was set equal to maxEnvelopeBytes: gorilla's
// ReadMessage tears the connection down the instant a frame exceeds its
// read limit, before ValidateEnvelope's size check ever runs. An envelope
// between maxEnvelopeBytes and transportReadLimit must reach
// ValidateEnvelope (and be dropped there) instead of killing the socket.
func TestTransportReadLimitLeavesMarginAboveEnvelopeBound(t *testing.T) {
	assert.Greater(t, transportReadLimit, maxEnvelopeBytes)

	oversizedButWithinTransportLimit := `{"event":"offer","payload":"` + strings.Repeat("a", maxEnvelopeBytes) + `"}`
	assert.Greater(t, len(oversizedButWithinTransportLimit), maxEnvelopeBytes)
	assert.LessOrEqual(t, len(oversizedButWithinTransportLimit), transportReadLimit)
	assert.False(t, ValidateEnvelope([]byte(oversizedButWithinTransportLimit)))
}
