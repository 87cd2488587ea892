package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONSortsKeys(t *testing.T) {
	type payload struct {
		Zebra string `json:"zebra"`
		Alpha string `json:"alpha"`
		Mid   int    `json:"mid"`
	}

	data, err := CanonicalJSON(payload{Zebra: "z", Alpha: "a", Mid: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","mid":1,"zebra":"z"}`, string(data))
}

func TestSignHMACRoundTrip(t *testing.T) {
	payload := []byte(`{"job_id":"abc","status":"completed"}`)

	sig := SignHMAC("secret", payload)
	assert.Len(t, sig, 64)
	assert.True(t, VerifyHMAC("secret", payload, sig))
	assert.False(t, VerifyHMAC("wrong", payload, sig))
	assert.False(t, VerifyHMAC("secret", []byte("tampered"), sig))
}

func TestSignHMACDeterministic(t *testing.T) {
	payload := []byte("same bytes")
	assert.Equal(t, SignHMAC("k", payload), SignHMAC("k", payload))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 4 * time.Second, Factor: 2}

	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: time.Second, Factor: 2, Jitter: 0.2}
	for i := 0; i < 50; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
