package keystache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStatusJSON(t *testing.T) {
	data, err := json.Marshal(PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, `"paid"`, string(data))

	var status PaymentStatus
	require.NoError(t, json.Unmarshal([]byte(`"failed"`), &status))
	assert.Equal(t, PaymentFailed, status)

	assert.Error(t, json.Unmarshal([]byte(`"settled"`), &status))
	assert.Error(t, json.Unmarshal([]byte(`7`), &status))

	_, err = json.Marshal(PaymentStatus(42))
	assert.Error(t, err)
}

func TestParsePaymentStatus(t *testing.T) {
	status, err := ParsePaymentStatus("rejected")
	require.NoError(t, err)
	assert.Equal(t, PaymentRejected, status)

	_, err = ParsePaymentStatus("unknown")
	assert.Error(t, err)
}
