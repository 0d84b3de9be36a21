package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateData(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(ordersJSON), &doc))

	v := NewDataValidator()

	t.Run("valid instance", func(t *testing.T) {
		res, err := v.ValidateData(&doc, map[string]any{"id": "o-1", "amount": 12.5, "status": "new"})
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, "Data is valid", res.Message)
		assert.Empty(t, res.Errors)
	})

	t.Run("missing required and bad enum", func(t *testing.T) {
		res, err := v.ValidateData(&doc, map[string]any{"amount": -1, "status": "lost"})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, "Data validation failed", res.Message)
		assert.GreaterOrEqual(t, len(res.Errors), 3)
	})

	t.Run("closed document rejects extras", func(t *testing.T) {
		closed := doc
		closed.AllowAdditionalProperties = false
		res, err := v.ValidateData(&closed, map[string]any{"id": "o-1", "amount": 1, "surprise": true})
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})
}
