package bot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntFieldAcceptsWholeNumbers(t *testing.T) {
	for _, data := range []map[string]any{
		{"message_id": 7},
		{"message_id": int64(7)},
		{"message_id": float64(7)},
	} {
		value, err := intField(data, "message_id")
		require.NoError(t, err)
		require.Equal(t, 7, value)
	}
}

func TestIntFieldRejectsFractionalFloat(t *testing.T) {
	_, err := intField(map[string]any{"message_id": 1.7}, "message_id")
	require.Error(t, err)
}

func TestIntFieldRejectsMissingOrWrongType(t *testing.T) {
	_, err := intField(map[string]any{}, "message_id")
	require.Error(t, err)

	_, err = intField(map[string]any{"message_id": "7"}, "message_id")
	require.Error(t, err)
}
