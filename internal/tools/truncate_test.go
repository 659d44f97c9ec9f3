package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncateResultPassesThroughNilAndSmallData(t *testing.T) {
	require.Nil(t, truncateResult(nil, MaxToolResponseBytes))

	noData := &Result{Success: true, Summary: "no data"}
	require.Same(t, noData, truncateResult(noData, MaxToolResponseBytes))

	small := &Result{Success: true, Data: map[string]string{"k": "v"}}
	require.Same(t, small, truncateResult(small, MaxToolResponseBytes))
}

func TestTruncateResultCapsLargeData(t *testing.T) {
	original := &Result{
		Success:         true,
		Data:            map[string]string{"big": strings.Repeat("x", 2000)},
		Summary:         "large",
		ExecutionTimeMs: 100,
	}

	result := truncateResult(original, 1024)
	require.NotSame(t, original, result)
	require.True(t, result.Success)
	require.EqualValues(t, 100, result.ExecutionTimeMs)
	require.Contains(t, result.Summary, "truncated")

	data, ok := result.Data.(truncatedData)
	require.True(t, ok)
	require.True(t, data.Truncated)
	require.Equal(t, 1024, data.TruncatedBytes)
	require.Greater(t, data.OriginalBytes, 1024)
}
