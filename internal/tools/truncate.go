package tools

import (
	"encoding/json"
	"fmt"
)

// MaxToolResponseBytes is the maximum size of a tool response's Data field.
// Larger responses are truncated to a partial payload rather than returned
// whole, since an unbounded tool result can overwhelm a downstream caller
// (an LLM context window, an RPC frame size limit, a browser tab).
const MaxToolResponseBytes = 50 * 1024

// truncatedData replaces Result.Data when the marshaled original exceeds
// MaxToolResponseBytes.
type truncatedData struct {
	Truncated      bool   `json:"_truncated"`
	OriginalBytes  int    `json:"_originalBytes"`
	TruncatedBytes int    `json:"_truncatedBytes"`
	TruncationNote string `json:"_truncationNote"`
	PartialData    string `json:"partialData"`
}

// truncateResult caps result.Data at maxBytes, preserving the rest of the
// Result unchanged.
func truncateResult(result *Result, maxBytes int) *Result {
	if result == nil || result.Data == nil {
		return result
	}

	dataBytes, err := json.Marshal(result.Data)
	if err != nil {
		return result
	}
	if len(dataBytes) <= maxBytes {
		return result
	}

	partialBytes := maxBytes * 80 / 100
	partial := string(dataBytes)
	if len(partial) > partialBytes {
		partial = partial[:partialBytes]
	}

	summary := result.Summary
	if summary != "" {
		summary = fmt.Sprintf("%s [truncated %d→%d bytes]", summary, len(dataBytes), maxBytes)
	} else {
		summary = fmt.Sprintf("[truncated %d→%d bytes]", len(dataBytes), maxBytes)
	}

	return &Result{
		Success: result.Success,
		Data: truncatedData{
			Truncated:      true,
			OriginalBytes:  len(dataBytes),
			TruncatedBytes: maxBytes,
			TruncationNote: fmt.Sprintf("response truncated from %d to ~%d bytes, narrow the query to see the rest", len(dataBytes), maxBytes),
			PartialData:    partial,
		},
		Error:           result.Error,
		Summary:         summary,
		ExecutionTimeMs: result.ExecutionTimeMs,
	}
}
