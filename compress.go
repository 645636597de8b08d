package tips

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Aggregator calldata routinely runs to several kilobytes of hex. The
// requirements builder compresses it before it enters the PAYMENT-REQUIRED
// header so the 402 challenge stays within practical header size limits; the
// client passes it through unchanged, and the settlement route decompresses
// it exactly once before forwarding to the facilitator.

// compressedPrefix tags calldata that has been through CompressCallData.
const compressedPrefix = "zb64:"

// IsCompressedCallData reports whether calldata carries the compression tag.
func IsCompressedCallData(callData string) bool {
	return strings.HasPrefix(callData, compressedPrefix)
}

// CompressCallData compresses hex calldata with zlib and wraps it in a
// tagged base64 envelope. Already compressed input is returned unchanged,
// keeping the operation idempotent on the outbound path.
func CompressCallData(callData string) (string, error) {
	if callData == "" || IsCompressedCallData(callData) {
		return callData, nil
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(callData)); err != nil {
		return "", fmt.Errorf("failed to compress calldata: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to compress calldata: %w", err)
	}

	return compressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecompressCallData reverses CompressCallData. Untagged input is returned
// unchanged so the settlement route can call it unconditionally.
func DecompressCallData(callData string) (string, error) {
	if !IsCompressedCallData(callData) {
		return callData, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(callData, compressedPrefix))
	if err != nil {
		return "", fmt.Errorf("invalid compressed calldata: %w", err)
	}

	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("invalid compressed calldata: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decompress calldata: %w", err)
	}
	return string(out), nil
}
