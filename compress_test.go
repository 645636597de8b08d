package tips

import (
	"strings"
	"testing"
)

func TestCompressCallDataRoundTrip(t *testing.T) {
	// Aggregator calldata compresses well because of repeated zero padding.
	callData := "0x12aa3caf" + strings.Repeat("00", 2000) + "deadbeef"

	compressed, err := CompressCallData(callData)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if !IsCompressedCallData(compressed) {
		t.Fatalf("compressed value %q missing prefix", compressed[:20])
	}
	if len(compressed) >= len(callData) {
		t.Errorf("compression did not shrink calldata: %d >= %d", len(compressed), len(callData))
	}

	decompressed, err := DecompressCallData(compressed)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if decompressed != callData {
		t.Error("round trip did not restore original calldata")
	}
}

func TestCompressCallDataIdempotent(t *testing.T) {
	compressed, err := CompressCallData("0xdeadbeef")
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}

	again, err := CompressCallData(compressed)
	if err != nil {
		t.Fatalf("second compress failed: %v", err)
	}
	if again != compressed {
		t.Error("compressing twice changed the value")
	}
}

func TestDecompressCallDataPassthrough(t *testing.T) {
	plain := "0xdeadbeef"
	out, err := DecompressCallData(plain)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if out != plain {
		t.Errorf("uncompressed calldata changed: %q -> %q", plain, out)
	}
}

func TestDecompressCallDataInvalid(t *testing.T) {
	if _, err := DecompressCallData("zb64:!!!not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64 after prefix")
	}
}
