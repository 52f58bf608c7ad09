package compression

import (
	"testing"
)

func TestObserve_CompressedResponse(t *testing.T) {
	n := NewNegotiator(true, false)

	used, ratio := n.Observe("gzip", 1000, 250)
	if !used {
		t.Error("gzip must be classified as compressed")
	}
	if ratio != 4.0 {
		t.Errorf("ratio = %v, want 4.0", ratio)
	}

	stats := n.Stats()
	if stats.CompressedResponses != 1 {
		t.Errorf("CompressedResponses = %d", stats.CompressedResponses)
	}
	if stats.BytesSaved != 750 {
		t.Errorf("BytesSaved = %d, want 750", stats.BytesSaved)
	}
}

func TestObserve_IdentityResponse(t *testing.T) {
	n := NewNegotiator(true, false)

	used, ratio := n.Observe("", 1000, 1000)
	if used {
		t.Error("missing encoding must not count as compressed")
	}
	if ratio != 1 {
		t.Errorf("ratio = %v, want 1", ratio)
	}

	used, _ = n.Observe("identity", 1000, 1000)
	if used {
		t.Error("identity must not count as compressed")
	}

	stats := n.Stats()
	if stats.UncompressedResponses != 2 {
		t.Errorf("UncompressedResponses = %d, want 2", stats.UncompressedResponses)
	}
}

func TestObserve_RecognizedEncodings(t *testing.T) {
	n := NewNegotiator(true, false)

	for _, enc := range []string{"gzip", "deflate", "br", "zstd", "GZIP", " zstd "} {
		if used, _ := n.Observe(enc, 100, 50); !used {
			t.Errorf("encoding %q must be classified as compressed", enc)
		}
	}
}

func TestObserve_Disabled(t *testing.T) {
	n := NewNegotiator(false, false)

	used, ratio := n.Observe("gzip", 1000, 250)
	if used || ratio != 1 {
		t.Error("disabled negotiator must classify nothing")
	}
	if n.RequestHeaders() != nil {
		t.Error("disabled negotiator must request no encodings")
	}
}

func TestObserve_AverageRatio(t *testing.T) {
	n := NewNegotiator(true, false)

	n.Observe("gzip", 400, 100) // 4.0
	n.Observe("gzip", 200, 100) // 2.0

	stats := n.Stats()
	if stats.AverageRatio != 3.0 {
		t.Errorf("AverageRatio = %v, want 3.0", stats.AverageRatio)
	}
}

func TestRequestHeaders_Default(t *testing.T) {
	n := NewNegotiator(true, false)

	headers := n.RequestHeaders()
	if headers["Accept-Encoding"] != "gzip, zstd" {
		t.Errorf("Accept-Encoding = %q", headers["Accept-Encoding"])
	}
}

func TestRequestHeaders_AdaptiveGivesUpOnPoorRatios(t *testing.T) {
	n := NewNegotiator(true, true)

	// Ratios barely above 1: compression is not paying off
	for i := 0; i < adaptiveMinSamples; i++ {
		n.Observe("gzip", 105, 100)
	}

	headers := n.RequestHeaders()
	if headers["Accept-Encoding"] != "identity" {
		t.Errorf("adaptive mode should stop advertising compression, got %q",
			headers["Accept-Encoding"])
	}
}

func TestRequestHeaders_AdaptiveKeepsGoodRatios(t *testing.T) {
	n := NewNegotiator(true, true)

	for i := 0; i < adaptiveMinSamples; i++ {
		n.Observe("gzip", 400, 100)
	}

	headers := n.RequestHeaders()
	if headers["Accept-Encoding"] != "gzip, zstd" {
		t.Errorf("good ratios must keep compression advertised, got %q",
			headers["Accept-Encoding"])
	}
}

func TestRequestHeaders_AdaptiveNeedsSamples(t *testing.T) {
	n := NewNegotiator(true, true)

	// Too few observations to judge
	n.Observe("gzip", 105, 100)

	headers := n.RequestHeaders()
	if headers["Accept-Encoding"] != "gzip, zstd" {
		t.Errorf("adaptive mode must keep compression until enough samples, got %q",
			headers["Accept-Encoding"])
	}
}
