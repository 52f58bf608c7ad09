// Package compression classifies transport compression and tracks observed ratios.
package compression

import (
	"strings"
	"sync"

	"github.com/assetflow/assetflow/pkg/types"
)

// Negotiator inspects response metadata to determine whether a payload was
// transport-compressed and tracks the observed compression ratio. It never
// decompresses anything itself; the transport layer handles decoding.
type Negotiator struct {
	mu       sync.Mutex
	enabled  bool
	adaptive bool

	compressed   uint64
	uncompressed uint64
	ratioSum     float64
	bytesSaved   int64
}

// Encodings the negotiator recognizes as transport compression.
var compressedEncodings = map[string]bool{
	"gzip":    true,
	"deflate": true,
	"br":      true,
	"zstd":    true,
}

// adaptiveMinSamples is how many compressed responses the adaptive mode
// needs before it stops advertising compression for poor ratios.
const adaptiveMinSamples = 10

// adaptiveMinRatio is the average ratio below which compression is judged
// not worth the decode cost.
const adaptiveMinRatio = 1.1

// NewNegotiator creates a negotiator. When disabled it classifies nothing
// and requests identity encoding.
func NewNegotiator(enabled, adaptive bool) *Negotiator {
	return &Negotiator{enabled: enabled, adaptive: adaptive}
}

// Observe classifies one response. originalSize is the declared
// uncompressed size, receivedSize the bytes on the wire. It returns
// whether compression was used and the observed ratio (original over
// compressed; 1 when not compressed or unknown).
func (n *Negotiator) Observe(contentEncoding string, originalSize, receivedSize int64) (bool, float64) {
	if !n.enabled {
		return false, 1
	}

	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))
	used := compressedEncodings[encoding]

	n.mu.Lock()
	defer n.mu.Unlock()

	if !used {
		n.uncompressed++
		return false, 1
	}

	ratio := 1.0
	if receivedSize > 0 && originalSize > 0 {
		ratio = float64(originalSize) / float64(receivedSize)
		if saved := originalSize - receivedSize; saved > 0 {
			n.bytesSaved += saved
		}
	}

	n.compressed++
	n.ratioSum += ratio
	return true, ratio
}

// RequestHeaders returns the headers to attach to outgoing fetches. In
// adaptive mode compression stops being advertised once the observed
// average ratio shows it is not paying off.
func (n *Negotiator) RequestHeaders() map[string]string {
	if !n.enabled {
		return nil
	}

	if n.adaptive {
		n.mu.Lock()
		samples := n.compressed
		avg := n.averageLocked()
		n.mu.Unlock()

		if samples >= adaptiveMinSamples && avg < adaptiveMinRatio {
			return map[string]string{"Accept-Encoding": "identity"}
		}
	}

	return map[string]string{"Accept-Encoding": "gzip, zstd"}
}

// Stats returns a snapshot of compression observations.
func (n *Negotiator) Stats() types.CompressionStats {
	n.mu.Lock()
	defer n.mu.Unlock()

	return types.CompressionStats{
		CompressedResponses:   n.compressed,
		UncompressedResponses: n.uncompressed,
		AverageRatio:          n.averageLocked(),
		BytesSaved:            n.bytesSaved,
	}
}

func (n *Negotiator) averageLocked() float64 {
	if n.compressed == 0 {
		return 0
	}
	return n.ratioSum / float64(n.compressed)
}
