// Package stamp extracts cheap quality metrics from the gzipped FITS image
// cutouts that ride along with each alert. The reader handles only the
// primary 2D image HDU, which is all the survey stamps ever contain.
package stamp

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

const headerBlockSize = 2880
const cardSize = 80

// Metrics are robust statistics over one image stamp.
type Metrics struct {
	Median  float64
	MAD     float64
	Peak    float64
	Trough  float64
	SNRLike float64
	Height  int
	Width   int
}

// Map renders the metrics with the keys used in decision snapshots.
func (m Metrics) Map() map[string]any {
	return map[string]any{
		"stamp_med":      m.Median,
		"stamp_mad":      m.MAD,
		"stamp_peak":     m.Peak,
		"stamp_trough":   m.Trough,
		"stamp_snr_like": m.SNRLike,
		"stamp_shape":    []int{m.Height, m.Width},
	}
}

// FromAlert digs the science cutout out of a raw alert record and computes
// metrics for it. Any decode failure yields ok=false; stamp trouble must
// never stop the pipeline.
func FromAlert(raw map[string]any) (Metrics, bool) {
	cutout, ok := raw["cutoutScience"].(map[string]any)
	if !ok {
		return Metrics{}, false
	}

	var data []byte
	switch v := cutout["stampData"].(type) {
	case []byte:
		data = v
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return Metrics{}, false
		}
		data = decoded
	default:
		return Metrics{}, false
	}

	m, err := Compute(data)
	if err != nil {
		return Metrics{}, false
	}
	return m, true
}

// Compute decompresses a gzipped FITS stamp and returns robust statistics.
func Compute(stampGz []byte) (Metrics, error) {
	zr, err := gzip.NewReader(bytes.NewReader(stampGz))
	if err != nil {
		return Metrics{}, fmt.Errorf("stamp gunzip: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return Metrics{}, fmt.Errorf("stamp gunzip: %w", err)
	}

	header, offset, err := readHeader(raw)
	if err != nil {
		return Metrics{}, err
	}

	if n := headerInt(header, "NAXIS", 0); n != 2 {
		return Metrics{}, fmt.Errorf("stamp: only 2D images supported, got NAXIS=%d", n)
	}
	bitpix := headerInt(header, "BITPIX", 0)
	nx := headerInt(header, "NAXIS1", 0)
	ny := headerInt(header, "NAXIS2", 0)
	if nx <= 0 || ny <= 0 {
		return Metrics{}, fmt.Errorf("stamp: bad image dimensions %dx%d", nx, ny)
	}

	pixels, err := readPixels(raw[offset:], bitpix, nx*ny)
	if err != nil {
		return Metrics{}, err
	}

	return computeMetrics(pixels, ny, nx), nil
}

// readHeader parses 80-byte header cards until END and returns the values
// plus the data offset. Headers are padded to 2880-byte blocks.
func readHeader(raw []byte) (map[string]string, int, error) {
	header := make(map[string]string)
	pos := 0
	for {
		if pos+cardSize > len(raw) {
			return nil, 0, fmt.Errorf("stamp: truncated FITS header")
		}
		card := string(raw[pos : pos+cardSize])
		pos += cardSize

		key := strings.TrimSpace(card[:8])
		if key == "END" {
			break
		}
		if len(card) > 10 && card[8:10] == "= " {
			value := strings.TrimSpace(strings.SplitN(card[10:], "/", 2)[0])
			header[key] = value
		}
	}
	if pad := pos % headerBlockSize; pad != 0 {
		pos += headerBlockSize - pad
	}
	return header, pos, nil
}

func headerInt(header map[string]string, key string, fallback int) int {
	v, ok := header[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// readPixels decodes n big-endian samples according to BITPIX.
func readPixels(data []byte, bitpix, n int) ([]float64, error) {
	var width int
	switch bitpix {
	case 8:
		width = 1
	case 16:
		width = 2
	case 32, -32:
		width = 4
	case -64:
		width = 8
	default:
		return nil, fmt.Errorf("stamp: unsupported BITPIX=%d", bitpix)
	}
	if len(data) < n*width {
		return nil, fmt.Errorf("stamp: truncated image data")
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		chunk := data[i*width:]
		switch bitpix {
		case 8:
			out[i] = float64(chunk[0])
		case 16:
			out[i] = float64(int16(binary.BigEndian.Uint16(chunk)))
		case 32:
			out[i] = float64(int32(binary.BigEndian.Uint32(chunk)))
		case -32:
			out[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(chunk)))
		case -64:
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(chunk))
		}
	}
	return out, nil
}

func computeMetrics(pixels []float64, height, width int) Metrics {
	finite := make([]float64, 0, len(pixels))
	for _, p := range pixels {
		if !math.IsNaN(p) && !math.IsInf(p, 0) {
			finite = append(finite, p)
		}
	}
	if len(finite) == 0 {
		return Metrics{Median: math.NaN(), Height: height, Width: width}
	}

	med := median(finite)

	dev := make([]float64, len(finite))
	peak := finite[0]
	trough := finite[0]
	for i, p := range finite {
		dev[i] = math.Abs(p - med)
		if p > peak {
			peak = p
		}
		if p < trough {
			trough = p
		}
	}
	mad := median(dev) + 1e-6

	return Metrics{
		Median:  med,
		MAD:     mad,
		Peak:    peak,
		Trough:  trough,
		SNRLike: (peak - med) / (1.4826 * mad),
		Height:  height,
		Width:   width,
	}
}

// median sorts its argument in place.
func median(v []float64) float64 {
	sort.Float64s(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}
