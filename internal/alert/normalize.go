package alert

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMalformed indicates an alert payload without the minimum structure
// required for normalization. Callers must skip the alert and keep polling;
// retrying the same payload can never succeed.
var ErrMalformed = errors.New("malformed alert")

// Normalize converts one raw decoded alert record into its canonical form.
// Pure function, no I/O. The raw record must carry an objectId and a nested
// "candidate" with at least jd, ra and dec.
func Normalize(raw map[string]any, topic string) (*Normalized, error) {
	objectID, ok := asString(raw["objectId"])
	if !ok || objectID == "" {
		return nil, fmt.Errorf("%w: missing objectId", ErrMalformed)
	}

	cand, ok := raw["candidate"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing candidate record", ErrMalformed)
	}

	jd, ok := asFloat(cand["jd"])
	if !ok {
		return nil, fmt.Errorf("%w: candidate has no jd", ErrMalformed)
	}
	ra, ok := asFloat(cand["ra"])
	if !ok {
		return nil, fmt.Errorf("%w: candidate has no ra", ErrMalformed)
	}
	dec, ok := asFloat(cand["dec"])
	if !ok {
		return nil, fmt.Errorf("%w: candidate has no dec", ErrMalformed)
	}

	candid := ""
	if v, ok := asString(cand["candid"]); ok {
		candid = v
	}

	na := &Normalized{
		ObjectID: objectID,
		Candid:   candid,
		Topic:    topic,
		RA:       ra,
		Dec:      dec,
		JD:       jd,
		Fid:      intOr(cand["fid"], 0),
		Mag:      floatOr(cand["magpsf"], math.NaN()),
		MagErr:   floatOr(cand["sigmapsf"], math.NaN()),
		LimMag:   floatOr(cand["diffmaglim"], math.NaN()),

		DRB:       optFloat(cand["drb"]),
		RB:        optFloat(cand["rb"]),
		IsDiffPos: optString(cand["isdiffpos"]),
		SSDistNr:  optFloat(cand["ssdistnr"]),
		DistPSNR1: optFloat(cand["distpsnr1"]),
		SGScore1:  optFloat(cand["sgscore1"]),
		SRMag1:    optFloat(cand["srmag1"]),
		NMtchPS:   optInt(cand["nmtchps"]),
		NDetHist:  optInt(cand["ndethist"]),

		Raw: raw,
	}

	nd := lastNonDetection(raw["prv_candidates"], jd)
	if nd != nil {
		na.LastNonDetJD = optFloat(nd["jd"])
		na.LastNonDetLim = optFloat(nd["diffmaglim"])
	}
	if _, hasMag := asFloat(cand["magpsf"]); hasMag && na.LastNonDetLim != nil {
		delta := *na.LastNonDetLim - na.Mag
		na.DeltaMagFromNonDet = &delta
	}

	return na, nil
}

// lastNonDetection scans the historical observations for upper limits (no
// candid) strictly before the current jd and returns the most recent one.
func lastNonDetection(prv any, currentJD float64) map[string]any {
	entries, ok := prv.([]any)
	if !ok {
		return nil
	}

	var best map[string]any
	var bestJD float64
	for _, e := range entries {
		p, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if p["candid"] != nil {
			continue // a detection, not an upper limit
		}
		jd, ok := asFloat(p["jd"])
		if !ok || jd >= currentJD {
			continue
		}
		if best == nil || jd > bestJD {
			best = p
			bestJD = jd
		}
	}
	return best
}

// asFloat extracts a numeric value regardless of how the decoder typed it.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}

func floatOr(v any, fallback float64) float64 {
	if f, ok := asFloat(v); ok {
		return f
	}
	return fallback
}

func intOr(v any, fallback int) int {
	if f, ok := asFloat(v); ok {
		return int(f)
	}
	return fallback
}

func optFloat(v any) *float64 {
	if f, ok := asFloat(v); ok {
		return &f
	}
	return nil
}

func optInt(v any) *int {
	if f, ok := asFloat(v); ok {
		i := int(f)
		return &i
	}
	return nil
}

func optString(v any) *string {
	if s, ok := asString(v); ok {
		return &s
	}
	return nil
}
