// Package filter implements the N1 candidate policy: hostless-ish, very likely
// real, early, with a recent non-detection. It is tuned to maximise early, new
// candidates with minimal junk under low-latency constraints, not to be "best
// science".
package filter

import (
	"github.com/Tricejer41/FirstLight/internal/alert"
)

// Config holds the N1 gate thresholds. Loaded once per run, read-only.
type Config struct {
	DRBMin                float64 `mapstructure:"drb_min"`
	RBFallbackMin         float64 `mapstructure:"rb_fallback_min"`
	RequirePositiveDiff   bool    `mapstructure:"require_positive_diff"`
	MinSSDistNrArcsec     float64 `mapstructure:"min_ssdistnr_arcsec"`
	MinDistPSNR1Arcsec    float64 `mapstructure:"min_distpsnr1_arcsec"`
	MinPS1Mag             float64 `mapstructure:"min_ps1_mag"`
	MaxNMtchPS            int     `mapstructure:"max_nmtchps"`
	MaxNDetHist           int     `mapstructure:"max_ndethist"`
	MaxDaysSinceNonDet    float64 `mapstructure:"max_days_since_nondet"`
	MinDeltaMagFromNonDet float64 `mapstructure:"min_delta_mag_from_nondet"`
}

// Reason codes. The gate order below is a contract: the first failing gate
// determines the reason a borderline alert receives.
const (
	ReasonPass              = "pass"
	ReasonRBFail            = "rb_fail"
	ReasonIsDiffPosFail     = "isdiffpos_fail"
	ReasonSSOMatch          = "sso_match"
	ReasonPS1TooClose       = "ps1_too_close"
	ReasonPS1TooBright      = "ps1_too_bright"
	ReasonCrowdedField      = "crowded_field"
	ReasonTooManyDetections = "too_many_detections"
	ReasonNoRecentNonDet    = "no_recent_nondet"
	ReasonNonDetInFuture    = "nondet_in_future"
	ReasonNonDetTooOld      = "nondet_too_old"
	ReasonDeltaMagSmall     = "delta_mag_small"
)

// Result is the outcome of one evaluation.
type Result struct {
	Accepted bool
	Reason   string
	Metrics  map[string]any
}

type failure struct {
	reason  string
	metrics map[string]any
}

// Gate is one named predicate in the chain. A nil return means pass-through.
type Gate struct {
	Name string
	eval func(a *alert.Normalized, cfg Config) *failure
}

// Gates is the evaluation chain, in contractual order.
var Gates = []Gate{
	{"real_bogus", gateRealBogus},
	{"diff_sign", gateDiffSign},
	{"sso_veto", gateSSOVeto},
	{"ps1_distance", gatePS1Distance},
	{"ps1_brightness", gatePS1Brightness},
	{"crowding", gateCrowding},
	{"novelty", gateNovelty},
	{"nondet_present", gateNonDetPresent},
	{"nondet_ordering", gateNonDetOrdering},
	{"nondet_window", gateNonDetWindow},
	{"mag_jump", gateMagJump},
}

// Evaluate runs the gate chain with short-circuit semantics: the first failing
// gate determines the reason and no further gates run.
func Evaluate(a *alert.Normalized, cfg Config) Result {
	for _, g := range Gates {
		if f := g.eval(a, cfg); f != nil {
			return Result{Accepted: false, Reason: f.reason, Metrics: f.metrics}
		}
	}
	return Result{Accepted: true, Reason: ReasonPass, Metrics: passMetrics(a)}
}

func gateRealBogus(a *alert.Normalized, cfg Config) *failure {
	drbOK := a.DRB != nil && *a.DRB >= cfg.DRBMin
	rbOK := a.DRB == nil && a.RB != nil && *a.RB >= cfg.RBFallbackMin
	if drbOK || rbOK {
		return nil
	}
	return &failure{ReasonRBFail, map[string]any{"drb": fv(a.DRB), "rb": fv(a.RB)}}
}

func gateDiffSign(a *alert.Normalized, cfg Config) *failure {
	if !cfg.RequirePositiveDiff {
		return nil
	}
	if a.IsDiffPos != nil {
		switch *a.IsDiffPos {
		case "t", "1", "true":
			return nil
		}
	}
	return &failure{ReasonIsDiffPosFail, map[string]any{"isdiffpos": sv(a.IsDiffPos)}}
}

func gateSSOVeto(a *alert.Normalized, cfg Config) *failure {
	if a.SSDistNr == nil || *a.SSDistNr == alert.SentinelNoInfo {
		return nil
	}
	if *a.SSDistNr < cfg.MinSSDistNrArcsec {
		return &failure{ReasonSSOMatch, map[string]any{"ssdistnr": *a.SSDistNr}}
	}
	return nil
}

func gatePS1Distance(a *alert.Normalized, cfg Config) *failure {
	if a.DistPSNR1 == nil || *a.DistPSNR1 == alert.SentinelNoInfo {
		return nil
	}
	if *a.DistPSNR1 < cfg.MinDistPSNR1Arcsec {
		return &failure{ReasonPS1TooClose, map[string]any{"distpsnr1": *a.DistPSNR1}}
	}
	return nil
}

func gatePS1Brightness(a *alert.Normalized, cfg Config) *failure {
	if a.SRMag1 == nil || *a.SRMag1 == alert.SentinelNoInfo {
		return nil
	}
	if *a.SRMag1 < cfg.MinPS1Mag {
		return &failure{ReasonPS1TooBright, map[string]any{"srmag1": *a.SRMag1}}
	}
	return nil
}

func gateCrowding(a *alert.Normalized, cfg Config) *failure {
	if a.NMtchPS != nil && *a.NMtchPS > cfg.MaxNMtchPS {
		return &failure{ReasonCrowdedField, map[string]any{"nmtchps": *a.NMtchPS}}
	}
	return nil
}

func gateNovelty(a *alert.Normalized, cfg Config) *failure {
	if a.NDetHist != nil && *a.NDetHist > cfg.MaxNDetHist {
		return &failure{ReasonTooManyDetections, map[string]any{"ndethist": *a.NDetHist}}
	}
	return nil
}

func gateNonDetPresent(a *alert.Normalized, cfg Config) *failure {
	if a.LastNonDetJD == nil || a.LastNonDetLim == nil || a.DeltaMagFromNonDet == nil {
		return &failure{ReasonNoRecentNonDet, map[string]any{"last_nondet_jd": fv(a.LastNonDetJD)}}
	}
	return nil
}

func gateNonDetOrdering(a *alert.Normalized, cfg Config) *failure {
	if a.LastNonDetJD == nil {
		return nil
	}
	if days := a.JD - *a.LastNonDetJD; days < 0 {
		return &failure{ReasonNonDetInFuture, map[string]any{"days": days}}
	}
	return nil
}

func gateNonDetWindow(a *alert.Normalized, cfg Config) *failure {
	if a.LastNonDetJD == nil {
		return nil
	}
	if days := a.JD - *a.LastNonDetJD; days > cfg.MaxDaysSinceNonDet {
		return &failure{ReasonNonDetTooOld, map[string]any{"days": days}}
	}
	return nil
}

func gateMagJump(a *alert.Normalized, cfg Config) *failure {
	if a.DeltaMagFromNonDet == nil {
		return nil
	}
	if *a.DeltaMagFromNonDet < cfg.MinDeltaMagFromNonDet {
		return &failure{ReasonDeltaMagSmall, map[string]any{"delta_mag": *a.DeltaMagFromNonDet}}
	}
	return nil
}

func passMetrics(a *alert.Normalized) map[string]any {
	return map[string]any{
		"object_id":             a.ObjectID,
		"candid":                a.Candid,
		"topic":                 a.Topic,
		"jd":                    a.JD,
		"mag":                   a.Mag,
		"limmag":                a.LimMag,
		"delta_mag_from_nondet": fv(a.DeltaMagFromNonDet),
		"days_since_nondet":     a.JD - *a.LastNonDetJD,
		"drb":                   fv(a.DRB),
		"rb":                    fv(a.RB),
		"distpsnr1":             fv(a.DistPSNR1),
		"srmag1":                fv(a.SRMag1),
		"nmtchps":               iv(a.NMtchPS),
		"ndethist":              iv(a.NDetHist),
	}
}

func fv(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func iv(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func sv(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
