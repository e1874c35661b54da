package filter

import (
	"testing"

	"github.com/Tricejer41/FirstLight/internal/alert"
)

func testConfig() Config {
	return Config{
		DRBMin:                0.8,
		RBFallbackMin:         0.7,
		RequirePositiveDiff:   true,
		MinSSDistNrArcsec:     20,
		MinDistPSNR1Arcsec:    3,
		MinPS1Mag:             17,
		MaxNMtchPS:            5,
		MaxNDetHist:           3,
		MaxDaysSinceNonDet:    3,
		MinDeltaMagFromNonDet: 1.5,
	}
}

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }
func sp(v string) *string   { return &v }

// passingAlert satisfies every gate against testConfig.
func passingAlert() *alert.Normalized {
	return &alert.Normalized{
		ObjectID:           "ZTF21abc",
		Candid:             "100",
		Topic:              "t",
		JD:                 2459000.6,
		Mag:                18.0,
		LimMag:             20.5,
		DRB:                fp(0.9),
		IsDiffPos:          sp("t"),
		DistPSNR1:          fp(-999),
		SRMag1:             fp(-999),
		NMtchPS:            ip(2),
		NDetHist:           ip(1),
		LastNonDetJD:       fp(2459000.1),
		LastNonDetLim:      fp(20.0),
		DeltaMagFromNonDet: fp(2.0),
	}
}

func TestEvaluateFullPass(t *testing.T) {
	res := Evaluate(passingAlert(), testConfig())
	if !res.Accepted {
		t.Fatalf("want accepted, got reason %q", res.Reason)
	}
	if res.Reason != ReasonPass {
		t.Fatalf("reason = %q", res.Reason)
	}

	days, ok := res.Metrics["days_since_nondet"].(float64)
	if !ok {
		t.Fatalf("metrics missing days_since_nondet: %#v", res.Metrics)
	}
	if days < 0.49 || days > 0.51 {
		t.Fatalf("days_since_nondet = %v, want ~0.5", days)
	}
}

func TestGateOrderIsPinned(t *testing.T) {
	want := []string{
		"real_bogus",
		"diff_sign",
		"sso_veto",
		"ps1_distance",
		"ps1_brightness",
		"crowding",
		"novelty",
		"nondet_present",
		"nondet_ordering",
		"nondet_window",
		"mag_jump",
	}
	if len(Gates) != len(want) {
		t.Fatalf("gate count = %d, want %d", len(Gates), len(want))
	}
	for i, g := range Gates {
		if g.Name != want[i] {
			t.Fatalf("gate %d = %q, want %q; reordering gates changes reason codes and must be explicit", i, g.Name, want[i])
		}
	}
}

func TestEvaluateFailureReasons(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(a *alert.Normalized)
		reason string
	}{
		{"low drb", func(a *alert.Normalized) { a.DRB = fp(0.5) }, ReasonRBFail},
		{"no scores at all", func(a *alert.Normalized) { a.DRB = nil; a.RB = nil }, ReasonRBFail},
		{"low rb fallback", func(a *alert.Normalized) { a.DRB = nil; a.RB = fp(0.5) }, ReasonRBFail},
		{"negative residual", func(a *alert.Normalized) { a.IsDiffPos = sp("f") }, ReasonIsDiffPosFail},
		{"missing diff sign", func(a *alert.Normalized) { a.IsDiffPos = nil }, ReasonIsDiffPosFail},
		{"solar system match", func(a *alert.Normalized) { a.SSDistNr = fp(5) }, ReasonSSOMatch},
		{"catalog source close", func(a *alert.Normalized) { a.DistPSNR1 = fp(1.0) }, ReasonPS1TooClose},
		{"catalog source bright", func(a *alert.Normalized) { a.SRMag1 = fp(12.0) }, ReasonPS1TooBright},
		{"crowded field", func(a *alert.Normalized) { a.NMtchPS = ip(9) }, ReasonCrowdedField},
		{"long history", func(a *alert.Normalized) { a.NDetHist = ip(10) }, ReasonTooManyDetections},
		{"no nondet", func(a *alert.Normalized) {
			a.LastNonDetJD = nil
			a.LastNonDetLim = nil
			a.DeltaMagFromNonDet = nil
		}, ReasonNoRecentNonDet},
		{"nondet in future", func(a *alert.Normalized) { a.LastNonDetJD = fp(2459001.0) }, ReasonNonDetInFuture},
		{"nondet too old", func(a *alert.Normalized) { a.LastNonDetJD = fp(2458990.0) }, ReasonNonDetTooOld},
		{"small jump", func(a *alert.Normalized) { a.DeltaMagFromNonDet = fp(0.3) }, ReasonDeltaMagSmall},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := passingAlert()
			tc.mutate(a)
			res := Evaluate(a, testConfig())
			if res.Accepted {
				t.Fatal("want rejection")
			}
			if res.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", res.Reason, tc.reason)
			}
		})
	}
}

func TestFirstFailingGateWins(t *testing.T) {
	a := passingAlert()
	a.DRB = fp(0.1)        // fails gate 1
	a.IsDiffPos = sp("f")  // would fail gate 2
	a.SSDistNr = fp(1.0)   // would fail gate 3

	res := Evaluate(a, testConfig())
	if res.Reason != ReasonRBFail {
		t.Fatalf("reason = %q, first failing gate must win", res.Reason)
	}
}

func TestSentinelNeverTriggersVetoes(t *testing.T) {
	a := passingAlert()
	a.SSDistNr = fp(-999)
	a.DistPSNR1 = fp(-999)
	a.SRMag1 = fp(-999)

	res := Evaluate(a, testConfig())
	if !res.Accepted {
		t.Fatalf("-999 means no information, not a distance; got reason %q", res.Reason)
	}
}

func TestInclusiveThresholds(t *testing.T) {
	cfg := testConfig()

	a := passingAlert()
	a.DRB = fp(cfg.DRBMin) // exactly at threshold
	a.NMtchPS = ip(cfg.MaxNMtchPS)
	a.NDetHist = ip(cfg.MaxNDetHist)
	a.DeltaMagFromNonDet = fp(cfg.MinDeltaMagFromNonDet)
	a.LastNonDetJD = fp(a.JD - cfg.MaxDaysSinceNonDet)

	res := Evaluate(a, cfg)
	if !res.Accepted {
		t.Fatalf("boundary values are inclusive; got reason %q", res.Reason)
	}
}

func TestRBFallbackOnlyWithoutDRB(t *testing.T) {
	a := passingAlert()
	a.DRB = fp(0.5) // below drb_min
	a.RB = fp(0.99) // fallback must not rescue a present-but-low drb

	res := Evaluate(a, testConfig())
	if res.Reason != ReasonRBFail {
		t.Fatalf("reason = %q, want rb_fail", res.Reason)
	}

	a = passingAlert()
	a.DRB = nil
	a.RB = fp(0.9)
	res = Evaluate(a, testConfig())
	if !res.Accepted {
		t.Fatalf("fallback score should pass when drb absent, got %q", res.Reason)
	}
}
