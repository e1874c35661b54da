package alert

// SentinelNoInfo is the survey's placeholder for "not computed" on distance and
// magnitude fields. It is carried through normalization untouched; interpreting
// it is the filter's job.
const SentinelNoInfo = -999

// Normalized is the canonical, immutable view of a single alert observation.
// Optional fields are nil when the source record omitted them.
type Normalized struct {
	ObjectID string
	Candid   string
	Topic    string

	RA  float64
	Dec float64
	JD  float64
	Fid int

	Mag    float64
	MagErr float64
	LimMag float64

	// Real/bogus scores from two independent estimators.
	DRB *float64
	RB  *float64

	// Sign of the image-subtraction residual ("t"/"1" means positive).
	IsDiffPos *string

	// Cross-match context. -999 means "no information", not a distance.
	SSDistNr  *float64
	DistPSNR1 *float64
	SGScore1  *float64
	SRMag1    *float64

	NMtchPS  *int
	NDetHist *int

	// Most recent non-detection strictly before JD, if any.
	LastNonDetJD  *float64
	LastNonDetLim *float64

	// LastNonDetLim - Mag; set iff both operands are present.
	DeltaMagFromNonDet *float64

	// Raw is the original decoded record, retained for the audit log.
	Raw map[string]any
}
