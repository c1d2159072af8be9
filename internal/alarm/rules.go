package alarm

// RuleKind distinguishes the two shapes of alarm rule the engine evaluates.
type RuleKind string

const (
	KindMetricThreshold RuleKind = "metric_threshold"
	KindQCFail          RuleKind = "qc_fail"
)

// Rule is one seeded alarm rule. Family is empty for rules that apply to
// every family (qc_fail); Low/High are meaningful only for
// KindMetricThreshold and are mutable via SetThresholds.
type Rule struct {
	ID          string
	Family      string
	Kind        RuleKind
	Metric      string
	Low         float64
	High        float64
	Severity    string
	Description string
}

// DefaultRules returns the seeded rule set: two ctrl-family threshold rules
// plus one connectivity rule that applies to any family.
func DefaultRules(cfg Config) []Rule {
	return []Rule{
		{
			ID:          "ctrl_ph_out_of_range",
			Family:      "ctrl",
			Kind:        KindMetricThreshold,
			Metric:      "ph",
			Low:         cfg.PH.Low,
			High:        cfg.PH.High,
			Severity:    "warning",
			Description: "pH outside configured range",
		},
		{
			ID:          "ctrl_temp_out_of_range",
			Family:      "ctrl",
			Kind:        KindMetricThreshold,
			Metric:      "temp1_C",
			Low:         cfg.Temp.Low,
			High:        cfg.Temp.High,
			Severity:    "warning",
			Description: "temperature outside configured range",
		},
		{
			ID:          "qc_fail",
			Kind:        KindQCFail,
			Severity:    "critical",
			Description: "device offline beyond the connectivity threshold",
		},
	}
}

func (r Rule) appliesTo(family string) bool {
	return r.Family == "" || r.Family == family
}
