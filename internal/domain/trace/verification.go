package trace

type Indicator string

const (
	IndicatorBlockchainVerified  Indicator = "blockchain_verified"
	IndicatorSensorDataVerified  Indicator = "sensor_data_verified"
	IndicatorQualityChecksPassed Indicator = "quality_checks_passed"
	IndicatorChainComplete       Indicator = "chain_complete"
)

// AuthenticityThreshold is inclusive: a score of exactly 0.8 is authentic.
const AuthenticityThreshold = 0.8

// Indicator weights in tenths, so that sums stay exact.
var indicatorWeights = []struct {
	indicator      Indicator
	tenths         int
	issue          string
	recommendation string
}{
	{
		indicator:      IndicatorBlockchainVerified,
		tenths:         4,
		issue:          "one or more events are missing an integrity hash",
		recommendation: "re-anchor the chain so every event carries an integrity hash",
	},
	{
		indicator:      IndicatorSensorDataVerified,
		tenths:         3,
		issue:          "sensor data is missing or below the reading quality threshold",
		recommendation: "ingest telemetry from calibrated sensors with reading quality above 0.8",
	},
	{
		indicator:      IndicatorQualityChecksPassed,
		tenths:         2,
		issue:          "quality inspections are missing or at least one failed",
		recommendation: "schedule a quality inspection and resolve failed findings",
	},
	{
		indicator:      IndicatorChainComplete,
		tenths:         1,
		issue:          "traceability chain is incomplete",
		recommendation: "record the missing lifecycle events: created, harvest and both sales",
	},
}

type VerificationInput struct {
	Events      []Event
	Telemetry   []Telemetry
	Inspections []Inspection
	IsComplete  bool
}

type VerificationDetails struct {
	BlockchainVerified  bool `json:"blockchain_verified"`
	SensorDataVerified  bool `json:"sensor_data_verified"`
	QualityChecksPassed bool `json:"quality_checks_passed"`
	ChainComplete       bool `json:"chain_complete"`
}

func (d VerificationDetails) Value(indicator Indicator) bool {
	switch indicator {
	case IndicatorBlockchainVerified:
		return d.BlockchainVerified
	case IndicatorSensorDataVerified:
		return d.SensorDataVerified
	case IndicatorQualityChecksPassed:
		return d.QualityChecksPassed
	case IndicatorChainComplete:
		return d.ChainComplete
	default:
		return false
	}
}

type VerificationResult struct {
	Authentic       bool                `json:"authentic"`
	Score           float64             `json:"score"`
	Details         VerificationDetails `json:"details"`
	Issues          []string            `json:"issues"`
	Recommendations []string            `json:"recommendations"`
}

func EvaluateIndicators(in VerificationInput) VerificationDetails {
	return VerificationDetails{
		BlockchainVerified:  allHashesMatch(in.Events),
		SensorDataVerified:  sensorDataReliable(in.Telemetry),
		QualityChecksPassed: inspectionsPassed(in.Inspections),
		ChainComplete:       in.IsComplete,
	}
}

func Verify(in VerificationInput) VerificationResult {
	return ScoreVerification(EvaluateIndicators(in))
}

// ScoreVerification turns indicator values into a verdict with one fixed
// issue and recommendation per failed indicator.
func ScoreVerification(details VerificationDetails) VerificationResult {
	result := VerificationResult{
		Details:         details,
		Issues:          make([]string, 0),
		Recommendations: make([]string, 0),
	}

	tenths := 0
	for _, weight := range indicatorWeights {
		if details.Value(weight.indicator) {
			tenths += weight.tenths
			continue
		}
		result.Issues = append(result.Issues, weight.issue)
		result.Recommendations = append(result.Recommendations, weight.recommendation)
	}

	result.Score = float64(tenths) / 10
	result.Authentic = IsAuthentic(result.Score)
	return result
}

func IsAuthentic(score float64) bool {
	return score >= AuthenticityThreshold
}

func IndicatorWeight(indicator Indicator) float64 {
	for _, weight := range indicatorWeights {
		if weight.indicator == indicator {
			return float64(weight.tenths) / 10
		}
	}
	return 0
}

// allHashesMatch fails on an empty hash or one that differs from the
// event's recomputed hash.
func allHashesMatch(events []Event) bool {
	for _, event := range events {
		if !HashMatches(event) {
			return false
		}
	}
	return true
}

func sensorDataReliable(records []Telemetry) bool {
	if len(records) == 0 {
		return false
	}
	for _, record := range records {
		if record.ReadingQuality <= MinReadingQuality {
			return false
		}
	}
	return true
}

func inspectionsPassed(inspections []Inspection) bool {
	if len(inspections) == 0 {
		return false
	}
	for _, inspection := range inspections {
		if !inspection.Passed {
			return false
		}
	}
	return true
}
