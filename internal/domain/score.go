package domain

// FraudThreshold is the probability at or above which a request is flagged.
const FraudThreshold = 0.5

type ScoreResult struct {
	FraudFlag        bool    `json:"fraud_flag"`
	FraudProbability float64 `json:"fraud_probability"`
}

// NewScoreResult derives the flag from the probability; the flag cannot be set
// independently.
func NewScoreResult(probability float64) ScoreResult {
	return ScoreResult{
		FraudFlag:        probability >= FraudThreshold,
		FraudProbability: probability,
	}
}
