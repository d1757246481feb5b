package domain

// Canonical feature keys, in the column order the classifier is trained with.
const (
	FieldAge                  = "age"
	FieldGenderCode           = "gender_code"
	FieldLocation             = "location"
	FieldSubscriptionTypeCode = "subscription_type_code"
	FieldTenureMonths         = "tenure_months"
	FieldIncomeBracketCode    = "income_bracket_code"
	FieldEventCreatedAtTS     = "event_created_at_ts"
	FieldTransactionValue     = "transaction_value"
	FieldChannelCode          = "channel_code"
)

// FeatureNames is the row layout every model artifact must be trained on.
var FeatureNames = []string{
	FieldAge,
	FieldGenderCode,
	FieldLocation,
	FieldSubscriptionTypeCode,
	FieldTenureMonths,
	FieldIncomeBracketCode,
	FieldEventCreatedAtTS,
	FieldTransactionValue,
	FieldChannelCode,
}

// NumFeatures is len(FeatureNames).
const NumFeatures = 9

// FeatureVector is one validated scoring request. Values are only produced by
// pkg/validator, so every instance satisfies the field constraints.
type FeatureVector struct {
	Age                  int     `json:"age"`
	GenderCode           int     `json:"gender_code"`
	Location             int     `json:"location"`
	SubscriptionTypeCode int     `json:"subscription_type_code"`
	TenureMonths         int     `json:"tenure_months"`
	IncomeBracketCode    int     `json:"income_bracket_code"`
	EventCreatedAtTS     float64 `json:"event_created_at_ts"`
	TransactionValue     float64 `json:"transaction_value"`
	ChannelCode          int     `json:"channel_code"`
}

// Row returns the model input row in FeatureNames order.
func (fv FeatureVector) Row() []float64 {
	return []float64{
		float64(fv.Age),
		float64(fv.GenderCode),
		float64(fv.Location),
		float64(fv.SubscriptionTypeCode),
		float64(fv.TenureMonths),
		float64(fv.IncomeBracketCode),
		fv.EventCreatedAtTS,
		fv.TransactionValue,
		float64(fv.ChannelCode),
	}
}
