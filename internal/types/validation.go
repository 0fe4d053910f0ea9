package types

// Classification is the final disposition of a sample after validation.
// Every sample entering the pipeline resolves to exactly one classification;
// samples are never silently dropped.
type Classification int

const (
	// ClassAccepted means the sample passed validation and proceeds
	// through the pipeline.
	ClassAccepted Classification = iota

	// ClassRejected means the sample failed a value rule and is counted
	// and discarded.
	ClassRejected

	// ClassQuarantined means the sample did not match a registered schema
	// and is retained for later reclassification.
	ClassQuarantined
)

// String returns a human-readable representation of the classification.
func (c Classification) String() string {
	switch c {
	case ClassAccepted:
		return "accepted"
	case ClassRejected:
		return "rejected"
	case ClassQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

// ValidationResult tags a sample with its classification.
type ValidationResult struct {
	Sample Sample
	Class  Classification

	// Reason is set for Rejected and Quarantined samples.
	Reason string

	// Type is the declared value type from the metric schema.
	// Only meaningful for accepted samples.
	Type ValueType

	// Reset is true when a counter decrease was interpreted as a reset.
	// The sample is still accepted.
	Reset bool
}

// Accepted returns an accepting result.
func Accepted(s Sample, t ValueType) ValidationResult {
	return ValidationResult{Sample: s, Class: ClassAccepted, Type: t}
}

// AcceptedReset returns an accepting result flagged as a counter reset.
func AcceptedReset(s Sample, t ValueType) ValidationResult {
	return ValidationResult{Sample: s, Class: ClassAccepted, Type: t, Reset: true}
}

// Rejected returns a rejecting result with a reason.
func Rejected(s Sample, reason string) ValidationResult {
	return ValidationResult{Sample: s, Class: ClassRejected, Reason: reason}
}

// Quarantined returns a quarantining result with a reason.
func Quarantined(s Sample, reason string) ValidationResult {
	return ValidationResult{Sample: s, Class: ClassQuarantined, Reason: reason}
}

// IngestResult summarizes the outcome of one received batch.
type IngestResult struct {
	// Received is the number of wire records in the batch.
	Received int

	// Decoded is the number of records successfully decoded into samples.
	Decoded int

	// Malformed is the number of records dropped due to decode failure.
	Malformed int

	// Reasons counts malformed records by reason code.
	Reasons map[string]int
}

// AddReason records one malformed record with the given reason code.
func (r *IngestResult) AddReason(code string) {
	if r.Reasons == nil {
		r.Reasons = make(map[string]int)
	}
	r.Reasons[code]++
	r.Malformed++
}
