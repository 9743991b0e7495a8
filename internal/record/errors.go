package record

// ErrorCode classifies a degraded or failed stage of a run. Codes end up in
// diagnostics.reasons and in the run log.
type ErrorCode string

const (
	// -- Navigation --
	ErrCodeObservationTimeout    ErrorCode = "OBSERVATION_TIMEOUT"
	ErrCodeClassificationFailure ErrorCode = "CLASSIFICATION_FAILURE"
	ErrCodeActionUnavailable     ErrorCode = "ACTION_UNAVAILABLE"
	ErrCodeNavigationExhausted   ErrorCode = "NAVIGATION_EXHAUSTED"
	ErrCodeActionExecutionFailed ErrorCode = "ACTION_EXECUTION_FAILED"

	// -- Extraction --
	ErrCodeRegionLocateFailure ErrorCode = "REGION_LOCATE_FAILURE"
	ErrCodeRegionTextEmpty     ErrorCode = "REGION_TEXT_EMPTY"
	ErrCodeTextParseFailure    ErrorCode = "TEXT_PARSE_FAILURE"
	ErrCodeAllExtractionFailed ErrorCode = "ALL_EXTRACTION_FAILED"

	// ErrCodeCancelled marks a run stopped by its context.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)
