package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidConfiguration ErrorCode = 100
	ErrCodeInvalidParameter     ErrorCode = 101
	ErrCodeEmptyAssetList       ErrorCode = 102
	ErrCodeInvalidDateRange     ErrorCode = 103
	ErrCodeInvalidCadence       ErrorCode = 104
	ErrCodeUnknownStrategy      ErrorCode = 105
	ErrCodeInvalidFrequency     ErrorCode = 106

	// Data errors (200-299)
	ErrCodeDataNotFound       ErrorCode = 200
	ErrCodeMissingCandle      ErrorCode = 201
	ErrCodeInvalidPrice       ErrorCode = 202
	ErrCodeMisalignedSeries   ErrorCode = 203
	ErrCodeInsufficientWarmUp ErrorCode = 204
	ErrCodeQueryFailed        ErrorCode = 205

	// Strategy errors (300-399)
	ErrCodeStrategyConfig     ErrorCode = 300
	ErrCodeEmptyExpression    ErrorCode = 301
	ErrCodeStrategyNotDefined ErrorCode = 302

	// Portfolio errors (400-499)
	ErrCodeInvalidTrade     ErrorCode = 400
	ErrCodePositionNotFound ErrorCode = 401
	ErrCodeNegativeCash     ErrorCode = 402

	// Engine errors (500-599)
	ErrCodeRunFailed   ErrorCode = 500
	ErrCodeRunTimeout  ErrorCode = 501
	ErrCodeRunCanceled ErrorCode = 502
	ErrCodeEmptyGrid   ErrorCode = 503

	// Results errors (600-699)
	ErrCodeStoreUnavailable ErrorCode = 600
	ErrCodeExportFailed     ErrorCode = 601
)
