package siwe

// Structural codes raised by the parser and the size gate.
const (
	CodeParseError      Code = "PARSE_ERROR"
	CodeMessageTooLarge Code = "MESSAGE_TOO_LARGE"
	CodeInvalidHeader   Code = "INVALID_HEADER"
	CodeMissingAddress  Code = "MISSING_ADDRESS"
	CodeMissingURI      Code = "MISSING_URI"
	CodeMissingVersion  Code = "MISSING_VERSION"
	CodeMissingChainID  Code = "MISSING_CHAIN_ID"
	CodeMissingNonce    Code = "MISSING_NONCE"
	CodeMissingIssuedAt Code = "MISSING_ISSUED_AT"
	CodeUnexpectedLine  Code = "UNEXPECTED_LINE"
)

// Field level codes.
const (
	CodeMissingDomain            Code = "MISSING_DOMAIN"
	CodeInvalidDomain            Code = "INVALID_DOMAIN"
	CodeDomainSecurityRisk       Code = "DOMAIN_SECURITY_RISK"
	CodeInvalidAddressFormat     Code = "INVALID_ADDRESS_FORMAT"
	CodeAddressNotChecksummed    Code = "ADDRESS_NOT_CHECKSUMMED"
	CodeAddressChecksumMismatch  Code = "ADDRESS_CHECKSUM_MISMATCH"
	CodeInvalidURI               Code = "INVALID_URI"
	CodeInvalidURIScheme         Code = "INVALID_URI_SCHEME"
	CodeInsecureURIScheme        Code = "INSECURE_URI_SCHEME"
	CodeInvalidVersion           Code = "INVALID_VERSION"
	CodeInvalidChainID           Code = "INVALID_CHAIN_ID"
	CodeInvalidNonce             Code = "INVALID_NONCE"
	CodeWeakNonceEntropy         Code = "WEAK_NONCE_ENTROPY"
	CodeSequentialNonce          Code = "SEQUENTIAL_NONCE"
	CodeInvalidIssuedAt          Code = "INVALID_ISSUED_AT"
	CodeIssuedAtDrift            Code = "ISSUED_AT_DRIFT"
	CodeInvalidExpirationTime    Code = "INVALID_EXPIRATION_TIME"
	CodeExpirationBeforeIssued   Code = "EXPIRATION_BEFORE_ISSUED"
	CodeMessageExpired           Code = "MESSAGE_EXPIRED"
	CodeExpirationTooLong        Code = "EXPIRATION_TOO_LONG"
	CodeExpirationTooShort       Code = "EXPIRATION_TOO_SHORT"
	CodeInvalidNotBefore         Code = "INVALID_NOT_BEFORE"
	CodeNotBeforeAfterExpiration Code = "NOT_BEFORE_AFTER_EXPIRATION"
	CodeInvalidRequestID         Code = "INVALID_REQUEST_ID"
	CodeStatementLineBreak       Code = "STATEMENT_LINE_BREAK"
	CodeStatementTooLong         Code = "STATEMENT_TOO_LONG"
)

// Security posture codes.
const (
	CodeReplayNoNonce            Code = "REPLAY_NO_NONCE"
	CodeReplayLowEntropyNonce    Code = "REPLAY_LOW_ENTROPY_NONCE"
	CodeNoExpiration             Code = "NO_EXPIRATION"
	CodeDomainBindingMissing     Code = "DOMAIN_BINDING_MISSING"
	CodeSuspiciousDomain         Code = "SUSPICIOUS_DOMAIN"
	CodeIDNHomographRisk         Code = "IDN_HOMOGRAPH_RISK"
	CodeURIDomainMismatch        Code = "URI_DOMAIN_MISMATCH"
	CodePortMismatch             Code = "PORT_MISMATCH"
	CodeDevelopmentDomain        Code = "DEVELOPMENT_DOMAIN"
	CodeIssuedAtFuture           Code = "ISSUED_AT_FUTURE"
	CodeIssuedAtStale            Code = "ISSUED_AT_STALE"
	CodeLifetimeTooLong          Code = "LIFETIME_TOO_LONG"
	CodeLifetimeTooShort         Code = "LIFETIME_TOO_SHORT"
	CodeNotBeforeFuture          Code = "NOT_BEFORE_FUTURE"
	CodeNonceTooShort            Code = "NONCE_TOO_SHORT"
	CodeNonceWeakPattern         Code = "NONCE_WEAK_PATTERN"
	CodeNonceLowComplexity       Code = "NONCE_LOW_COMPLEXITY"
	CodeResourceInvalidURI       Code = "RESOURCE_INVALID_URI"
	CodeResourceInsecureScheme   Code = "RESOURCE_INSECURE_SCHEME"
	CodeResourceSuspiciousDomain Code = "RESOURCE_SUSPICIOUS_DOMAIN"
	CodeResourceOverlyBroad      Code = "RESOURCE_OVERLY_BROAD"
	CodeTooManyResources         Code = "TOO_MANY_RESOURCES"
	CodeWeakSecurityPosture      Code = "WEAK_SECURITY_POSTURE"
	CodeDevTestIndicators        Code = "DEV_TEST_INDICATORS"
)

// Line break and whitespace codes.
const (
	CodeBlankLineBeforeAddress       Code = "BLANK_LINE_BEFORE_ADDRESS"
	CodeStatementSpacing             Code = "STATEMENT_SPACING"
	CodeBlankLinesBeforeFields       Code = "BLANK_LINES_BEFORE_FIELDS"
	CodeBlankLineBetweenFields       Code = "BLANK_LINE_BETWEEN_FIELDS"
	CodeBlankLineBeforeOptionalField Code = "BLANK_LINE_BEFORE_OPTIONAL_FIELD"
	CodeTrailingWhitespace           Code = "TRAILING_WHITESPACE"
	CodeExcessiveBlankLines          Code = "EXCESSIVE_BLANK_LINES"
)

// MissingCode maps a required field to the code raised when it is absent.
func MissingCode(field Field) Code {
	switch field {
	case FieldDomain:
		return CodeMissingDomain
	case FieldAddress:
		return CodeMissingAddress
	case FieldURI:
		return CodeMissingURI
	case FieldVersion:
		return CodeMissingVersion
	case FieldChainID:
		return CodeMissingChainID
	case FieldNonce:
		return CodeMissingNonce
	case FieldIssuedAt:
		return CodeMissingIssuedAt
	}
	return ""
}
