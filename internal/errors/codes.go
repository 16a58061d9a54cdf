package errors

// ErrorCode is a stable, machine-readable rejection identifier. These strings
// are part of the external contract (spec §6) and must never be reformatted
// or renamed once shipped.
type ErrorCode string

// Mandate verification errors (C3 — AP2 chain).
const (
	ErrCodeInvalidPayload               ErrorCode = "invalid_payload"
	ErrCodeMandateExpired               ErrorCode = "mandate_expired"
	ErrCodeDomainNotAuthorized          ErrorCode = "domain_not_authorized"
	ErrCodeSignatureInvalid             ErrorCode = "signature_invalid"
	ErrCodeSignatureMalformed           ErrorCode = "signature_malformed"
	ErrCodeReplayDetected               ErrorCode = "replay_detected"
	ErrCodeSubjectMismatch              ErrorCode = "subject_mismatch"
	ErrCodePaymentMissingMerchantDomain ErrorCode = "payment_missing_merchant_domain"
	ErrCodeMerchantDomainMismatch       ErrorCode = "merchant_domain_mismatch"
	ErrCodePaymentExceedsCartTotal      ErrorCode = "payment_exceeds_cart_total"
	ErrCodePaymentAgentPresenceRequired ErrorCode = "payment_agent_presence_required"
	ErrCodePaymentInvalidModality       ErrorCode = "payment_invalid_modality"
	ErrCodeIntentInvalidType            ErrorCode = "intent_invalid_type"
	ErrCodeCartInvalidType              ErrorCode = "cart_invalid_type"
	ErrCodePaymentInvalidType           ErrorCode = "payment_invalid_type"
)

// x402 challenge/payload errors.
const (
	ErrCodeX402ChallengeExpired   ErrorCode = "x402_challenge_expired"
	ErrCodeX402NonceMismatch      ErrorCode = "x402_nonce_mismatch"
	ErrCodeX402AmountMismatch     ErrorCode = "x402_amount_mismatch"
	ErrCodeX402PaymentIDMismatch  ErrorCode = "x402_payment_id_mismatch"
	ErrCodeX402SignatureInvalid   ErrorCode = "x402_signature_invalid"
	ErrCodeX402VersionUnsupported ErrorCode = "x402_version_unsupported"
)

// Policy evaluation errors (C4).
const (
	ErrCodePolicyNotFound           ErrorCode = "policy_not_found"
	ErrCodeScopeNotAllowed          ErrorCode = "scope_not_allowed"
	ErrCodePerTransactionLimit      ErrorCode = "per_transaction_limit"
	ErrCodeTotalLimitExceeded       ErrorCode = "total_limit_exceeded"
	ErrCodeTimeWindowLimit          ErrorCode = "time_window_limit"
	ErrCodeMerchantDenied           ErrorCode = "merchant_denied"
	ErrCodeMerchantNotAllowlisted   ErrorCode = "merchant_not_allowlisted"
	ErrCodeMerchantCapExceeded      ErrorCode = "merchant_cap_exceeded"
	ErrCodeGroupMerchantBlocked     ErrorCode = "group_merchant_blocked"
	ErrCodeGroupPerTransactionLimit ErrorCode = "group_per_transaction_limit"
	ErrCodeGroupDailyLimit          ErrorCode = "group_daily_limit"
	ErrCodeGroupMonthlyLimit        ErrorCode = "group_monthly_limit"
	ErrCodeGroupTotalLimit          ErrorCode = "group_total_limit"
	ErrCodeGroupPolicyError         ErrorCode = "group_policy_error"
)

// Compliance gate errors (C5).
const (
	ErrCodeComplianceBlocked ErrorCode = "compliance_blocked"
	ErrCodeSanctionsScreening ErrorCode = "sanctions_screening"
	ErrCodeKYCVerification    ErrorCode = "kyc_verification"
)

// Velocity errors (C6).
const (
	ErrCodeVelocityLimitMinute ErrorCode = "velocity_limit_minute"
	ErrCodeVelocityLimitHour   ErrorCode = "velocity_limit_hour"
	ErrCodeVelocityLimitDay    ErrorCode = "velocity_limit_day"
)

// Idempotency and settlement concurrency errors (C8/C9/C10).
const (
	ErrCodeIdempotencyConflict   ErrorCode = "idempotency_conflict"
	ErrCodeIdempotencyInProgress ErrorCode = "idempotency_in_progress"
	ErrCodeWalletBusy            ErrorCode = "wallet_busy"
	ErrCodeSettlementTimeout     ErrorCode = "settlement_timeout"
)

// Approval workflow errors (C7).
const (
	ErrCodeApprovalNotFound    ErrorCode = "approval_not_found"
	ErrCodeApprovalExpired     ErrorCode = "approval_expired"
	ErrCodeApprovalNotPending  ErrorCode = "approval_not_pending"
	ErrCodeApproverNotListed   ErrorCode = "approver_not_listed"
)

// Rail / external-service errors.
const (
	ErrCodeRPCError          ErrorCode = "rpc_error"
	ErrCodeRPCTimeout        ErrorCode = "rpc_timeout"
	ErrCodeNonceStale        ErrorCode = "nonce_stale"
	ErrCodeNetworkError      ErrorCode = "network_error"
	ErrCodeRailUnavailable   ErrorCode = "rail_unavailable"
	ErrCodeFundingRouting    ErrorCode = "funding_routing_failed"
)

// Validation / resource / internal errors.
const (
	ErrCodeMissingField    ErrorCode = "missing_field"
	ErrCodeInvalidField    ErrorCode = "invalid_field"
	ErrCodeInvalidAmount   ErrorCode = "invalid_amount"
	ErrCodeResourceNotFound ErrorCode = "resource_not_found"
	ErrCodeInternalError   ErrorCode = "internal_error"
	ErrCodeDatabaseError   ErrorCode = "database_error"
	ErrCodeConfigError     ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a transient condition
// a caller may safely retry. Validation, authorization, and policy rejections
// are never retryable — retrying them cannot change the outcome.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeRPCError,
		ErrCodeRPCTimeout,
		ErrCodeNonceStale,
		ErrCodeNetworkError,
		ErrCodeRailUnavailable,
		ErrCodeIdempotencyInProgress,
		ErrCodeWalletBusy:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error code to the HTTP status the intake surface
// (§6) returns for it.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidAmount,
		ErrCodeInvalidPayload,
		ErrCodeIntentInvalidType,
		ErrCodeCartInvalidType,
		ErrCodePaymentInvalidType,
		ErrCodeSubjectMismatch,
		ErrCodePaymentMissingMerchantDomain,
		ErrCodeMerchantDomainMismatch,
		ErrCodePaymentExceedsCartTotal,
		ErrCodePaymentAgentPresenceRequired,
		ErrCodePaymentInvalidModality,
		ErrCodeX402NonceMismatch,
		ErrCodeX402AmountMismatch,
		ErrCodeX402PaymentIDMismatch,
		ErrCodeX402VersionUnsupported:
		return 400

	case ErrCodeSignatureInvalid,
		ErrCodeSignatureMalformed,
		ErrCodeX402SignatureInvalid,
		ErrCodeDomainNotAuthorized,
		ErrCodeApproverNotListed:
		return 401

	case ErrCodeComplianceBlocked,
		ErrCodeSanctionsScreening,
		ErrCodeKYCVerification,
		ErrCodePolicyNotFound,
		ErrCodeScopeNotAllowed,
		ErrCodePerTransactionLimit,
		ErrCodeTotalLimitExceeded,
		ErrCodeTimeWindowLimit,
		ErrCodeMerchantDenied,
		ErrCodeMerchantNotAllowlisted,
		ErrCodeMerchantCapExceeded,
		ErrCodeGroupMerchantBlocked,
		ErrCodeGroupPerTransactionLimit,
		ErrCodeGroupDailyLimit,
		ErrCodeGroupMonthlyLimit,
		ErrCodeGroupTotalLimit,
		ErrCodeGroupPolicyError,
		ErrCodeVelocityLimitMinute,
		ErrCodeVelocityLimitHour,
		ErrCodeVelocityLimitDay,
		ErrCodeMandateExpired,
		ErrCodeX402ChallengeExpired:
		return 403

	case ErrCodeResourceNotFound, ErrCodeApprovalNotFound:
		return 404

	case ErrCodeReplayDetected,
		ErrCodeIdempotencyConflict,
		ErrCodeWalletBusy,
		ErrCodeApprovalNotPending,
		ErrCodeApprovalExpired:
		return 409

	case ErrCodeIdempotencyInProgress:
		return 425 // Too Early

	case ErrCodeRPCError, ErrCodeRPCTimeout, ErrCodeNonceStale,
		ErrCodeNetworkError, ErrCodeRailUnavailable, ErrCodeFundingRouting:
		return 502

	case ErrCodeSettlementTimeout:
		return 504

	default:
		return 500
	}
}
