package sniper

import (
	"transfer-sniper/internal/market"
)

// Failure is the class of an unsuccessful search.
type Failure int

const (
	// FailureTransient is retried until the consecutive-failure budget runs out.
	FailureTransient Failure = iota
	// FailureCaptcha covers challenge and rate-limit responses.
	FailureCaptcha
	// FailureMaintenance covers server maintenance windows.
	FailureMaintenance
)

func (f Failure) String() string {
	switch f {
	case FailureCaptcha:
		return "captcha"
	case FailureMaintenance:
		return "maintenance"
	default:
		return "transient"
	}
}

// Fatal reports whether the class stops the run on first sight.
func (f Failure) Fatal() bool {
	return f != FailureTransient
}

// Classify inspects a failed search response.
func Classify(resp market.SearchResponse) Failure {
	if resp.StatusText == market.CaptchaRequired || resp.ErrorCode == market.CaptchaRequired {
		return FailureCaptcha
	}
	switch resp.Status {
	case 521, 429:
		return FailureCaptcha
	case 512, 503:
		return FailureMaintenance
	}
	return FailureTransient
}
