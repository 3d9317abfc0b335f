package usecase

import (
	"context"
	"errors"
	"net"
	"strings"

	"hta-chat/internal/domain"
)

// failurePrefix starts every assistant message that reports a failure.
const failurePrefix = "Lỗi: "

// User-facing failure texts, one per failure class.
const (
	msgConfiguration   = failurePrefix + "API key dịch vụ AI chưa được cấu hình!"
	msgQuotaExceeded   = failurePrefix + "Đã hết quota sử dụng miễn phí. Vui lòng thử lại sau."
	msgInvalidArgument = failurePrefix + "Yêu cầu không hợp lệ. Kiểm tra input."
	msgTimeout         = failurePrefix + "Dịch vụ AI không phản hồi kịp. Vui lòng thử lại."
	msgUnreachable     = failurePrefix + "Không thể kết nối đến dịch vụ AI."
)

// failureKind names the classified outcome of a failed generation call.
type failureKind string

const (
	failureConfiguration   failureKind = "configuration"
	failureQuotaExceeded   failureKind = "quota_exceeded"
	failureInvalidArgument failureKind = "invalid_argument"
	failureTimeout         failureKind = "timeout"
	failureUnclassified    failureKind = "unclassified"
)

// classifyFailure maps a Generation Service error to its failure class
// using structured values only.
func classifyFailure(err error) failureKind {
	if errors.Is(err, domain.ErrMissingCredential) {
		return failureConfiguration
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureTimeout
	}
	var provErr *domain.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Category {
		case domain.FailureQuotaExceeded:
			return failureQuotaExceeded
		case domain.FailureInvalidArgument:
			return failureInvalidArgument
		}
	}
	return failureUnclassified
}

// failureMessage renders err as the assistant message appended to the log.
func failureMessage(err error) domain.Message {
	switch classifyFailure(err) {
	case failureConfiguration:
		return domain.AssistantMessage(msgConfiguration)
	case failureQuotaExceeded:
		return domain.AssistantMessage(msgQuotaExceeded)
	case failureInvalidArgument:
		return domain.AssistantMessage(msgInvalidArgument)
	case failureTimeout:
		return domain.AssistantMessage(msgTimeout)
	}
	return domain.AssistantMessage(failurePrefix + unclassifiedDetail(err))
}

// unclassifiedDetail surfaces the provider's own message so the user can
// diagnose the failure, falling back to a generic text.
func unclassifiedDetail(err error) string {
	fallback := strings.TrimPrefix(msgUnreachable, failurePrefix)
	var provErr *domain.ProviderError
	if errors.As(err, &provErr) {
		if msg := strings.TrimSpace(provErr.Message); msg != "" {
			return msg
		}
		return fallback
	}
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			return msg
		}
	}
	return fallback
}
