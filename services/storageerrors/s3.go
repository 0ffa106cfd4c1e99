package storageerrors

import (
	"errors"

	"github.com/aws/smithy-go"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
)

var s3Codes = map[string]ErrorType{
	"ExpiredToken":          TokenExpired,
	"TokenRefreshRequired":  TokenExpired,
	"InvalidAccessKeyId":    InvalidCredentials,
	"SignatureDoesNotMatch": InvalidCredentials,
	"InvalidToken":          InvalidCredentials,
	"AccessDenied":          InsufficientPermissions,
	"AllAccessDisabled":     InsufficientPermissions,
	"NoSuchBucket":          ProviderNotConfigured,
	"NoSuchKey":             FileNotFound,
	"NotFound":              FileNotFound,
	"EntityTooLarge":        FileTooLarge,
	"InvalidDigest":         InvalidFileContent,
	"BadDigest":             InvalidFileContent,
	"SlowDown":              APIQuotaExceeded,
	"Throttling":            APIQuotaExceeded,
	"ThrottlingException":   APIQuotaExceeded,
	"RequestLimitExceeded":  APIQuotaExceeded,
	"ServiceUnavailable":    ServiceUnavailable,
	"InternalError":         ServiceUnavailable,
	"RequestTimeout":        Timeout,
	"RequestTimeTooSkewed":  NetworkError,
}

// MatchSmithyAPI classifies AWS SDK v2 API errors by their error code.
func MatchSmithyAPI(err error) (ErrorType, bool) {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}

	if t, ok := s3Codes[apiErr.ErrorCode()]; ok {
		return t, true
	}

	if apiErr.ErrorFault() == smithy.FaultServer {
		return ServiceUnavailable, true
	}

	return "", false
}

func NewS3Handler(logger *logging.Service) *BaseHandler {
	return NewBaseHandler(ProviderAmazonS3, logger, MatchSmithyAPI).
		WithMessage(ProviderNotConfigured, "The configured Amazon S3 bucket does not exist. Please contact your administrator.").
		WithMessage(InvalidCredentials, "The Amazon S3 access keys were rejected. Please update the stored credentials.")
}
