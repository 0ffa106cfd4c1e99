package storageerrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"google.golang.org/api/googleapi"
)

// Drive API error reasons, see
// https://developers.google.com/drive/api/guides/handle-errors
var googleReasons = map[string]ErrorType{
	"authError":                   TokenExpired,
	"invalidCredentials":          InvalidCredentials,
	"storageQuotaExceeded":        StorageQuotaExceeded,
	"quotaExceeded":               StorageQuotaExceeded,
	"teamDriveFileLimitExceeded":  StorageQuotaExceeded,
	"userRateLimitExceeded":       APIQuotaExceeded,
	"rateLimitExceeded":           APIQuotaExceeded,
	"dailyLimitExceeded":          APIQuotaExceeded,
	"sharingRateLimitExceeded":    APIQuotaExceeded,
	"insufficientPermissions":     InsufficientPermissions,
	"appNotAuthorizedToFile":      InsufficientPermissions,
	"domainPolicy":                InsufficientPermissions,
	"insufficientFilePermissions": FolderAccessDenied,
	"cannotAddParent":             FolderAccessDenied,
	"notFound":                    FileNotFound,
	"uploadTooLarge":              FileTooLarge,
	"maxFileSizeExceeded":         FileTooLarge,
	"unsupportedContentType":      InvalidFileType,
	"badContent":                  InvalidFileContent,
	"backendError":                ServiceUnavailable,
	"internalError":               ServiceUnavailable,
	"transientError":              ServiceUnavailable,
	"responsePreparationFailure":  ServiceUnavailable,
	"requestTimeout":              Timeout,
}

// MatchGoogleAPI classifies *googleapi.Error by reason, then by status code.
func MatchGoogleAPI(err error) (ErrorType, bool) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return "", false
	}

	for _, item := range gerr.Errors {
		if t, ok := googleReasons[item.Reason]; ok {
			return t, true
		}
	}

	if gerr.Code == http.StatusUnauthorized {
		return TokenExpired, true
	}

	if t, ok := classifyStatus(gerr.Code); ok {
		return t, true
	}

	return "", false
}

type GoogleDriveHandler struct {
	base *BaseHandler
}

func NewGoogleDriveHandler(logger *logging.Service) *GoogleDriveHandler {
	return &GoogleDriveHandler{
		base: NewBaseHandler(ProviderGoogleDrive, logger, MatchGoogleAPI),
	}
}

func (h *GoogleDriveHandler) Provider() string {
	return ProviderGoogleDrive
}

func (h *GoogleDriveHandler) Classify(err error, ctx Context) ErrorType {
	return h.base.Classify(err, ctx)
}

func (h *GoogleDriveHandler) UserMessage(t ErrorType, ctx Context) string {
	switch t {
	case StorageQuotaExceeded:
		return "Your Google Drive storage is full. Free up space in Google Drive or buy more Google One storage."
	case APIQuotaExceeded:
		return "Google Drive is rate limiting requests for this account. We will retry automatically."
	case InsufficientPermissions:
		return "The Google Drive connection does not have permission for this operation. Please reconnect and allow Drive access."
	case FolderAccessDenied:
		if ctx.FileName != "" {
			return fmt.Sprintf("You do not have write access to the Google Drive folder for %q.", ctx.FileName)
		}
	}
	return h.base.UserMessage(t, ctx)
}

func (h *GoogleDriveHandler) RecommendedActions(t ErrorType, ctx Context) []string {
	switch t {
	case StorageQuotaExceeded:
		return []string{
			"Empty the Google Drive trash",
			"Remove large files from Google Drive",
			"Upgrade your Google One storage plan",
		}
	case InsufficientPermissions:
		return []string{
			"Reconnect Google Drive and tick every requested permission",
			"Ask your Google Workspace admin whether third-party apps are allowed",
		}
	}
	return h.base.RecommendedActions(t, ctx)
}
