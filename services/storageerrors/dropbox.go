package storageerrors

import (
	"strings"

	"github.com/tech-arch1tect/cloudtoken/services/logging"
)

// Dropbox reports failures as an error_summary path such as
// "path/not_found/..", which survives in the error text.
var dropboxSummaries = []struct {
	prefix string
	t      ErrorType
}{
	{"expired_access_token", TokenExpired},
	{"invalid_access_token", InvalidCredentials},
	{"invalid_grant", InvalidCredentials},
	{"missing_scope", InsufficientPermissions},
	{"insufficient_space", StorageQuotaExceeded},
	{"path/insufficient_space", StorageQuotaExceeded},
	{"too_many_requests", APIQuotaExceeded},
	{"too_many_write_operations", APIQuotaExceeded},
	{"path/not_found", FileNotFound},
	{"path_lookup/not_found", FileNotFound},
	{"path/no_write_permission", FolderAccessDenied},
	{"path/disallowed_name", InvalidFileType},
	{"payload_too_large", FileTooLarge},
	{"too_large", FileTooLarge},
}

func MatchDropbox(err error) (ErrorType, bool) {
	msg := strings.ToLower(err.Error())
	for _, s := range dropboxSummaries {
		if strings.Contains(msg, s.prefix) {
			return s.t, true
		}
	}
	return "", false
}

func NewDropboxHandler(logger *logging.Service) *BaseHandler {
	return NewBaseHandler(ProviderDropbox, logger, MatchDropbox).
		WithMessage(StorageQuotaExceeded, "Your Dropbox is full. Free up space or upgrade your Dropbox plan.")
}
