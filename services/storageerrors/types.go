package storageerrors

// ErrorType is the closed set of failure categories every provider error is
// reduced to. Retry, notification and intervention decisions key off it.
type ErrorType string

const (
	TokenExpired            ErrorType = "TOKEN_EXPIRED"
	InvalidCredentials      ErrorType = "INVALID_CREDENTIALS"
	InsufficientPermissions ErrorType = "INSUFFICIENT_PERMISSIONS"
	APIQuotaExceeded        ErrorType = "API_QUOTA_EXCEEDED"
	StorageQuotaExceeded    ErrorType = "STORAGE_QUOTA_EXCEEDED"
	NetworkError            ErrorType = "NETWORK_ERROR"
	ServiceUnavailable      ErrorType = "SERVICE_UNAVAILABLE"
	Timeout                 ErrorType = "TIMEOUT"
	FileNotFound            ErrorType = "FILE_NOT_FOUND"
	FileTooLarge            ErrorType = "FILE_TOO_LARGE"
	InvalidFileType         ErrorType = "INVALID_FILE_TYPE"
	FolderAccessDenied      ErrorType = "FOLDER_ACCESS_DENIED"
	InvalidFileContent      ErrorType = "INVALID_FILE_CONTENT"
	ProviderNotConfigured   ErrorType = "PROVIDER_NOT_CONFIGURED"
	UnknownError            ErrorType = "UNKNOWN_ERROR"
)

type Policy struct {
	Retryable         bool
	NotifyImmediately bool
	Recoverable       bool
	// UserIntervention means automatic refresh must stop until the account
	// is reconnected.
	UserIntervention bool
	MaxAttempts      int
}

var policies = map[ErrorType]Policy{
	TokenExpired:            {NotifyImmediately: true, Recoverable: true, UserIntervention: true, MaxAttempts: 1},
	InvalidCredentials:      {NotifyImmediately: true, UserIntervention: true, MaxAttempts: 1},
	InsufficientPermissions: {NotifyImmediately: true, UserIntervention: true, MaxAttempts: 1},
	APIQuotaExceeded:        {Retryable: true, Recoverable: true, MaxAttempts: 2},
	StorageQuotaExceeded:    {NotifyImmediately: true, MaxAttempts: 1},
	NetworkError:            {Retryable: true, Recoverable: true, MaxAttempts: 3},
	ServiceUnavailable:      {Retryable: true, Recoverable: true, MaxAttempts: 3},
	Timeout:                 {Retryable: true, Recoverable: true, MaxAttempts: 3},
	FileNotFound:            {MaxAttempts: 1},
	FileTooLarge:            {MaxAttempts: 1},
	InvalidFileType:         {MaxAttempts: 1},
	FolderAccessDenied:      {NotifyImmediately: true, MaxAttempts: 1},
	InvalidFileContent:      {MaxAttempts: 1},
	ProviderNotConfigured:   {NotifyImmediately: true, MaxAttempts: 1},
	UnknownError:            {Retryable: true, Recoverable: true, MaxAttempts: 2},
}

var allTypes = []ErrorType{
	TokenExpired,
	InvalidCredentials,
	InsufficientPermissions,
	APIQuotaExceeded,
	StorageQuotaExceeded,
	NetworkError,
	ServiceUnavailable,
	Timeout,
	FileNotFound,
	FileTooLarge,
	InvalidFileType,
	FolderAccessDenied,
	InvalidFileContent,
	ProviderNotConfigured,
	UnknownError,
}

func AllTypes() []ErrorType {
	out := make([]ErrorType, len(allTypes))
	copy(out, allTypes)
	return out
}

func (t ErrorType) Valid() bool {
	_, ok := policies[t]
	return ok
}

// Policy returns the static policy for t. Unrecognised values get the
// UnknownError policy.
func (t ErrorType) Policy() Policy {
	if p, ok := policies[t]; ok {
		return p
	}
	return policies[UnknownError]
}

func (t ErrorType) IsRetryable() bool {
	return t.Policy().Retryable
}

func (t ErrorType) ShouldNotifyImmediately() bool {
	return t.Policy().NotifyImmediately
}

func (t ErrorType) IsRecoverable() bool {
	return t.Policy().Recoverable
}

func (t ErrorType) RequiresUserIntervention() bool {
	return t.Policy().UserIntervention
}

func (t ErrorType) MaxRetryAttempts() int {
	return t.Policy().MaxAttempts
}

func (t ErrorType) String() string {
	return string(t)
}
