package storageerrors

import "fmt"

var providerNames = map[string]string{
	ProviderGoogleDrive: "Google Drive",
	ProviderDropbox:     "Dropbox",
	ProviderOneDrive:    "OneDrive",
	ProviderAmazonS3:    "Amazon S3",
	ProviderAzureBlob:   "Azure Blob Storage",
}

func DisplayName(provider string) string {
	if name, ok := providerNames[provider]; ok {
		return name
	}
	if provider == "" {
		return "cloud storage"
	}
	return provider
}

// DefaultMessage is the shared user-facing message for t. Every ErrorType,
// including unknown values, resolves to a message.
func DefaultMessage(t ErrorType, ctx Context) string {
	name := DisplayName(ctx.Provider)

	switch t {
	case TokenExpired:
		return fmt.Sprintf("Your %s connection has expired. Please reconnect your account.", name)
	case InvalidCredentials:
		return fmt.Sprintf("Your %s credentials are no longer valid. Please reconnect your account.", name)
	case InsufficientPermissions:
		return fmt.Sprintf("The %s connection is missing permissions it needs. Please reconnect and grant access.", name)
	case APIQuotaExceeded:
		return fmt.Sprintf("%s is limiting requests right now. We will retry automatically.", name)
	case StorageQuotaExceeded:
		return fmt.Sprintf("Your %s storage is full. Free up space or upgrade your plan.", name)
	case NetworkError:
		return fmt.Sprintf("We could not reach %s because of a network problem. We will retry automatically.", name)
	case ServiceUnavailable:
		return fmt.Sprintf("%s is temporarily unavailable. We will retry automatically.", name)
	case Timeout:
		return fmt.Sprintf("The request to %s timed out. We will retry automatically.", name)
	case FileNotFound:
		if ctx.FileName != "" {
			return fmt.Sprintf("The file %q could not be found in %s.", ctx.FileName, name)
		}
		return fmt.Sprintf("The requested file could not be found in %s.", name)
	case FileTooLarge:
		if ctx.FileName != "" {
			return fmt.Sprintf("The file %q is too large for %s.", ctx.FileName, name)
		}
		return fmt.Sprintf("The file is too large for %s.", name)
	case InvalidFileType:
		return fmt.Sprintf("This file type is not accepted by %s.", name)
	case FolderAccessDenied:
		return fmt.Sprintf("Access to the target folder in %s was denied.", name)
	case InvalidFileContent:
		return fmt.Sprintf("%s rejected the file contents.", name)
	case ProviderNotConfigured:
		return fmt.Sprintf("%s is not configured. Please contact your administrator.", name)
	default:
		return fmt.Sprintf("An unexpected error occurred while talking to %s.", name)
	}
}

func DefaultActions(t ErrorType, ctx Context) []string {
	name := DisplayName(ctx.Provider)

	switch t {
	case TokenExpired, InvalidCredentials:
		return []string{
			fmt.Sprintf("Reconnect your %s account", name),
			"Make sure the account has not been disabled",
		}
	case InsufficientPermissions:
		return []string{
			fmt.Sprintf("Reconnect your %s account and approve all requested permissions", name),
		}
	case APIQuotaExceeded, ServiceUnavailable, NetworkError, Timeout:
		return []string{"No action needed, the operation will be retried"}
	case StorageQuotaExceeded:
		return []string{
			fmt.Sprintf("Delete unused files from %s", name),
			"Upgrade your storage plan",
		}
	case FileNotFound:
		return []string{"Check that the file was not moved or deleted"}
	case FileTooLarge:
		return []string{"Upload a smaller file"}
	case InvalidFileType:
		return []string{"Upload a supported file type"}
	case FolderAccessDenied:
		return []string{"Check the folder sharing settings", fmt.Sprintf("Reconnect your %s account", name)}
	case InvalidFileContent:
		return []string{"Check that the file is not corrupted"}
	case ProviderNotConfigured:
		return []string{"Contact your administrator to configure the provider"}
	default:
		return []string{"Try again later", "Contact support if the problem persists"}
	}
}
