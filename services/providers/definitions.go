package providers

import (
	"fmt"
	"os"

	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/google"
	"gopkg.in/yaml.v3"
)

// Definition describes how to refresh tokens for one provider.
type Definition struct {
	Name            string   `yaml:"name"`
	ClientID        string   `yaml:"client_id"`
	ClientSecret    string   `yaml:"client_secret"`
	AuthURL         string   `yaml:"auth_url"`
	TokenURL        string   `yaml:"token_url"`
	Scopes          []string `yaml:"scopes"`
	SupportsRefresh bool     `yaml:"supports_refresh"`
	// AuthStyle is "header", "params" or empty for auto-detection.
	AuthStyle string `yaml:"auth_style"`
}

type definitionsFile struct {
	Providers []Definition `yaml:"providers"`
}

// LoadDefinitions reads provider definitions from a YAML file of the form
//
//	providers:
//	  - name: dropbox
//	    client_id: ...
func LoadDefinitions(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider definitions: %w", err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse provider definitions %s: %w", path, err)
	}

	for i, d := range file.Providers {
		if d.Name == "" {
			return nil, fmt.Errorf("provider definition %d has no name", i)
		}
		if d.SupportsRefresh && d.TokenURL == "" {
			return nil, fmt.Errorf("provider %s supports refresh but has no token_url", d.Name)
		}
	}

	return file.Providers, nil
}

// BuiltinDefinitions returns the providers known out of the box, using client
// credentials from the environment.
func BuiltinDefinitions(cfg config.ProvidersConfig) []Definition {
	onedrive := endpoints.AzureAD(cfg.OneDriveTenant)

	return []Definition{
		{
			Name:            storageerrors.ProviderGoogleDrive,
			ClientID:        cfg.GoogleClientID,
			ClientSecret:    cfg.GoogleClientSecret,
			AuthURL:         google.Endpoint.AuthURL,
			TokenURL:        google.Endpoint.TokenURL,
			Scopes:          []string{"https://www.googleapis.com/auth/drive.file"},
			SupportsRefresh: true,
		},
		{
			Name:            storageerrors.ProviderDropbox,
			ClientID:        cfg.DropboxClientID,
			ClientSecret:    cfg.DropboxClientSecret,
			AuthURL:         endpoints.Dropbox.AuthURL,
			TokenURL:        endpoints.Dropbox.TokenURL,
			SupportsRefresh: true,
		},
		{
			Name:            storageerrors.ProviderOneDrive,
			ClientID:        cfg.OneDriveClientID,
			ClientSecret:    cfg.OneDriveClientSecret,
			AuthURL:         onedrive.AuthURL,
			TokenURL:        onedrive.TokenURL,
			Scopes:          []string{"offline_access", "Files.ReadWrite"},
			SupportsRefresh: true,
		},
		{Name: storageerrors.ProviderAmazonS3},
		{Name: storageerrors.ProviderAzureBlob},
	}
}

// Merge overlays file definitions on the builtins by name.
func Merge(base, overrides []Definition) []Definition {
	index := make(map[string]int, len(base))
	merged := append([]Definition(nil), base...)
	for i, d := range merged {
		index[d.Name] = i
	}

	for _, d := range overrides {
		if i, ok := index[d.Name]; ok {
			merged[i] = d
			continue
		}
		index[d.Name] = len(merged)
		merged = append(merged, d)
	}
	return merged
}
