package backend

import (
	"errors"
	"fmt"
	"time"

	"fintrack/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// REST API
	APIBaseURL  string
	APIToken    string
	APIEmail    string
	APIPassword string
	APITimeout  time.Duration

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Memory
	MemorySeedFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	RESTBackend   BackendType = "rest"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// LocalOwner is the owner assigned to transactions of sources without
// accounts.
const LocalOwner = "local"

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case RESTBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		APIBaseURL:  appConfig.APIBaseURL,
		APIToken:    appConfig.APIToken,
		APIEmail:    appConfig.APIEmail,
		APIPassword: appConfig.APIPassword,
		APITimeout:  appConfig.APITimeout,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,

		MemorySeedFile: appConfig.MemorySeedFile,
	}, nil
}

// Validate checks the settings the selected backend needs.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case RESTBackend:
		if c.APIBaseURL == "" {
			return errors.New("API base URL is required for rest backend")
		}
		if c.APIToken == "" && (c.APIEmail == "" || c.APIPassword == "") {
			return errors.New("either a token or email and password must be provided for rest backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
	case MemoryBackend:
	}

	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{RESTBackend.String(), SheetsBackend.String(), MemoryBackend.String()}
}
