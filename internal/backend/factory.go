package backend

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/api"
	"fintrack/internal/log"
	gsheet "fintrack/internal/source/google"
	"fintrack/internal/source/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentSource),
	}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case RESTBackend:
		return f.createRESTBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createRESTBackend logs in when no token is configured, so the owner is
// always known before the first fetch.
func (f *DefaultFactory) createRESTBackend(ctx context.Context, config Config) (*BackendResult, error) {
	var opts []api.Option
	if config.APITimeout > 0 {
		opts = append(opts, api.WithTimeout(config.APITimeout))
	}
	if config.APIToken != "" {
		opts = append(opts, api.WithToken(config.APIToken))
	}
	client, err := api.New(config.APIBaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API client: %w", err)
	}

	if config.APIToken == "" {
		if _, err := client.Login(ctx, config.APIEmail, config.APIPassword); err != nil {
			return nil, fmt.Errorf("failed to authenticate with API: %w", err)
		}
	}

	owner := client.Owner()
	if owner == "" {
		return nil, errors.New("API token carries no account id")
	}

	f.logger.Info("Initialized REST backend", "base_url", config.APIBaseURL, log.FieldOwner, owner)

	return &BackendResult{Source: client, Owner: owner}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	owner := "sheet:" + config.GoogleSpreadsheetID
	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
		Owner:           owner,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "sheet", config.GoogleSheetName)

	return &BackendResult{Source: cli, Owner: owner}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store := memory.NewFromFile(LocalOwner, config.MemorySeedFile)

	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile)

	return &BackendResult{Source: store, Owner: LocalOwner}, nil
}
