// Package app wires configuration into a ready ChatService. Both
// entrypoints share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"hta-chat/internal/config"
	"hta-chat/internal/domain"
	"hta-chat/internal/integrations/gemini"
	"hta-chat/internal/integrations/openai"
	"hta-chat/internal/integrations/paramstore"
	"hta-chat/internal/repository"
	"hta-chat/internal/usecase"
)

// Build constructs the chat service described by cfg. AWS config is only
// loaded when a component needs it.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*usecase.ChatService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var awsCfg aws.Config
	if cfg.UsesAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
	}

	backend, err := newBackend(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	keys, err := newKeySource(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg, keys)
	if err != nil {
		return nil, err
	}
	return assemble(ctx, cfg, backend, gen, logger)
}

func assemble(ctx context.Context, cfg config.Config, backend repository.Backend, gen usecase.GenerationService, logger *slog.Logger) (*usecase.ChatService, error) {
	store, err := repository.NewStore(backend, repository.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: create store: %w", err)
	}
	managerOpts := []usecase.ManagerOption{usecase.WithManagerLogger(logger)}
	if sharedBackend(cfg) {
		managerOpts = append(managerOpts, usecase.WithReloadPerCall())
	}
	manager, err := usecase.NewSessionManager(store, managerOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: create session manager: %w", err)
	}
	manager.Initialize(ctx)

	orchestrator := usecase.NewOrchestrator(gen,
		usecase.WithGenerateTimeout(cfg.GenerateTimeout),
		usecase.WithOrchestratorLogger(logger),
	)
	chat, err := usecase.NewChatService(manager, orchestrator, cfg.MaxInputLength)
	if err != nil {
		return nil, fmt.Errorf("app: create chat service: %w", err)
	}
	return chat, nil
}

// sharedBackend reports whether other processes may write the same store:
// Lambda containers share the table, and CLI invocations share the file.
func sharedBackend(cfg config.Config) bool {
	return cfg.StoreBackend == config.BackendFile || cfg.StoreBackend == config.BackendDynamoDB
}

func newBackend(cfg config.Config, awsCfg aws.Config) (repository.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return repository.NewMemoryBackend(nil), nil
	case config.BackendDynamoDB:
		b, err := repository.NewDynamoBackend(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, cfg.StoreKey)
		if err != nil {
			return nil, fmt.Errorf("app: create dynamodb backend: %w", err)
		}
		return b, nil
	case config.BackendFile:
		b, err := repository.NewFileBackend(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("app: create file backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("app: unsupported store backend %q", cfg.StoreBackend)
	}
}

func newKeySource(cfg config.Config, awsCfg aws.Config) (domain.APIKeySource, error) {
	if cfg.ParamPrefix == "" {
		return paramstore.StaticToken(cfg.APIKey), nil
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}
	src, err := paramstore.NewTokenSource(ssmClient, cfg.TokenParameter())
	if err != nil {
		return nil, fmt.Errorf("app: create token source: %w", err)
	}
	return src, nil
}

func newGenerator(cfg config.Config, keys domain.APIKeySource) (usecase.GenerationService, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(keys, gemini.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("app: create gemini client: %w", err)
		}
		return c, nil
	case config.ProviderOpenAI:
		c, err := openai.NewClient(keys, openai.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("app: create openai client: %w", err)
		}
		return c, nil
	default:
		return nil, errors.New("app: unsupported provider " + cfg.Provider)
	}
}
