package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chat-backend/handler"
	"chat-backend/internal/integrations/paramstore"
	"chat-backend/internal/repository"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Configuration (read only here) ----
	tableName := resolveTableName(ctx, cfg, logger)
	shardCount := envInt("EVENT_SHARDS", repository.DefaultShardCount)

	// ---- Clients ----
	dynamoClient := awsdynamodb.NewFromConfig(cfg)
	userStore, err := repository.NewUserClient(dynamoClient, tableName)
	if err != nil {
		logger.Error("failed to create user store", "err", err)
		os.Exit(1)
	}
	convoStore, err := repository.NewConversationClient(dynamoClient, tableName, shardCount)
	if err != nil {
		logger.Error("failed to create conversation store", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewRestHandler(userStore, convoStore, logger)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

// resolveTableName reads TABLE_NAME, falling back to the SSM parameter named
// by TABLE_NAME_PARAM. The value is resolved once per process lifetime.
func resolveTableName(ctx context.Context, cfg aws.Config, logger *slog.Logger) string {
	if v := os.Getenv("TABLE_NAME"); v != "" {
		return v
	}
	param := os.Getenv("TABLE_NAME_PARAM")
	if param == "" {
		logger.Error("neither TABLE_NAME nor TABLE_NAME_PARAM is set")
		os.Exit(1)
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		logger.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	v, err := ps.GetParameter(ctx, param)
	if err != nil {
		logger.Error("failed to resolve table name parameter", "param", param, "err", err)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
