// Command queryflow wires the engine against a real DynamoDB endpoint and
// runs a single lookup. It exists to exercise the full composition; the
// engine itself is embedded as a library by its callers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"queryflow/internal/config"
	"queryflow/internal/engine"
	"queryflow/internal/observability"
	"queryflow/internal/queryflow"
	storedynamo "queryflow/internal/store/dynamodb"
)

func main() {
	var (
		table    = flag.String("table", "", "table to query (required)")
		pkName   = flag.String("pk-name", "", "partition key attribute")
		pkValue  = flag.String("pk-value", "", "partition key value")
		pageSize = flag.Int("page-size", 50, "page size")
		timeout  = flag.Duration("timeout", 10*time.Second, "overall call timeout")
	)
	flag.Parse()

	if *table == "" {
		fmt.Fprintln(os.Stderr, "usage: queryflow -table <name> [-pk-name <attr> -pk-value <value>]")
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal("failed to load AWS config", zap.Error(err))
	}

	client := storedynamo.New(ddb.NewFromConfig(awsCfg), 5*time.Second, logger.Named("dynamodb"))
	eng := engine.New(client, config.Default(),
		engine.WithLogger(logger),
		engine.WithMetrics(observability.NewCollector("queryflow")),
	)

	req := &queryflow.AccessRequest{
		TableName: *table,
		PageSize:  int32(*pageSize),
	}
	if *pkName != "" {
		req.PartitionKey = &queryflow.KeyCondition{Name: *pkName, Value: *pkValue}
	}

	result, err := eng.Query(ctx, req)
	if err != nil {
		logger.Fatal("query failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("failed to render result", zap.Error(err))
	}
	fmt.Println(string(out))
}
