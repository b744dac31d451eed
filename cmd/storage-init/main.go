// Command storage-init provisions the board table, the activity queue and
// the Mongo indexes. Resources that already exist are left untouched.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"workboard-api/storage"
)

const queueAlreadyExists = "QueueAlreadyExists"

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if connStr := os.Getenv("STORAGE_CONNECTION_STRING"); connStr != "" {
		if err := createTables(ctx, connStr, []string{os.Getenv("BOARDS_TABLE")}); err != nil {
			log.Fatalf("create tables: %v", err)
		}
		if err := createQueues(ctx, connStr, []string{os.Getenv("ACTIVITY_QUEUE")}); err != nil {
			log.Fatalf("create queues: %v", err)
		}
	}

	if uri := os.Getenv("MONGO_URI"); uri != "" {
		if err := ensureMongoIndexes(ctx, uri, envOr("MONGO_DATABASE", "workboard"), envOr("BOARDS_COLLECTION", "boards")); err != nil {
			log.Fatalf("mongo indexes: %v", err)
		}
	}

	log.Info("storage init complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		_, err := svc.NewClient(name).CreateTable(ctx, nil)
		if err != nil && !hasErrorCode(err, string(aztables.TableAlreadyExists)) {
			return err
		}
		log.Infof("table %s ready", name)
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		if _, err := q.Create(ctx, nil); err != nil && !hasErrorCode(err, queueAlreadyExists) {
			return err
		}
		log.Infof("queue %s ready", name)
	}
	return nil
}

func hasErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}

func ensureMongoIndexes(ctx context.Context, uri, database, collection string) error {
	store, client, err := storage.NewMongo(ctx, uri, database, collection)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}
	log.Infof("indexes on %s.%s ready", database, collection)
	return nil
}
