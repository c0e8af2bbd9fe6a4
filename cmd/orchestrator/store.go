package main

import (
	"fmt"
	"strings"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowstate/orchestrator/checkpoint/inmemstore"
	"github.com/flowstate/orchestrator/checkpoint/mongostore"
	"github.com/flowstate/orchestrator/core/checkpoint"
)

// openStore resolves dbPath into a checkpoint.Store: a "mongodb://" (or
// "mongodb+srv://") URI connects to a real collection via mongostore; any
// other value (including empty) falls back to an in-process inmemstore,
// which only lasts for this invocation's lifetime — fine for `run` smoke
// tests, not for `resume`/`fork` against a prior process's run.
func openStore(dbPath string) (checkpoint.Store, error) {
	if isMongoURI(dbPath) {
		client, err := mongodriver.Connect(options.Client().ApplyURI(dbPath))
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", dbPath, err)
		}
		database := databaseNameFromURI(dbPath)
		return mongostore.New(mongostore.Options{Client: client, Database: database})
	}
	return inmemstore.New(), nil
}

func isMongoURI(dbPath string) bool {
	return strings.HasPrefix(dbPath, "mongodb://") || strings.HasPrefix(dbPath, "mongodb+srv://")
}

// databaseNameFromURI extracts the path component of a mongodb:// URI as the
// database name, defaulting to "orchestrator" when the URI carries none.
func databaseNameFromURI(uri string) string {
	rest := uri
	if s := strings.Index(rest, "://"); s >= 0 {
		rest = rest[s+len("://"):]
	}
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "orchestrator"
	}
	name := rest[idx+1:]
	if q := strings.IndexByte(name, '?'); q >= 0 {
		name = name[:q]
	}
	if name == "" {
		return "orchestrator"
	}
	return name
}
