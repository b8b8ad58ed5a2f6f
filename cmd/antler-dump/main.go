/*
Command antler-dump prints the contents of an antler store.

It lists every entity store with its key count and can print each key in hex
along with its value in CBOR diagnostic notation (or raw JSON for stores
written with the JSON codec). Auxiliary stores holding link records, the link
index and auto-increment marks are hidden unless -aux is given.

Usage:

	antler-dump -path data.db [options]
	antler-dump -backend dynamo -table antler [options]

Options:

	-backend <name>     Backend: bolt or dynamo (default: bolt)
	-path <file>        bbolt file (bolt backend)
	-table <name>       DynamoDB table (dynamo backend, default: antler)
	-namespace <name>   DynamoDB namespace (dynamo backend, default: default)
	-store <name>       Dump only this store
	-keys               Print every key
	-values             Print every key and its value
	-aux                Include auxiliary stores
	-v                  Verbose logging
*/
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/fxamacker/cbor/v2"

	"github.com/jacentio/antler/kv"
	"github.com/jacentio/antler/store"
)

var (
	backendName = flag.String("backend", "bolt", "Backend: bolt or dynamo")
	path        = flag.String("path", "", "bbolt file (bolt backend)")
	table       = flag.String("table", "antler", "DynamoDB table (dynamo backend)")
	namespace   = flag.String("namespace", "default", "DynamoDB namespace (dynamo backend)")
	only        = flag.String("store", "", "Dump only this store")
	showKeys    = flag.Bool("keys", false, "Print every key")
	showValues  = flag.Bool("values", false, "Print every key and its value")
	showAux     = flag.Bool("aux", false, "Include auxiliary stores")
	verbose     = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()
	backend, err := openBackend(ctx)
	if err != nil {
		logger.Error("failed to open backend", "backend", *backendName, "error", err)
		return 1
	}

	s := store.New(backend, store.DefaultConfig())
	s.SetLogger(logger)
	defer s.Close()

	if err := dump(ctx, os.Stdout, s, logger); err != nil {
		if kv.IsDynamoNotFound(err) {
			logger.Error("table does not exist", "table", *table)
		} else {
			logger.Error("dump failed", "error", err)
		}
		return 1
	}
	return 0
}

func openBackend(ctx context.Context) (kv.Backend, error) {
	switch *backendName {
	case "bolt":
		if *path == "" {
			return nil, errors.New("-path is required for the bolt backend")
		}
		opts := kv.DefaultBoltOptions()
		opts.ReadOnly = true
		return kv.OpenBolt(*path, opts)
	case "dynamo":
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return kv.NewDynamo(dynamodb.NewFromConfig(cfg), kv.DynamoConfig{
			Table:          *table,
			Namespace:      *namespace,
			ConsistentRead: true,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", *backendName)
	}
}

func dump(ctx context.Context, w io.Writer, s *store.Store, logger *slog.Logger) error {
	names, err := listStores(ctx, s)
	if err != nil {
		return err
	}
	if *only != "" {
		if !slices.Contains(names, *only) {
			return fmt.Errorf("store %q is empty or does not exist", *only)
		}
		names = []string{*only}
	}
	logger.Debug("dumping stores", "count", len(names))

	for _, name := range names {
		b, err := s.Backend().Bucket(ctx, name)
		if err != nil {
			return err
		}
		n, err := b.Count(ctx)
		if err != nil {
			return fmt.Errorf("count %s: %w", name, err)
		}
		fmt.Fprintf(w, "%s\t%d\n", name, n)

		if !*showKeys && !*showValues {
			continue
		}
		for e, err := range b.Scan(ctx, kv.Range{}) {
			if err != nil {
				return fmt.Errorf("scan %s: %w", name, err)
			}
			if *showValues {
				fmt.Fprintf(w, "  %s\t%s\n", hex.EncodeToString(e.Key), describe(e.Value))
			} else {
				fmt.Fprintf(w, "  %s\n", hex.EncodeToString(e.Key))
			}
		}
	}
	return nil
}

func listStores(ctx context.Context, s *store.Store) ([]string, error) {
	if *showAux {
		return s.Backend().Buckets(ctx)
	}
	return s.Stores(ctx)
}

// describe renders a stored value for humans.
func describe(v []byte) string {
	if len(v) == 0 {
		return "-"
	}
	if json.Valid(v) {
		return string(v)
	}
	if diag, err := cbor.Diagnose(v); err == nil {
		return diag
	}
	return hex.EncodeToString(v)
}
