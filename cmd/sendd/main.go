// Command sendd runs the transfer coordinator's HTTP API: it loads
// configuration, wires a Blob Broker and Metadata Store Adapter
// backend, constructs the Upload/Download Coordinators and Lifecycle
// Policy, and serves httpapi.API through server.Server. Adapted from
// thatique-awan's cmd entrypoint shape (flag-parsed config path,
// zap.NewProduction logger, server.New + graceful Shutdown on
// SIGINT/SIGTERM).
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"
	"go.uber.org/zap"

	"github.com/thatique/sendcore/auth"
	"github.com/thatique/sendcore/blob"
	"github.com/thatique/sendcore/blob/fileblob"
	"github.com/thatique/sendcore/blob/s3blob"
	"github.com/thatique/sendcore/config"
	"github.com/thatique/sendcore/httpapi"
	"github.com/thatique/sendcore/internal/logging"
	"github.com/thatique/sendcore/kvstore"
	"github.com/thatique/sendcore/kvstore/memstore"
	"github.com/thatique/sendcore/kvstore/redisstore"
	"github.com/thatique/sendcore/server"
	"github.com/thatique/sendcore/server/health"
	"github.com/thatique/sendcore/server/requestlog"
	"github.com/thatique/sendcore/transfer"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; env vars prefixed SEND_ override the keys it sets)")
	flag.Parse()

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("sendd: building logger: %v", err)
	}
	defer zl.Sync()
	logger := logging.NewZap(zl)

	cfg, err := config.Load(*configPath)
	if err != nil {
		zl.Fatal("sendd: loading config", zap.Error(err))
	}

	store, err := openStore(&cfg.Store)
	if err != nil {
		zl.Fatal("sendd: opening metadata store", zap.Error(err))
	}

	bk, blobHandler, blobPath, err := openBucket(&cfg.Storage)
	if err != nil {
		zl.Fatal("sendd: opening blob bucket", zap.Error(err))
	}
	defer bk.Close()

	lifecycle := transfer.NewLifecycle(context.Background(), bk, store)

	uploadCoord := transfer.NewUploadCoordinator(&cfg.Transfer, bk, store)
	verifier := auth.New(store)
	downloadCoord := transfer.NewDownloadCoordinator(&cfg.Transfer, bk, store, verifier, lifecycle)
	manager := transfer.NewRecordManager(&cfg.Transfer, bk, store, lifecycle)

	api := httpapi.New(&cfg.Transfer, uploadCoord, downloadCoord, manager, logger)
	router := api.Router(nil)
	if blobHandler != nil {
		router.Handle(blobPath, blobHandler).Methods(http.MethodPut)
	}

	reqLogger := requestlog.NewNCSALogger(os.Stdout, func(err error) {
		zl.Error("sendd: request log write failed", zap.Error(err))
	})

	drv := server.NewDefaultDriver()
	if cfg.Server.Network != "" {
		drv.Net = cfg.Server.Network
	}
	srv := server.New(router, &server.Options{
		Driver:        drv,
		RequestLogger: reqLogger,
		HealthChecks: []health.Checker{
			health.CheckerFunc(func() error { return store.Ping(context.Background()) }),
			health.CheckerFunc(func() error { return bk.Ping(context.Background()) }),
		},
	})

	errCh := make(chan error, 1)
	go func() {
		zl.Info("sendd: listening", zap.String("network", cfg.Server.Network), zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe(cfg.Server.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		zl.Fatal("sendd: server exited", zap.Error(err))
	case sig := <-sigCh:
		zl.Info("sendd: shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			zl.Error("sendd: graceful shutdown failed", zap.Error(err))
		}
	}
}

func openStore(cfg *config.StoreConfig) (kvstore.Store, error) {
	switch cfg.Provider {
	case "redis":
		pool := &redis.Pool{
			MaxIdle:     cfg.MaxIdle,
			MaxActive:   cfg.MaxActive,
			IdleTimeout: 240 * time.Second,
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				_, err := c.Do("PING")
				return err
			},
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", cfg.RedisAddr)
			},
		}
		return redisstore.New(pool, redisstore.Prefix(cfg.RedisPrefix)), nil
	default:
		return memstore.New(), nil
	}
}

// openBucket returns the Blob Broker's backend. For the file provider
// it also returns the local dev HTTP handler that terminates the
// signed URLs fileblob mints and the path to mount it at (derived from
// cfg.SignBaseURL); a real object store needs no such handler, since
// clients PUT straight to it, so both are nil/empty for the s3
// provider.
func openBucket(cfg *config.StorageConfig) (*blob.Bucket, http.Handler, string, error) {
	switch cfg.Provider {
	case "s3":
		b, err := s3blob.OpenBucket(context.Background(), cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Bucket, &s3blob.Options{UseSSL: cfg.UseSSL})
		if err != nil {
			return nil, nil, "", err
		}
		return blob.NewBucket(b), nil, "", nil
	default:
		baseURL, err := url.Parse(cfg.SignBaseURL)
		if err != nil {
			return nil, nil, "", err
		}
		signer := fileblob.NewURLSignerHMAC(baseURL, []byte(cfg.SignSecret))
		b, err := fileblob.OpenBucket(cfg.Dir, &fileblob.Options{URLSigner: signer})
		if err != nil {
			return nil, nil, "", err
		}
		return blob.NewBucket(b), fileblob.NewHandler(b, signer), baseURL.Path, nil
	}
}
