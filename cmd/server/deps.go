package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"freewalk/internal/idempotency"
	"freewalk/internal/identity"
	"freewalk/internal/media"
	"freewalk/internal/outbox"
	"freewalk/internal/platform/config"
	platformmetrics "freewalk/internal/platform/metrics"
	"freewalk/internal/platform/migrate"
	"freewalk/internal/platform/redis"
	"freewalk/internal/ratelimit"
	"freewalk/internal/report/engine"
	"freewalk/internal/report/ledger"
	reportmetrics "freewalk/internal/report/metrics"
	reportservice "freewalk/internal/report/service"
	reportstore "freewalk/internal/report/store"
	userservice "freewalk/internal/user/service"
	userstore "freewalk/internal/user/store"
	"freewalk/internal/ward"
	wardstore "freewalk/internal/ward/store"
	"freewalk/pkg/email"
)

// deps holds every long-lived component of the process.
type deps struct {
	db        *sql.DB
	redis     *redis.Client
	publisher *outbox.KafkaPublisher

	metrics      *platformmetrics.Metrics
	verifier     *identity.Verifier
	users        *userservice.Service
	reports      *reportservice.Service
	uploader     media.Uploader
	idempotency  *idempotency.Middleware
	rateLimit    *ratelimit.Limiter
	outboxWorker *outbox.Worker
}

type wardStore interface {
	ward.Source
	ward.Writer
}

func buildDeps(ctx context.Context, cfg config.Config, log *slog.Logger) (*deps, error) {
	d := &deps{
		metrics:  platformmetrics.New(),
		verifier: identity.NewVerifier(cfg.Identity.JWTSecret, cfg.Identity.Issuer, cfg.Identity.Audience),
	}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	var (
		users       userservice.Store
		wards       wardStore
		reports     reportservice.UnitOfWork
		outboxStore outbox.Store
	)
	if cfg.Database.URL != "" {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		d.db = db
		users = userstore.NewPostgres(db)
		wards = wardstore.NewPostgres(db)
		outboxStore = outbox.NewPostgres(db)
		reports = reportstore.NewPostgres(db, reportstore.WithPostgresLockTimeout(cfg.Matching.LockTimeout))
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		memUsers := userstore.NewInMemory()
		users = memUsers
		wards = wardstore.NewInMemory()
		var appender outbox.Appender
		if len(cfg.Kafka.Brokers) > 0 {
			memOutbox := outbox.NewInMemory()
			outboxStore, appender = memOutbox, memOutbox
		}
		reports = reportstore.NewInMemory(memUsers, appender, reportstore.WithLockTimeout(cfg.Matching.LockTimeout))
	}

	directory, err := loadWards(ctx, cfg, wards, log)
	if err != nil {
		return nil, err
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		d.publisher = publisher
		if err := publisher.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure outbox topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		d.outboxWorker = outbox.NewWorker(outboxStore, publisher,
			outbox.WithLogger(log),
			outbox.WithMetrics(outbox.NewMetrics()),
			outbox.WithInterval(cfg.Kafka.PollInterval),
			outbox.WithBatchSize(cfg.Kafka.BatchSize),
		)
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	d.redis = client
	var (
		idemStore  idempotency.Store = idempotency.NewMemoryStore()
		limitStore ratelimit.Store   = ratelimit.NewMemoryStore()
	)
	if client != nil {
		idemStore = idempotency.NewRedisStore(client.Client)
		limitStore = ratelimit.NewRedisStore(client.Client)
	}
	d.idempotency = idempotency.New(idemStore, idempotency.WithLogger(log))
	if cfg.RateLimit.ReportLimit > 0 {
		d.rateLimit = ratelimit.New(limitStore, cfg.RateLimit.ReportLimit, cfg.RateLimit.ReportWindow,
			ratelimit.WithLogger(log),
			ratelimit.WithMetrics(ratelimit.NewMetrics()),
		)
	}

	if cfg.Storage.URL != "" {
		d.uploader = media.NewObjectStore(cfg.Storage.URL, cfg.Storage.Key, cfg.Storage.Bucket, cfg.Storage.Timeout, media.WithLogger(log))
	} else {
		log.Warn("STORAGE_URL not set, evidence images are kept in memory")
		d.uploader = media.NewMemoryStore()
	}

	d.users = userservice.New(users, email.NewBlocklist(cfg.BlockedEmailDomains...),
		userservice.WithLogger(log),
		userservice.WithMetrics(d.metrics),
	)
	eng := engine.New(cfg.Matching, directory, engine.WithLogger(log))
	d.reports = reportservice.New(reports, eng, ledger.New(cfg.Matching), cfg.Matching,
		reportservice.WithLogger(log),
		reportservice.WithMetrics(reportmetrics.New()),
	)

	ok = true
	return d, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

func loadWards(ctx context.Context, cfg config.Config, store wardStore, log *slog.Logger) (*ward.Directory, error) {
	if cfg.WardsGeoJSON != "" {
		n, err := ward.SeedFromFile(ctx, cfg.WardsGeoJSON, store)
		if err != nil {
			return nil, fmt.Errorf("seed wards: %w", err)
		}
		log.Info("wards seeded", "count", n, "file", cfg.WardsGeoJSON)
	}
	directory := ward.NewDirectory(store, ward.WithLogger(log))
	if err := directory.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load wards: %w", err)
	}
	return directory, nil
}

func (d *deps) Close() {
	if d.publisher != nil {
		d.publisher.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}
