package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"imagebatch/internal/adapter/repo"
	"imagebatch/internal/batch"
	"imagebatch/internal/gateway"
	"imagebatch/internal/infra"
	"imagebatch/internal/providers/caption"
	"imagebatch/internal/providers/genai"
	"imagebatch/internal/publish"
	"imagebatch/internal/storage"
)

// app bundles everything a CLI command needs.
type app struct {
	cfg     *infra.Config
	logger  infra.Logger
	pool    *pgxpool.Pool
	batch   *batch.Service
	publish *publish.Service

	submitLease  *batch.Lease
	checkLease   *batch.Lease
	publishLease *batch.Lease
}

func newApp(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv, "imagebatch")

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect ledger database: %w", err)
	}
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	jobs := repo.NewJobRepository(pool, logger)
	items := repo.NewItemRepository(pool, logger)

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		pool.Close()
		return nil, err
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	batchSvc := batch.NewService(client, jobs, items, store, cfg.GeminiModel, logger)

	gw, err := gateway.NewClient(gateway.Options{
		BaseURL: cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Logger:  &logger,
	})
	if err != nil {
		// The gateway is only needed by the publish stage; submission and
		// reconciliation work without it.
		logger.Warn().Err(err).Msg("content gateway not configured")
	}

	describer := caption.NewDescriber(client, cfg.GeminiCaptionModel, logger)

	var publishSvc *publish.Service
	if gw != nil {
		publishSvc = publish.NewService(items, store, gw, describer, logger)
	}

	return &app{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		batch:        batchSvc,
		publish:      publishSvc,
		submitLease:  batch.NewLease("submit"),
		checkLease:   batch.NewLease("status-check"),
		publishLease: batch.NewLease("publish"),
	}, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// withLease runs fn under the stage lease, reporting a friendly message when
// the stage is already running.
func withLease(lease *batch.Lease, fn func() error) error {
	if !lease.TryAcquire() {
		return fmt.Errorf("%s is already running, wait for it to finish", lease.Name())
	}
	defer lease.Release()
	return fn()
}

func submitAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	requests, err := batch.LoadRequests(cmd.String("requests"))
	if err != nil {
		return err
	}

	return withLease(a.submitLease, func() error {
		job, err := a.batch.Submit(ctx, requests)
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s with %d items\n", job.JobName, len(requests))
		return nil
	})
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return withLease(a.checkLease, func() error {
		result, err := a.batch.CheckResults(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("jobs: %d total, %d pending, %d running, %d succeeded, %d failed, %d cancelled\n",
			result.TotalJobs, result.JobsPending, result.JobsRunning,
			result.JobsSucceeded, result.JobsFailed, result.JobsCancelled)
		fmt.Printf("items: %d total, %d succeeded, %d failed, %d pending\n",
			result.TotalItems, result.ItemsSucceeded, result.ItemsFailed, result.ItemsPending)
		for msg, count := range result.ErrorsGrouped {
			fmt.Printf("  %dx %s\n", count, msg)
		}
		return nil
	})
}

func publishAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if a.publish == nil {
		return fmt.Errorf("GATEWAY_URL is required for publishing")
	}

	return withLease(a.publishLease, func() error {
		deleted, err := a.publish.SweepDeleted(ctx)
		if err != nil {
			return err
		}
		if deleted > 0 {
			fmt.Printf("retired %d items with missing staged assets\n", deleted)
		}

		captions, err := a.publish.CaptionPending(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("captions generated: %d\n", captions.Generated)

		result, err := a.publish.PublishReady(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("published: %d, failed: %d\n", result.Published, result.Failed)
		for _, msg := range result.Errors {
			fmt.Printf("  %s\n", msg)
		}
		return nil
	})
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.batch.Report(ctx, a.cfg.ErrorGroupLimit)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cleanupAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	jobName := cmd.String("job")
	if err := a.batch.Cleanup(ctx, jobName); err != nil {
		return err
	}
	fmt.Printf("cleaned up provider assets for %s\n", jobName)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cli.Command{
		Name:  "imagebatch",
		Usage: "catalog image generation batch pipeline",
		Commands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "submit a batch of generation requests",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "requests",
						Usage:    "path to the generation requests JSON file",
						Required: true,
					},
				},
				Action: submitAction,
			},
			{
				Name:   "check",
				Usage:  "poll unfinished jobs and stage results",
				Action: checkAction,
			},
			{
				Name:   "publish",
				Usage:  "caption staged images and push them to the content gateway",
				Action: publishAction,
			},
			{
				Name:   "status",
				Usage:  "print the ledger status report as JSON",
				Action: statusAction,
			},
			{
				Name:  "cleanup",
				Usage: "delete provider-side assets of a finished job",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "job",
						Usage:    "remote batch job name",
						Required: true,
					},
				},
				Action: cleanupAction,
			},
		},
	}

	if err := root.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
