package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/openflock/flockbase/archive"
	"github.com/openflock/flockbase/job"
	"github.com/openflock/flockbase/store"
	"github.com/openflock/flockbase/twitter"
	"github.com/openflock/flockbase/utils"
	Logger "github.com/openflock/flockbase/utils/log"
)

// options collects the flag values shared across subcommands. One subcommand
// runs per process, so a single instance is enough.
var options struct {
	bestEffort   bool
	allowMissing bool
	skipResolve  bool
	batchSize    int
	maxTweets    int
	oldTweets    bool

	archiveDir string
	s3Bucket   string
	s3Region   string
	s3Prefix   string

	yes  bool
	full bool
}

// addTargetFlags attaches the flags every target-taking job understands.
func addTargetFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVarP(&options.bestEffort, "best-effort", "b", false,
		"skip targets that fail terminally instead of aborting the job")
	flags.BoolVarP(&options.allowMissing, "allow-missing", "p", false,
		"tolerate targets the resolver cannot map to users")
	flags.BoolVar(&options.skipResolve, "skip-resolve", false,
		"resolve targets from the database only, never the api")
}

func addArchiveFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&options.archiveDir, "archive-dir", "",
		"archive each fetched page's raw json under this directory")
	flags.StringVar(&options.s3Bucket, "archive-s3-bucket", "",
		"archive each fetched page's raw json to this s3 bucket")
	flags.StringVar(&options.s3Region, "archive-s3-region", "us-west-1",
		"region of the archive bucket")
	flags.StringVar(&options.s3Prefix, "archive-s3-prefix", "",
		"key prefix inside the archive bucket")
}

// buildConfig assembles the job dependencies from flags and environment.
// Credentials are loaded (and possibly minted) only when the command
// actually talks to the api, so database-only commands run offline.
func buildConfig(ctx context.Context, needsDb, needsApi bool) (job.Config, error) {
	config := job.Config{
		BestEffort:   options.bestEffort,
		AllowMissing: options.allowMissing,
		BatchSize:    options.batchSize,
		MaxTweets:    options.maxTweets,
		OldTweets:    options.oldTweets,
		Yes:          options.yes,
	}
	if options.skipResolve {
		config.ResolveMode = job.ResolveSkip
	}

	if needsDb {
		db, err := utils.GetDBConnection()
		if err != nil {
			return job.Config{}, errors.Wrap(err, "cannot connect to the database")
		}
		config.Store = store.NewStore(db)
	}

	if needsApi {
		creds, err := twitter.LoadCredentialsFromEnv(ctx)
		if err != nil {
			return job.Config{}, err
		}
		pool, err := twitter.NewCredentialPool(creds)
		if err != nil {
			return job.Config{}, err
		}
		config.Client = twitter.NewClient(http.DefaultClient, pool)
	}

	switch {
	case options.archiveDir != "":
		pages, err := archive.NewLocalStore(options.archiveDir)
		if err != nil {
			return job.Config{}, errors.Wrap(err, "cannot open the archive directory")
		}
		config.Archive = pages
	case options.s3Bucket != "":
		pages, err := archive.NewS3Store(options.s3Region, options.s3Bucket, options.s3Prefix)
		if err != nil {
			return job.Config{}, errors.Wrap(err, "cannot open the archive bucket")
		}
		config.Archive = pages
	}

	return config, nil
}

// runJob builds the dependencies, runs one job and prints its summary as
// json on stdout. A failed run still prints the summary before the error
// decides the exit code.
func runJob(cmd *cobra.Command, needsDb, needsApi bool, build func(job.Config) (job.Job, error)) error {
	ctx := cmd.Context()
	config, err := buildConfig(ctx, needsDb, needsApi)
	if err != nil {
		return err
	}

	j, err := build(config)
	if err != nil {
		return err
	}

	summary, runErr := j.Run(ctx)
	if summary != nil {
		printSummary(summary)
	}
	return runErr
}

func printSummary(summary *job.Summary) {
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		Logger.Log.Errorln("cannot render the job summary:", err)
		return
	}
	fmt.Println(string(out))
}
