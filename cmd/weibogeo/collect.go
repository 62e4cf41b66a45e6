package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weibogeo/pkg/auth"
	"weibogeo/pkg/checkpoint"
	"weibogeo/pkg/collector"
	"weibogeo/pkg/config"
	"weibogeo/pkg/query"
	"weibogeo/pkg/ratelimit"
	"weibogeo/pkg/storage"
	"weibogeo/pkg/weibo"
)

var (
	collectInput   string
	collectExport  string
	collectRunName string
	collectProfile string
	collectPageCap int
	collectResume  bool
	collectFresh   bool
	collectNoStore bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Harvest posts for geocoded places",
	Long: `Page through the container API for every geocoded place in the input
CSV and store the harvested posts.

Each place is paged until its result set is exhausted or the page cap
is reached. A place that keeps failing is recorded as failed and the
run moves on; one bad place never kills a run. Interrupting with
Ctrl-C stops after the current page and leaves a valid partial summary.`,
	Example: `  # Collect with stored credentials
  weibogeo collect -i geocoded.csv

  # Resume an interrupted run, then export a CSV of all posts
  weibogeo collect -i geocoded.csv --run beijing --resume --export posts.csv

  # Limit each place to 10 pages
  weibogeo collect -i geocoded.csv --page-cap 10`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().StringVarP(&collectInput, "input", "i", "geocoded.csv", "input CSV of geocoded places")
	collectCmd.Flags().StringVar(&collectExport, "export", "", "also export collected posts to a CSV file")
	collectCmd.Flags().StringVar(&collectRunName, "run", "default", "run name, keys the resume checkpoint")
	collectCmd.Flags().StringVarP(&collectProfile, "profile", "p", "", "use a specific stored session profile")
	collectCmd.Flags().IntVar(&collectPageCap, "page-cap", 0, "maximum pages per place (0 uses the configured cap)")
	collectCmd.Flags().BoolVar(&collectResume, "resume", false, "skip places completed by a previous run with the same name")
	collectCmd.Flags().BoolVar(&collectFresh, "fresh", false, "forget the named run's checkpoint before starting")
	collectCmd.Flags().BoolVar(&collectNoStore, "no-store", false, "skip the database, keep results in memory only")
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if collectPageCap > 0 {
		cfg.Collector.PageCap = collectPageCap
	}
	if err := resolveSession(cfg); err != nil {
		return err
	}

	locations, err := readGeocodedLocations(collectInput)
	if err != nil {
		return err
	}
	var targets []query.Target
	for _, loc := range locations {
		target, err := query.FromLocation(loc)
		if err != nil {
			log.WarnWithFields("skipping location without coordinates", map[string]interface{}{
				"location": loc.Name,
			})
			continue
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no geocoded locations in %s", collectInput)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	client := weibo.NewClient(cfg, limiter, log)
	controller := collector.NewController(client, cfg.Collector, log)

	var sink collector.Sink
	if !collectNoStore {
		db, err := storage.NewDatabase(cfg.Storage.DatabasePath, log)
		if err != nil {
			return err
		}
		defer db.Close()
		sink = db
	}

	var checkpoints collector.Checkpointer
	if collectResume || collectFresh {
		manager, err := checkpoint.NewManager(cfg.Storage.DataDir, collectRunName, log)
		if err != nil {
			return err
		}
		if collectFresh {
			if err := manager.Clear(); err != nil {
				return err
			}
		}
		if done := len(manager.Progress()); done > 0 {
			fmt.Printf("Resuming run %q: %d locations already finished\n", collectRunName, done)
		}
		checkpoints = manager
	}

	runner := collector.NewRunner(controller, sink, checkpoints, log)
	summary := runner.Run(ctx, targets)

	printSummary(summary)

	if collectExport != "" {
		var posts []weibo.Post
		for _, result := range summary.Results {
			posts = append(posts, result.Posts...)
		}
		if err := writePostsCSV(collectExport, posts); err != nil {
			return err
		}
		fmt.Printf("Exported %d posts -> %s\n", len(posts), collectExport)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("run interrupted, partial results saved")
	}
	return nil
}

// resolveSession fills the config cookie from stored credentials when
// the config and environment did not provide one.
func resolveSession(cfg *config.Config) error {
	if cfg.Weibo.Cookie != "" && collectProfile == "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("opening credential stores: %w", err)
	}

	var profile *auth.Profile
	if collectProfile != "" {
		profile, err = manager.Retrieve(collectProfile)
	} else {
		profile, err = manager.RetrieveDefault()
	}
	if err != nil {
		return fmt.Errorf("no session available: run 'weibogeo auth login' or set WEIBOGEO_COOKIE: %w", err)
	}

	cfg.Weibo.Cookie = profile.Cookie
	if profile.UserAgent != "" {
		cfg.Weibo.UserAgent = profile.UserAgent
	}
	return nil
}

func printSummary(summary *collector.RunSummary) {
	fmt.Printf("\nRun finished in %s\n", summary.Duration().Round(time.Second))
	fmt.Printf("  locations: %d ok, %d failed\n", summary.LocationsCompleted, summary.LocationsFailed)
	fmt.Printf("  posts:     %d\n", summary.TotalPosts)
	fmt.Printf("  requests:  %d (%.0f%% ok)\n", summary.TotalRequests, summary.SuccessRate()*100)
	for _, result := range summary.Results {
		status := string(result.StopReason)
		if result.Err != nil {
			status += ": " + result.Err.Error()
		}
		fmt.Printf("  - %s: %d posts, %d pages [%s]\n",
			result.Location, len(result.Posts), result.PagesFetched, status)
	}
}
