// Command insight-viewer polls the similarity insight of one contest photo
// until it settles, then writes the plot as HTML and PNG. With -listen it
// also serves the live state over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/config"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/history"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/monitoring"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/render"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/version"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/viewer"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON or YAML config file (defaults are built in)")
	apiBase     = flag.String("api", "", "API base URL (overrides config)")
	contestID   = flag.Int64("contest", 0, "Contest ID")
	photoID     = flag.Int64("photo", 0, "Photo ID of your submission")
	token       = flag.String("token", "", "Bearer token (overrides config)")
	interval    = flag.Duration("interval", 0, "Poll interval (overrides config)")
	outDir      = flag.String("out", "", "Directory for the HTML and PNG reports (overrides config)")
	historyDB   = flag.String("history-db", "", "SQLite file journalling every poll (overrides config)")
	listen      = flag.String("listen", "", "Serve the live view on this address, e.g. :8090")
	assetsHost  = flag.String("assets-host", render.DefaultAssetsHost, "Where the HTML report loads echarts from")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetLogger(log.Printf)
	os.Exit(run())
}

// run polls until the session settles and returns the exit status.
func run() int {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *contestID <= 0 || *photoID <= 0 {
		log.Fatal("-contest and -photo are required")
	}

	opts := []insight.Option{
		insight.WithTimeout(cfg.GetRequestTimeout()),
		insight.WithBearerToken(cfg.GetBearerToken()),
	}
	if name, value, ok := cfg.GetSessionCookie(); ok {
		opts = append(opts, insight.WithSessionCookie(name, value))
	}
	client := insight.NewClient(cfg.GetAPIBaseURL(), opts...)
	log.Printf("polling %s every %s", client.Endpoint(*contestID, *photoID), cfg.GetPollInterval())

	var store *history.Store
	if path := cfg.GetHistoryPath(); path != "" {
		store, err = history.Open(path)
		if err != nil {
			log.Fatalf("failed to open history database: %v", err)
		}
		defer store.Close()
	}

	writer := render.NewWriter(nil, cfg.GetOutputDir())
	writer.AssetsHost = *assetsHost

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var live *liveView
	sessionOpts := viewer.Options{
		Interval:         cfg.GetPollInterval(),
		Pending:          cfg.GetPendingStatuses(),
		Params:           cfg.GetProjectionParams(),
		OverlapThreshold: cfg.GetOverlapThreshold(),
		OnSnapshot: func(s viewer.Snapshot) {
			logSnapshot(s)
			if live != nil {
				live.update(s)
			}
			if s.Phase == viewer.Ready {
				paths, err := writer.Write(render.NewReport(s.ContestID, s.PhotoID, s.Result, s.Model))
				if err != nil {
					log.Printf("failed to write report: %v", err)
					return
				}
				log.Printf("report written: %s, %s", paths.HTML, paths.PNG)
			}
		},
		OnUnauthorized: func(returnPath string) {
			log.Printf("session expired: sign in again, then return to %s", returnPath)
		},
	}
	if store != nil {
		sessionOpts.Recorder = store
	}
	session := viewer.NewSession(client, *contestID, *photoID, sessionOpts)
	defer session.Close()

	var server *http.Server
	if *listen != "" {
		refresh := int(math.Ceil(cfg.GetPollInterval().Seconds()))
		live = newLiveView(session.Snapshot(), store, *assetsHost, refresh)
		server = &http.Server{Addr: *listen, Handler: live.routes(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Printf("live view on http://%s/", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
				stop()
			}
		}()
	}

	session.Start(ctx)
	final, err := session.Wait(ctx)
	if err != nil {
		log.Printf("interrupted: %v", err)
	}

	if server != nil && err == nil {
		log.Printf("polling finished (%s); serving until interrupted", final.Phase)
		<-ctx.Done()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}

	return exitCode(final)
}

// loadConfig reads -config (or the built-in defaults) and applies flag
// overrides.
func loadConfig() (*config.InsightConfig, error) {
	cfg := config.DefaultInsightConfig()
	if *configPath != "" {
		loaded, err := config.LoadInsightConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyOverrides(cfg)
	return cfg, cfg.Validate()
}

func applyOverrides(cfg *config.InsightConfig) {
	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	set(&cfg.APIBaseURL, *apiBase)
	set(&cfg.BearerToken, *token)
	set(&cfg.OutputDir, *outDir)
	set(&cfg.HistoryPath, *historyDB)
	if *interval > 0 {
		set(&cfg.PollInterval, interval.String())
	}
}

func logSnapshot(s viewer.Snapshot) {
	if s.Fetching {
		return
	}
	switch s.Phase {
	case viewer.Ready:
		if s.Result != nil && s.Result.Summary != nil {
			sum := s.Result.Summary
			log.Printf("ready after %d attempts: matchScore=%d maxSimilarity=%.4f avgTop3=%.4f",
				s.Attempt, sum.MatchScore, sum.MaxSimilarity, sum.AvgTop3)
		} else {
			log.Printf("ready after %d attempts", s.Attempt)
		}
		if s.Message != "" {
			log.Print(s.Message)
		}
		if c := s.Result.CommentText(); c != "" {
			log.Printf("comment: %s", c)
		}
	case viewer.Failed:
		log.Printf("failed on attempt %d: %s (%v)", s.Attempt, s.Message, s.Err)
	default:
		log.Printf("attempt %d: %s: %s", s.Attempt, s.Status, s.Message)
	}
}

// exitCode maps the final phase onto the process exit status.
func exitCode(s viewer.Snapshot) int {
	switch s.Phase {
	case viewer.Ready:
		return 0
	case viewer.Failed:
		if errors.Is(s.Err, insight.ErrUnauthorized) {
			return 3
		}
		return 1
	default:
		return 2
	}
}
