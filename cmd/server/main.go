package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vidrelay/vidrelay/internal/api"
	"github.com/vidrelay/vidrelay/internal/config"
	"github.com/vidrelay/vidrelay/internal/content"
	"github.com/vidrelay/vidrelay/internal/controller"
	"github.com/vidrelay/vidrelay/internal/discovery"
	"github.com/vidrelay/vidrelay/internal/download"
	"github.com/vidrelay/vidrelay/internal/notify"
	"github.com/vidrelay/vidrelay/internal/publish"
	"github.com/vidrelay/vidrelay/internal/retry"
	"github.com/vidrelay/vidrelay/internal/runlock"
	"github.com/vidrelay/vidrelay/internal/stage"
	"github.com/vidrelay/vidrelay/internal/store"
	"github.com/vidrelay/vidrelay/internal/transcribe"
)

func main() {
	once := flag.Bool("once", false, "run one pipeline pass and exit")
	flag.Parse()

	// Optional .env for local runs.
	_ = godotenv.Load()

	cfg := config.Load()

	// One pipeline process per data directory.
	lock, err := runlock.Acquire(cfg.LockDir())
	if err != nil {
		var held *runlock.HeldError
		if errors.As(err, &held) {
			log.Printf("skipping run: %v", err)
			return
		}
		log.Fatalf("acquire run lock: %v", err)
	}
	defer lock.Release()

	// Open SQLite.
	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	// Initialize store.
	st, err := store.New(db)
	if err != nil {
		log.Fatalf("init store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Close attempt rows a previous run left open.
	if n, err := st.CloseDanglingAttempts(ctx); err != nil {
		log.Printf("warning: close dangling attempts: %v", err)
	} else if n > 0 {
		log.Printf("closed %d dangling attempts from a previous run", n)
	}

	// Build pipeline collaborators.
	downloader := download.NewClient(cfg.YtDlpPath, cfg.MediaDir(), cfg.MaxHeight)
	transcriber := transcribe.NewTool(cfg.TranscribeCommand, cfg.SubtitleDir())

	var modelClient content.ModelClient
	if cfg.UseStubs() {
		log.Printf("no %s credentials set, using stub model client", cfg.LLMProvider)
		modelClient = &content.StubModelClient{}
	} else {
		switch cfg.LLMProvider {
		case "claude":
			modelClient = content.NewClaudeClient(cfg.AnthropicKey, content.WithClaudeModel(cfg.AnthropicModel))
		case "gemini":
			modelClient = content.NewGeminiClient(cfg.GeminiKey, content.WithGeminiModel(cfg.GeminiModel))
		case "ollama":
			client := content.NewOllamaClient(cfg.OllamaURL, content.WithOllamaModel(cfg.OllamaModel))
			hcCtx, hcCancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
			if err := client.Healthcheck(hcCtx); err != nil {
				log.Printf("warning: ollama healthcheck: %v", err)
			}
			hcCancel()
			modelClient = client
		default:
			modelClient = content.NewOpenAIClient(cfg.OpenAIKey,
				content.WithModel(cfg.OpenAIModel),
				content.WithTimeout(cfg.HTTPTimeout))
		}
		log.Printf("using %s model client", cfg.LLMProvider)
	}
	generator := content.NewGenerator(modelClient, cfg.ContentLanguage)

	// The publish account decides which browser profile gets claimed.
	profileDir := ""
	if accounts, err := config.LoadAccounts(cfg.AccountsFile); err != nil {
		log.Printf("warning: load accounts: %v, publishing without a profile claim", err)
	} else if acct, err := accounts.Get(cfg.PublishAccount); err != nil {
		log.Printf("warning: %v, publishing without a profile claim", err)
	} else {
		profileDir = acct.ChromeProfile
	}
	publisher := publish.NewPublisher(cfg.PublishCommand, cfg.PublishAccount, profileDir)

	var notifier stage.Notifier
	if cfg.HasSMTP() {
		notifier = notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailTo)
	} else {
		log.Println("SMTP not configured, notifications go to the log")
		notifier = notify.LogNotifier{}
	}

	var feed controller.Feed
	if cfg.HasDiscovery() {
		client, err := discovery.NewClient(ctx, discovery.Auth{
			APIKey:       cfg.YouTubeAPIKey,
			ClientID:     cfg.YouTubeClientID,
			ClientSecret: cfg.YouTubeClientSecret,
			RefreshToken: cfg.YouTubeRefreshToken,
		}, cfg.PlaylistID, st)
		if err != nil {
			log.Fatalf("youtube client: %v", err)
		}
		feed = client
	} else {
		log.Println("YouTube discovery not configured, processing existing records only")
	}

	// Warn about missing external tools, then run with what is there. A
	// missing binary surfaces as stage failures, not a dead process.
	for _, check := range []func() error{downloader.CheckBinary, transcriber.CheckBinary, publisher.CheckBinary} {
		if err := check(); err != nil {
			log.Printf("warning: %v", err)
		}
	}

	executor := stage.NewExecutor(downloader, transcriber, generator, publisher, notifier, stage.Options{
		ContentDir:    cfg.ContentDir(),
		GenerateNotes: cfg.GenerateNotes,
		Timeouts: stage.Timeouts{
			Download:   cfg.DownloadTimeout,
			Transcribe: cfg.TranscribeTimeout,
			Generate:   cfg.GenerateTimeout,
			Publish:    cfg.PublishTimeout,
			Notify:     cfg.NotifyTimeout,
		},
	})
	defer executor.Close()

	policy := retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
	ctrl := controller.New(st, feed, executor, notifier, policy, controller.Options{
		MaxVideoDuration: cfg.MaxVideoDuration,
		Interval:         cfg.PollInterval,
		MailTimeout:      cfg.NotifyTimeout,
		SummaryMail:      cfg.HasSMTP(),
	})

	if *once {
		sum, err := ctrl.RunOnce(ctx)
		if err != nil {
			log.Fatalf("pass failed: %v", err)
		}
		log.Printf("pass complete: discovered=%d skipped=%d advanced=%d retrying=%d failed=%d errors=%d",
			sum.Discovered, sum.Skipped, len(sum.Advanced), len(sum.Retrying), len(sum.Failed), len(sum.Errors))
		return
	}

	// Start the controller in background.
	go ctrl.Run(ctx)

	// Start the status API.
	srv := api.New(st, cfg.CORSOrigin)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Handler(),
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down...")
		cancel()
		httpServer.Shutdown(context.Background())
	}()

	fmt.Printf("vidrelay server listening on http://localhost:%s\n", cfg.Port)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
