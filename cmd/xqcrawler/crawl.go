package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"xqcrawler/pkg/auth"
	"xqcrawler/pkg/browser"
	"xqcrawler/pkg/checkpoint"
	"xqcrawler/pkg/config"
	"xqcrawler/pkg/crawler"
	"xqcrawler/pkg/logger"
	"xqcrawler/pkg/proxy"
	"xqcrawler/pkg/report"
	"xqcrawler/pkg/smscode"
	"xqcrawler/pkg/storage"
	"xqcrawler/pkg/ui"
	"xqcrawler/pkg/xueqiu"
)

var (
	// Crawl command flags
	crawlType   string
	keywords    []string
	statusIDs   []string
	creatorIDs  []string
	strategy    string
	maxItems    int
	maxPages    int
	maxComments int
	concurrency int
	noComments  bool
	resume      bool
	loginType   string
	phone       string
	accountName string
	backend     string
	dsn         string
	outputDir   string
	headless    bool
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl posts, comments and creators from xueqiu",
	Long: `Log in (or reuse a saved session) and crawl xueqiu.

The session is taken from, in order:
  - the live browser profile, if it is already logged in
  - the account saved with 'xqcrawler auth set' or by an earlier run
  - a fresh login using --login-type (qrcode, phone or cookie)

Phone login waits for the SMS code to be posted to the local intake
server (see sms.listen_addr), for example:

  curl -XPOST localhost:8089/sms/code -d '{"phone":"13800000000","code":"123456"}'`,
	Example: `  # Search two keywords, storing JSONL under ./data
  xqcrawler crawl --type search --keywords 茅台,宁德时代

  # Fetch specific posts into PostgreSQL
  xqcrawler crawl --type detail --ids 2801,2802 --storage postgres --dsn postgres://...

  # Walk a creator's timeline without comments
  xqcrawler crawl --type creator --creators 1234567890 --no-comments

  # Resume an interrupted search
  xqcrawler crawl --keywords 白酒 --resume`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	f := crawlCmd.Flags()
	f.StringVarP(&crawlType, "type", "t", "", "crawl mode (search, detail, creator)")
	f.StringSliceVarP(&keywords, "keywords", "k", nil, "search keywords, comma separated")
	f.StringSliceVar(&statusIDs, "ids", nil, "status ids for detail mode")
	f.StringSliceVar(&creatorIDs, "creators", nil, "creator user ids for creator mode")
	f.StringVar(&strategy, "strategy", "", "search strategy (auto, api, dom)")
	f.IntVar(&maxItems, "max-items", 0, "maximum posts per target")
	f.IntVar(&maxPages, "max-pages", 0, "maximum pages per target")
	f.IntVar(&maxComments, "max-comments", 0, "maximum comments per post")
	f.IntVar(&concurrency, "concurrency", 0, "concurrent comment workers")
	f.BoolVar(&noComments, "no-comments", false, "skip comment crawling")
	f.BoolVar(&resume, "resume", false, "resume from saved checkpoints")
	f.StringVar(&loginType, "login-type", "", "login flow (qrcode, phone, cookie)")
	f.StringVar(&phone, "phone", "", "phone number for phone login")
	f.StringVarP(&accountName, "account", "a", "", "saved session account name")
	f.StringVar(&backend, "storage", "", "storage backend (jsonl, csv, postgres, memory)")
	f.StringVar(&dsn, "dsn", "", "PostgreSQL connection string")
	f.StringVarP(&outputDir, "output", "o", "", "output directory for file storage")
	f.BoolVar(&headless, "headless", true, "run the browser headless")
}

// crawlFlags collects the flags the user set, keyed the way
// config.MergeCommandLineFlags expects.
func crawlFlags(cmd *cobra.Command) map[string]interface{} {
	flags := globalFlags(cmd)
	set := func(name string, v interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = v
		}
	}

	set("type", crawlType)
	set("keywords", keywords)
	set("ids", statusIDs)
	set("creators", creatorIDs)
	set("strategy", strategy)
	set("max-items", maxItems)
	set("max-pages", maxPages)
	set("max-comments", maxComments)
	set("concurrency", concurrency)
	set("no-comments", noComments)
	set("resume", resume)
	set("login-type", loginType)
	set("phone", phone)
	set("account", accountName)
	set("storage", backend)
	set("dsn", dsn)
	set("output", outputDir)
	set("headless", headless)
	return flags
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, crawlFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("xqcrawler starting")

	ui.PrintInfo("Mode", cfg.Crawler.Type)
	ui.PrintInfo("Storage", cfg.Storage.Backend)

	notifier := ui.NewNotifier(cfg.Notifications.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := crawl(ctx, cfg, notifier, log)
	if err != nil {
		log.WithError(err).Error("Crawl failed")
		if cfg.Notifications.OnError {
			notifier.SendError("Crawl failed", err.Error())
		}
		if rep.RunID == "" {
			return err
		}
	}

	summary := ui.RunSummary{
		RunID:    rep.RunID,
		Mode:     rep.Mode,
		Status:   rep.Status,
		Posts:    rep.Counts.Posts,
		Comments: rep.Counts.Comments,
		Creators: rep.Counts.Creators,
		Failures: len(rep.Failures),
		Duration: rep.Duration(),
	}
	if cfg.Crawler.ReportDirectory != "" {
		summary.Report = filepath.Join(cfg.Crawler.ReportDirectory, rep.RunID+".json")
	}
	ui.PrintSummary(summary)

	if err != nil {
		return err
	}
	if rep.Status == report.StatusCompleted && cfg.Notifications.OnComplete {
		notifier.SendSuccess("Crawl finished", fmt.Sprintf("%d posts, %d comments", rep.Counts.Posts, rep.Counts.Comments))
	}
	return nil
}

// crawl wires the browser, API client, login flow and storage together and
// runs one crawl.
func crawl(ctx context.Context, cfg *config.Config, notifier *ui.Notifier, log logger.Logger) (report.Report, error) {
	clientOpts := xueqiu.OptionsFromConfig(cfg)
	browserOpts := browser.Options{
		Headless:    cfg.Browser.Headless,
		UserAgent:   cfg.Platform.UserAgent,
		UserDataDir: cfg.Browser.UserDataDir,
		ExecPath:    cfg.Browser.ExecPath,

		NavigateTimeout: cfg.Browser.NavigateTimeout,
	}

	if cfg.Proxy.Enabled {
		provider, err := proxy.NewStatic(cfg.Proxy.URLs)
		if err != nil {
			return report.Report{}, err
		}
		first, err := provider.Get(ctx)
		if err != nil {
			return report.Report{}, fmt.Errorf("failed to pick a proxy: %w", err)
		}
		browserOpts.ProxyURL = first.String()
		clientOpts.Proxy = provider
	}

	page, err := browser.NewChrome(ctx, browserOpts)
	if err != nil {
		ui.PrintError("Failed to start browser", err.Error())
		return report.Report{}, err
	}
	defer page.Close()

	store, err := storage.New(ctx, &cfg.Storage, log)
	if err != nil {
		ui.PrintError("Failed to open storage", err.Error())
		return report.Report{}, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close storage")
		}
	}()

	loginOpts := xueqiu.LoginOptionsFromConfig(cfg)
	if cfg.Login.Type == config.LoginQRCode {
		display := ui.NewQRFileDisplay(cfg.Login.QRDirectory, notifier)
		loginOpts.QR = display
		ui.PrintInfo("QR code", display.Path())
	}
	if cfg.Login.Type == config.LoginPhone {
		codes, stopSMS, err := startSMSIntake(ctx, cfg, log)
		if err != nil {
			return report.Report{}, err
		}
		defer stopSMS()
		loginOpts.Codes = codes
	}

	sessions, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Session store unavailable, sessions will not be saved")
		sessions = nil
	}

	checkpoints, err := checkpoint.NewManager(filepath.Join(cfg.Storage.OutputDir, "checkpoints"), log)
	if err != nil {
		log.WithError(err).Warn("Checkpoints disabled")
		checkpoints = nil
	}

	c, err := crawler.New(cfg, crawler.Deps{
		Page:        page,
		API:         xueqiu.NewClient(page, clientOpts, log),
		Login:       xueqiu.NewLogin(page, loginOpts, log),
		Store:       store,
		Sessions:    sessions,
		Checkpoints: checkpoints,
		Logger:      log,
	})
	if err != nil {
		return report.Report{}, err
	}
	return c.Run(ctx)
}

// startSMSIntake serves the SMS code endpoint for the phone login flow.
// The returned func stops the server and waits for it.
func startSMSIntake(ctx context.Context, cfg *config.Config, log logger.Logger) (*smscode.Cache, func(), error) {
	cache, err := smscode.NewCache(cfg.SMS.CacheSize, cfg.SMS.CodeTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create SMS code cache: %w", err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	done, err := smscode.NewServer(cache, log).Start(srvCtx, cfg.SMS.ListenAddr)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start SMS intake on %s: %w", cfg.SMS.ListenAddr, err)
	}
	ui.PrintInfo("SMS intake", "POST http://"+cfg.SMS.ListenAddr+"/sms/code")

	return cache, func() {
		cancel()
		if err := <-done; err != nil {
			log.WithError(err).Warn("SMS intake stopped with error")
		}
	}, nil
}
