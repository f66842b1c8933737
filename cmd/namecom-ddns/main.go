package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	"github.com/yuriy-kovalchuk/namecom-ddns/internal/config"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/controller"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/dns"
	_ "github.com/yuriy-kovalchuk/namecom-ddns/internal/dns/providers"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/ipcheck"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/logging"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/metrics"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/telemetry"
)

var Version = "dev"

func main() {
	if err := newRootCommand().ExecuteContext(signals.SetupSignalHandler()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath   string
	host         string
	domain       string
	interval     int
	testLoops    int
	log          bool
	logDir       string
	ipCheckURL   string
	strictWrites bool
	metricsAddr  string

	zap zap.Options
}

func newRootCommand() *cobra.Command {
	opts := &options{zap: zap.Options{Development: true}}

	cmd := &cobra.Command{
		Use:           "namecom-ddns",
		Short:         "Update a name.com DNS A record with the external IP address",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.Flags(), opts)
		},
	}
	opts.bindFlags(cmd.Flags())

	cmd.AddCommand(newVersionCommand())
	return cmd
}

func (o *options) bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.configPath, "config", "", "Path to an optional YAML config file; flags override its values")
	flags.StringVarP(&o.host, "name", "n", "", "Host name relative to the domain (empty or @ for the apex)")
	flags.StringVarP(&o.domain, "domain", "d", "", "Domain name")
	flags.IntVarP(&o.interval, "interval", "i", config.DefaultInterval, "Polling interval in seconds")
	flags.IntVarP(&o.testLoops, "test-loops", "t", 0, "Test mode. Run the loop this many times and exit (0 runs forever)")
	flags.BoolVarP(&o.log, "log", "l", false, "Also log to "+logging.LogFileName)
	flags.StringVar(&o.logDir, "logdir", config.DefaultLogDir, "Directory of "+logging.LogFileName)
	flags.StringVar(&o.ipCheckURL, "ip-check-url", "", "Endpoint answering with the external IP as plain text (default "+ipcheck.DefaultURL+")")
	flags.BoolVar(&o.strictWrites, "strict-writes", false, "Only remember a new IP once name.com accepted it, retrying failed writes on the next poll")
	flags.StringVar(&o.metricsAddr, "metrics-bind-address", metrics.Disabled, "Address of the metrics and health endpoint (0 disables it)")

	goflags := flag.NewFlagSet("zap", flag.ContinueOnError)
	o.zap.BindFlags(goflags)
	flags.AddGoFlagSet(goflags)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "namecom-ddns %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "DNS providers: %v\n", dns.Registered())
		},
	}
}

// loadConfig reads the config file when one is given and applies every flag
// set on the command line on top of it.
func (o *options) loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFromPath(o.configPath); err != nil {
			return nil, err
		}
	}

	if flags.Changed("name") {
		cfg.Host = o.host
	}
	if flags.Changed("domain") {
		cfg.Domain = o.domain
	}
	if flags.Changed("interval") {
		cfg.Interval = o.interval
	}
	if flags.Changed("test-loops") {
		cfg.TestLoops = o.testLoops
	}
	if flags.Changed("log") {
		cfg.Log = o.log
	}
	if flags.Changed("logdir") {
		cfg.LogDir = o.logDir
	}
	if flags.Changed("ip-check-url") {
		cfg.IPCheckURL = o.ipCheckURL
	}
	if flags.Changed("strict-writes") {
		cfg.StrictWrites = o.strictWrites
	}
	if flags.Changed("metrics-bind-address") {
		cfg.MetricsBindAddress = o.metricsAddr
	}
	return cfg, nil
}

func run(ctx context.Context, flags *pflag.FlagSet, opts *options) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := opts.loadConfig(flags)
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logDir := ""
	if cfg.Log {
		logDir = cfg.LogDir
	}
	log, closer, err := logging.New(afero.NewOsFs(), &opts.zap, logDir)
	if err != nil {
		return fmt.Errorf("unable to set up logging: %w", err)
	}
	defer closer.Close()
	ctrllog.SetLogger(log)

	setupLog := log.WithName("setup")

	creds, err := cfg.ResolveCredentials()
	if err != nil {
		setupLog.Error(err, "missing name.com credentials")
		return err
	}

	setupLog.Info("starting namecom-ddns", "version", Version, "fqdn", dns.JoinHostname(cfg.Host, cfg.Domain))

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.OptionsFromEnv(Version))
	if err != nil {
		return fmt.Errorf("unable to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			setupLog.Error(err, "shutting down tracing")
		}
	}()

	provider, err := dns.NewProvider(cfg.DNS.Provider, log.WithName("dns-"+cfg.DNS.Provider), cfg.ProviderSettings(creds))
	if err != nil {
		return fmt.Errorf("unable to create DNS provider: %w", err)
	}
	setupLog.Info("created DNS provider", "provider", cfg.DNS.Provider)

	reconciler := &controller.RecordReconciler{
		DNS:          provider,
		IP:           ipcheck.New(log.WithName("ipcheck"), cfg.IPCheckURL, 30*time.Second),
		Log:          log.WithName("record-controller"),
		Domain:       cfg.Domain,
		Host:         cfg.Host,
		StrictWrites: cfg.StrictWrites,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		checks := map[string]healthz.Checker{"reconciler": reconciler.ReadyCheck}
		if err := metrics.Serve(runCtx, log.WithName("metrics"), cfg.MetricsBindAddress, checks); err != nil {
			setupLog.Error(err, "metrics endpoint stopped")
		}
	}()

	var schedule controller.Schedule
	if cfg.TestLoops > 0 {
		setupLog.Info("test mode, running a fixed number of polls", "polls", cfg.TestLoops)
		schedule = controller.Countdown(cfg.TestLoops)
	} else {
		schedule = controller.Forever(cfg.PollInterval(), clock.RealClock{})
	}

	reconciler.Run(runCtx, schedule)
	return nil
}
