package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/havenhq/chronicle/adapters"
	"github.com/havenhq/chronicle/cli/config"
	"github.com/havenhq/chronicle/cli/styles"
	"github.com/havenhq/chronicle/cli/ui"
	"github.com/havenhq/chronicle/domain"
)

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run diagnostic checks",
		Long: `Run diagnostic checks on your chronicle setup.

This command verifies:
  • Configuration file validity
  • Event type registration
  • Database connectivity
  • Event store schema
  • Publisher settings`,
		Aliases: []string{"diag", "doctor"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, rt)
		},
	}
}

func runDiagnose(cmd *cobra.Command, rt *Runtime) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.SimpleBanner())
	fmt.Fprintln(out, styles.Title.Render("Running Diagnostics"))
	fmt.Fprintln(out)

	checks := []DiagnosticCheck{
		{Name: "Go Version", Check: checkGoVersion},
		{Name: "Configuration", Check: checkConfiguration},
		{Name: "Event Types", Check: checkEventTypes},
		{Name: "Database Connection", Check: checkDatabaseConnection},
		{Name: "Event Store Schema", Check: checkEventStoreSchema},
		{Name: "Publisher", Check: checkPublisher},
	}

	results := make([]CheckResult, 0, len(checks))
	failed := 0
	warned := 0

	for _, check := range checks {
		var result CheckResult
		err := ui.Spin(cmd.Context(), cmd.InOrStdin(), out, "Checking "+check.Name+"...", "",
			func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				result = check.Check(ctx, rt)
				return nil
			})
		if err != nil {
			return err
		}
		results = append(results, result)

		var status string
		switch result.Status {
		case StatusOK:
			status = styles.SuccessStyle.Render("OK")
		case StatusWarning:
			status = styles.WarningStyle.Render("WARNING")
			warned++
		default:
			status = styles.ErrorStyle.Render("FAILED")
			failed++
		}
		fmt.Fprintf(out, "  %s %s: %s\n", styles.IconDot, check.Name, status)

		if result.Message != "" {
			fmt.Fprintf(out, "    %s\n", styles.Muted.Render(result.Message))
		}
	}

	fmt.Fprintln(out, ui.Divider(50))

	if failed == 0 && warned == 0 {
		fmt.Fprintln(out, styles.FormatSuccess("All checks passed! Your chronicle setup is healthy."))
		return nil
	}

	fmt.Fprintln(out, styles.FormatWarning("Some checks failed or have warnings."))
	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.Title.Render("Recommendations:"))
	for _, r := range results {
		if r.Recommendation != "" {
			fmt.Fprintf(out, "  %s %s\n", styles.IconDot, r.Recommendation)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%s failed", styles.FormatCount(failed, "check", "checks"))
	}
	return nil
}

// CheckStatus represents the status of a diagnostic check
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Name           string
	Status         CheckStatus
	Message        string
	Recommendation string
}

// newCheckResult creates a CheckResult with the given name.
func newCheckResult(name string, status CheckStatus, message string) CheckResult {
	return CheckResult{Name: name, Status: status, Message: message}
}

// withRecommendation adds a recommendation to a CheckResult.
func (r CheckResult) withRecommendation(rec string) CheckResult {
	r.Recommendation = rec
	return r
}

// DiagnosticCheck represents a diagnostic check function
type DiagnosticCheck struct {
	Name  string
	Check func(ctx context.Context, rt *Runtime) CheckResult
}

func checkGoVersion(_ context.Context, _ *Runtime) CheckResult {
	return newCheckResult("Go Version", StatusOK, runtime.Version())
}

func checkConfiguration(_ context.Context, rt *Runtime) CheckResult {
	const name = "Configuration"
	source := rt.ConfigPath
	if source == "" {
		source = "defaults"
	}

	if problems := rt.Config.Validate(); len(problems) > 0 {
		return newCheckResult(name, StatusError, fmt.Sprintf("%s: %s", source, strings.Join(problems, "; "))).
			withRecommendation("Fix " + config.ConfigFileName + " or the CHRONICLE_* environment")
	}
	if rt.ConfigPath == "" {
		return newCheckResult(name, StatusWarning, "No "+config.ConfigFileName+" found, using defaults").
			withRecommendation("Run 'chronicle init' to create a configuration file")
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("%s (driver: %s, codec: %s)",
		source, rt.Config.Database.Driver, rt.Config.Database.Codec))
}

func checkEventTypes(_ context.Context, _ *Runtime) CheckResult {
	registry := domain.NewRegistry()
	return newCheckResult("Event Types", StatusOK,
		styles.FormatCount(registry.Count(), "registered type", "registered types"))
}

func checkDatabaseConnection(ctx context.Context, rt *Runtime) CheckResult {
	const name = "Database Connection"
	if rt.Config.Database.Driver == config.DriverMemory {
		return newCheckResult(name, StatusOK, "Using in-memory driver (no connection needed)")
	}

	session, err := rt.Open(ctx)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Verify database.url and credentials")
	}
	defer session.Close()

	if hc, ok := session.Adapter.(adapters.HealthChecker); ok {
		if err := hc.Ping(ctx); err != nil {
			return newCheckResult(name, StatusError, err.Error()).withRecommendation("Check database server status")
		}
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("Connected (%s)", rt.Config.Database.Driver))
}

func checkEventStoreSchema(ctx context.Context, rt *Runtime) CheckResult {
	const name = "Event Store Schema"
	if rt.Config.Database.Driver == config.DriverMemory {
		return newCheckResult(name, StatusOK, "Skipped (memory driver)")
	}

	session, err := rt.Open(ctx)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Check database connection")
	}
	defer session.Close()

	// A lookup on an unused id only touches the events table.
	if _, err := session.Store.Version(ctx, uuid.New()); err != nil {
		if errors.Is(err, adapters.ErrStorage) {
			return newCheckResult(name, StatusWarning, err.Error()).
				withRecommendation("Run 'chronicle migrate' to create the events table")
		}
		return newCheckResult(name, StatusError, err.Error())
	}
	return newCheckResult(name, StatusOK, "Events table is readable")
}

func checkPublisher(_ context.Context, rt *Runtime) CheckResult {
	const name = "Publisher"
	pub := rt.Config.Publish
	switch pub.Kind {
	case "", config.PublishNone:
		return newCheckResult(name, StatusOK, "Publishing disabled")
	case config.PublishKafka:
		if len(pub.KafkaBrokers) == 0 || pub.KafkaTopic == "" {
			return newCheckResult(name, StatusError, "Kafka brokers or topic missing").
				withRecommendation("Set publish.kafka_brokers and publish.kafka_topic")
		}
		return newCheckResult(name, StatusOK, fmt.Sprintf("Kafka topic %s on %s", pub.KafkaTopic, strings.Join(pub.KafkaBrokers, ",")))
	case config.PublishWebhook:
		if pub.WebhookURL == "" {
			return newCheckResult(name, StatusError, "Webhook URL missing").
				withRecommendation("Set publish.webhook_url")
		}
		return newCheckResult(name, StatusOK, "Webhook "+pub.WebhookURL)
	default:
		return newCheckResult(name, StatusError, "Unknown publisher "+pub.Kind)
	}
}

// NewTypesCommand creates the types command
func NewTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the registered event types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := domain.NewRegistry()
			known := registry.KnownTypes()

			rows := make([][]string, 0, len(known))
			for _, t := range known {
				rows = append(rows, []string{t})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.Table([]string{"Event Type"}, rows))
			fmt.Fprintln(out, styles.Muted.Render(styles.FormatCount(len(known), "type", "types")))
			return nil
		},
	}
}

// NewVersionCommand creates the version command
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := [][]string{
				{"Version", version},
				{"Commit", commit},
				{"Built", date},
				{"Go", runtime.Version()},
				{"OS/Arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.Table(nil, rows))
			return nil
		},
	}
}
