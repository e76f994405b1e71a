package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/havenhq/chronicle/cli/config"
	"github.com/havenhq/chronicle/cli/styles"
	"github.com/havenhq/chronicle/cli/ui"
)

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	var (
		driver         string
		url            string
		codec          string
		publish        string
		force          bool
		nonInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a chronicle.yaml configuration file",
		Long: `Write a chronicle.yaml configuration file with defaults.

On a terminal a form asks for the driver, connection string, codec and
publisher, starting from the values given as flags. Pass --non-interactive
to take the flags as they are.

Examples:
  chronicle init                                  # Ask, starting from PostgreSQL
  chronicle init --driver sqlite --url events.db  # Local SQLite file
  chronicle init deploy --driver pq --force       # Overwrite deploy/chronicle.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			configPath := filepath.Join(absDir, config.ConfigFileName)
			if _, err := os.Stat(configPath); err == nil && !force {
				fmt.Fprintln(out, styles.FormatWarning(config.ConfigFileName+" already exists in this directory (use --force to overwrite)"))
				return nil
			}

			cfg := config.DefaultConfig()
			if driver != "" {
				cfg.Database.Driver = driver
			}
			if url != "" {
				cfg.Database.URL = url
			}
			if codec != "" {
				cfg.Database.Codec = codec
			}
			if publish != "" {
				cfg.Publish.Kind = publish
			}

			if shouldPrompt(nonInteractive, cmd.InOrStdin(), out) {
				fmt.Fprintln(out, ui.Banner())
				fmt.Fprintln(out)
				form := newInitForm(cfg).
					WithInput(cmd.InOrStdin()).
					WithOutput(out)
				if err := form.RunWithContext(cmd.Context()); err != nil {
					return err
				}
			}

			var problems []string
			for _, p := range cfg.Validate() {
				if !fromEnvironment(p) {
					problems = append(problems, p)
				}
			}
			if len(problems) > 0 {
				return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
			}

			if err := os.MkdirAll(absDir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", absDir, err)
			}
			if err := cfg.SaveFile(configPath); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}

			fmt.Fprintln(out, styles.FormatSuccess("Created "+configPath))
			fmt.Fprintln(out)
			fmt.Fprintln(out, styles.Box.Render(nextSteps(cfg)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&driver, "driver", "d", "", "Database driver (memory, sqlite, postgres, pq)")
	cmd.Flags().StringVar(&url, "url", "", "Connection string, or file path for sqlite")
	cmd.Flags().StringVar(&codec, "codec", "", "Payload codec (json, msgpack)")
	cmd.Flags().StringVar(&publish, "publish", "", "Publisher (none, kafka, webhook)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration file")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Use the flags without asking")

	return cmd
}

// fromEnvironment reports whether a validation problem names a setting that
// may still be supplied through CHRONICLE_* variables.
func fromEnvironment(problem string) bool {
	for _, prefix := range []string{"database.url", "publish.kafka_", "publish.webhook_url"} {
		if strings.HasPrefix(problem, prefix) {
			return true
		}
	}
	return false
}

// shouldPrompt reports whether init can ask questions: both ends must be a
// terminal and the user must not have opted out.
func shouldPrompt(nonInteractive bool, in io.Reader, out io.Writer) bool {
	return !nonInteractive && ui.IsTerminal(in) && ui.IsTerminal(out)
}

// newInitForm asks for the settings init writes, editing cfg in place.
func newInitForm(cfg *config.Config) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Database Driver").
				Description("Where events are stored").
				Options(
					huh.NewOption("PostgreSQL via pgx (recommended for production)", config.DriverPostgres),
					huh.NewOption("PostgreSQL via lib/pq", config.DriverPQ),
					huh.NewOption("SQLite file", config.DriverSQLite),
					huh.NewOption("In-Memory (for testing only)", config.DriverMemory),
				).
				Value(&cfg.Database.Driver),

			huh.NewInput().
				Title("Connection String").
				Description("File path for sqlite. Leave empty to use CHRONICLE_DATABASE_URL").
				Value(&cfg.Database.URL),

			huh.NewSelect[string]().
				Title("Payload Codec").
				Options(
					huh.NewOption("JSON", config.CodecJSON),
					huh.NewOption("MessagePack", config.CodecMsgpack),
				).
				Value(&cfg.Database.Codec),
		).Title("Event Store"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Publisher").
				Description("Where appended events are sent").
				Options(
					huh.NewOption("None", config.PublishNone),
					huh.NewOption("Kafka", config.PublishKafka),
					huh.NewOption("Webhook", config.PublishWebhook),
				).
				Value(&cfg.Publish.Kind),
		).Title("Publishing"),

		huh.NewGroup(
			huh.NewInput().
				Title("Kafka Topic").
				Description("Brokers come from CHRONICLE_PUBLISH_KAFKA_BROKERS").
				Value(&cfg.Publish.KafkaTopic),
		).WithHideFunc(func() bool { return cfg.Publish.Kind != config.PublishKafka }),

		huh.NewGroup(
			huh.NewInput().
				Title("Webhook URL").
				Value(&cfg.Publish.WebhookURL),
		).WithHideFunc(func() bool { return cfg.Publish.Kind != config.PublishWebhook }),
	).WithTheme(huh.ThemeDracula())
}

func nextSteps(cfg *config.Config) string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Next steps:"))
	b.WriteString("\n\n")

	step := 1
	if cfg.Database.Driver != config.DriverMemory && cfg.Database.URL == "" {
		fmt.Fprintf(&b, "  %d. Set %s\n", step, styles.Code.Render("CHRONICLE_DATABASE_URL"))
		step++
	}
	switch {
	case cfg.Publish.Kind == config.PublishKafka && (len(cfg.Publish.KafkaBrokers) == 0 || cfg.Publish.KafkaTopic == ""):
		fmt.Fprintf(&b, "  %d. Set %s and %s\n", step,
			styles.Code.Render("CHRONICLE_PUBLISH_KAFKA_BROKERS"), styles.Code.Render("CHRONICLE_PUBLISH_KAFKA_TOPIC"))
		step++
	case cfg.Publish.Kind == config.PublishWebhook && cfg.Publish.WebhookURL == "":
		fmt.Fprintf(&b, "  %d. Set %s\n", step, styles.Code.Render("CHRONICLE_PUBLISH_WEBHOOK_URL"))
		step++
	}
	if cfg.Database.Driver != config.DriverMemory {
		fmt.Fprintf(&b, "  %d. Run %s\n", step, styles.Code.Render("chronicle migrate"))
		step++
	}
	fmt.Fprintf(&b, "  %d. Run %s", step, styles.Code.Render("chronicle diagnose"))
	return b.String()
}
