package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/havenhq/chronicle"
	"github.com/havenhq/chronicle/cli/styles"
)

// NewStreamCommand creates the stream command
func NewStreamCommand(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Inspect and append to event streams",
		Long: `Inspect and append to the event stream of a single aggregate.

Examples:
  chronicle stream show 7f0c...            # List every event of the stream
  chronicle stream version 7f0c...         # Print the current version
  chronicle stream append 7f0c... ConsentRevoked '{"revokedBy":"u1","reason":"asked"}' --expected-version 1`,
	}

	cmd.AddCommand(newStreamShowCommand(rt))
	cmd.AddCommand(newStreamVersionCommand(rt))
	cmd.AddCommand(newStreamAppendCommand(rt))

	return cmd
}

func parseAggregateID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid aggregate id %q: %w", arg, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, chronicle.ErrNilAggregateID
	}
	return id, nil
}

func newStreamShowCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <aggregate-id>",
		Short: "Show the events of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAggregateID(args[0])
			if err != nil {
				return err
			}

			session, err := rt.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer session.Close()

			envelopes, err := session.Store.Load(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(envelopes) == 0 {
				fmt.Fprintln(out, styles.FormatInfo(fmt.Sprintf("Stream %s has no events", id)))
				return nil
			}

			rows := make([][]string, 0, len(envelopes))
			for _, env := range envelopes {
				body, err := json.Marshal(env.Event)
				if err != nil {
					return fmt.Errorf("render event %d: %w", env.Sequence, err)
				}
				rows = append(rows, []string{
					strconv.FormatUint(env.Sequence, 10),
					env.Event.EventType(),
					env.RecordedAt.UTC().Format(time.RFC3339),
					string(body),
				})
			}

			fmt.Fprintln(out, styles.Title.Render("Stream "+id.String()))
			fmt.Fprintln(out, styles.Table([]string{"Seq", "Type", "Recorded At", "Payload"}, rows))
			fmt.Fprintln(out, styles.Muted.Render(styles.FormatCount(len(envelopes), "event", "events")))
			return nil
		},
	}
}

func newStreamVersionCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "version <aggregate-id>",
		Short: "Print the current version of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAggregateID(args[0])
			if err != nil {
				return err
			}

			session, err := rt.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer session.Close()

			version, err := session.Store.Version(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), styles.FormatKeyValue("Version", strconv.FormatUint(version, 10)))
			return nil
		},
	}
}

func newStreamAppendCommand(rt *Runtime) *cobra.Command {
	var expected int64

	cmd := &cobra.Command{
		Use:   "append <aggregate-id> <event-type> <json-payload>",
		Short: "Append one event to a stream",
		Long: `Append one event, given as a JSON object, to a stream.

The aggregate id in the payload is always set to <aggregate-id>. occurredAt
defaults to now. The payload is validated against the registered event type
before anything is written.

Without --expected-version the current version is read first, which skips
the optimistic concurrency check against concurrent writers.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAggregateID(args[0])
			if err != nil {
				return err
			}
			eventType := args[1]

			payload, err := normalizePayload(id, []byte(args[2]), time.Now().UTC())
			if err != nil {
				return err
			}

			session, err := rt.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer session.Close()

			// Input is JSON whatever the store encodes with.
			event, err := chronicle.NewJSONCodec(session.Store.Registry()).Decode(payload, eventType)
			if err != nil {
				return err
			}

			var version uint64
			if expected < 0 {
				version, err = session.Store.Version(cmd.Context(), id)
				if err != nil {
					return err
				}
			} else {
				version = uint64(expected)
			}

			if err := session.Store.Append(cmd.Context(), id, version, []chronicle.DomainEvent{event}); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess(
				fmt.Sprintf("Appended %s to %s at version %d", eventType, id, version+1)))
			return nil
		},
	}

	cmd.Flags().Int64Var(&expected, "expected-version", -1, "Version the stream must be at (default: current version)")

	return cmd
}

// normalizePayload forces the aggregate id of a JSON event object and fills
// in occurredAt when it is missing.
func normalizePayload(id uuid.UUID, raw []byte, now time.Time) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}

	fields["aggregateId"] = id.String()
	if _, ok := fields["occurredAt"]; !ok {
		fields["occurredAt"] = now.Format(time.RFC3339Nano)
	}

	return json.Marshal(fields)
}
