package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"foodtrace/internal/bootstrap"
	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
	"foodtrace/internal/usecase/traceability"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Create, extend and inspect traceability chains",
}

var chainCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the chain of a product and record its created event",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		producerID, _ := cmd.Flags().GetUint64("producer")

		result, err := svc.CreateChain(ctx, traceability.CreateChainInput{
			ProductID:  productID,
			ProducerID: producerID,
		})
		if err != nil {
			logging.Error(ctx, "create chain failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "create chain")
		}

		return printOutput(cmd, newChainView(result.Chain), func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "created chain for product %d: event=%d hash=%s\n", productID, result.CreatedEventID, result.CreatedHash)
			return err
		})
	}),
}

var chainAppendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append an event to a product chain",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input, err := appendInputFromFlags(cmd)
		if err != nil {
			return err
		}

		result, err := svc.AppendEvent(ctx, input)
		if err != nil {
			logging.Error(ctx, "append event failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "append event")
		}
		return printAppendResult(cmd, result)
	}),
}

var chainSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a chain with its events, telemetry, segments and inspections",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		summary, err := svc.GetSummary(ctx, productID)
		if err != nil {
			return errs.Wrap(err, "get chain summary")
		}

		return printOutput(cmd, newSummaryView(summary), func(w io.Writer) error {
			if err := writeChainText(w, summary.Chain); err != nil {
				return err
			}
			for _, event := range summary.Events {
				if _, err := fmt.Fprintf(w, "  e%d %s %s verified=%t hash=%s\n",
					event.EventID,
					trace.CanonicalTimestamp(event.Timestamp),
					event.Type,
					event.Verified,
					event.Hash,
				); err != nil {
					return err
				}
			}
			if len(summary.MissingEventTypes) > 0 {
				missing := make([]string, 0, len(summary.MissingEventTypes))
				for _, eventType := range summary.MissingEventTypes {
					missing = append(missing, string(eventType))
				}
				if _, err := fmt.Fprintf(w, "missing: %s\n", strings.Join(missing, ",")); err != nil {
					return err
				}
			}
			for _, count := range summary.ViolationCounts {
				if _, err := fmt.Fprintf(w, "policy %s [%g,%g]: %d/%d readings out of band\n",
					count.PolicyKey, count.MinTemp, count.MaxTemp, count.Violations, count.Readings); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

var chainStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached completion and verification status of a chain",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		status, err := svc.GetChainStatus(ctx, productID)
		if err != nil {
			return errs.Wrap(err, "get chain status")
		}
		return printOutput(cmd, status, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "product=%d events=%d complete=%t verified=%t\n",
				status.ProductID, status.Events, status.IsComplete, status.IsVerified)
			return err
		})
	}),
}

var chainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chains",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		onlyComplete, _ := cmd.Flags().GetBool("complete")
		onlyVerified, _ := cmd.Flags().GetBool("verified")
		producerID, _ := cmd.Flags().GetUint64("producer")
		limit, _ := cmd.Flags().GetInt("limit")

		chains, err := svc.ListChains(ctx, ports.ChainFilter{
			OnlyComplete: onlyComplete,
			OnlyVerified: onlyVerified,
			ProducerID:   producerID,
			Limit:        limit,
		})
		if err != nil {
			return errs.Wrap(err, "list chains")
		}

		return printOutput(cmd, newChainViews(chains), func(w io.Writer) error {
			if len(chains) == 0 {
				_, err := fmt.Fprintln(w, "no chains")
				return err
			}
			for _, chain := range chains {
				if err := writeChainText(w, chain); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

var chainRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute the metrics of a chain",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		chain, err := svc.RecomputeChain(ctx, productID)
		if err != nil {
			return errs.Wrap(err, "recompute chain")
		}
		return printOutput(cmd, newChainView(chain), func(w io.Writer) error {
			return writeChainText(w, chain)
		})
	}),
}

func appendInputFromFlags(cmd *cobra.Command) (traceability.AppendEventInput, error) {
	productID, _ := cmd.Flags().GetUint64("product")
	rawType, _ := cmd.Flags().GetString("type")
	actorID, _ := cmd.Flags().GetUint64("actor-id")
	actorRole, _ := cmd.Flags().GetString("actor-role")
	payloadJSON, _ := cmd.Flags().GetString("payload")
	at, _ := cmd.Flags().GetString("at")
	key, _ := cmd.Flags().GetString("idempotency-key")

	eventType, err := trace.ParseEventType(rawType)
	if err != nil {
		return traceability.AppendEventInput{}, err
	}

	input := traceability.AppendEventInput{
		ProductID:      productID,
		Type:           eventType,
		IdempotencyKey: key,
	}

	if strings.TrimSpace(actorRole) != "" {
		role, err := trace.ParseActorRole(actorRole)
		if err != nil {
			return traceability.AppendEventInput{}, err
		}
		input.Actor = &trace.Actor{ID: actorID, Role: role}
	}

	location, err := locationFromFlags(cmd, "")
	if err != nil {
		return traceability.AppendEventInput{}, err
	}
	input.Location = location

	if strings.TrimSpace(payloadJSON) != "" {
		payload, err := trace.DecodePayload([]byte(payloadJSON))
		if err != nil {
			return traceability.AppendEventInput{}, err
		}
		input.Payload = payload
	}

	timestamp, err := parseTimestampFlag(at)
	if err != nil {
		return traceability.AppendEventInput{}, err
	}
	input.Timestamp = timestamp
	return input, nil
}

// locationFromFlags reads <prefix>lat/<prefix>lon/<prefix>place; absent
// coordinates mean no location.
func locationFromFlags(cmd *cobra.Command, prefix string) (*trace.Location, error) {
	if !cmd.Flags().Changed(prefix+"lat") && !cmd.Flags().Changed(prefix+"lon") {
		return nil, nil
	}
	lat, _ := cmd.Flags().GetFloat64(prefix + "lat")
	lon, _ := cmd.Flags().GetFloat64(prefix + "lon")
	place, _ := cmd.Flags().GetString(prefix + "place")
	location := &trace.Location{Lat: lat, Lon: lon, Description: strings.TrimSpace(place)}
	if err := location.Validate(); err != nil {
		return nil, err
	}
	return location, nil
}

func parseTimestampFlag(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q must be RFC3339", trace.ErrValidation, value)
	}
	return parsed.UTC(), nil
}

func printAppendResult(cmd *cobra.Command, result traceability.AppendEventResult) error {
	return printOutput(cmd, newAppendView(result), func(w io.Writer) error {
		status := "appended"
		if result.Duplicate {
			status = "duplicate"
		}
		if _, err := fmt.Fprintf(w, "%s event=%d hash=%s\n", status, result.EventID, result.Hash); err != nil {
			return err
		}
		return writeChainText(w, result.Chain)
	})
}

func addLocationFlags(cmd *cobra.Command, prefix string, label string) {
	cmd.Flags().Float64(prefix+"lat", 0, label+" latitude")
	cmd.Flags().Float64(prefix+"lon", 0, label+" longitude")
	cmd.Flags().String(prefix+"place", "", label+" description")
}

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.AddCommand(chainCreateCmd, chainAppendCmd, chainSummaryCmd, chainStatusCmd, chainListCmd, chainRecomputeCmd)

	for _, command := range []*cobra.Command{chainCreateCmd, chainAppendCmd, chainSummaryCmd, chainStatusCmd, chainRecomputeCmd} {
		command.Flags().Uint64("product", 0, "Product id")
		_ = command.MarkFlagRequired("product")
		addJSONFlag(command)
	}
	addJSONFlag(chainListCmd)

	chainCreateCmd.Flags().Uint64("producer", 0, "Producer user id (defaults to the product owner)")

	chainAppendCmd.Flags().String("type", "", "Event type (created|harvest|transport_start|...|sale_retailer_consumer)")
	chainAppendCmd.Flags().Uint64("actor-id", 0, "Actor user id")
	chainAppendCmd.Flags().String("actor-role", "", "Actor role (producer|transporter|retailer|inspector|consumer|system)")
	chainAppendCmd.Flags().String("payload", "", "Event payload as a JSON object")
	chainAppendCmd.Flags().String("at", "", "Event timestamp (RFC3339, defaults to now)")
	chainAppendCmd.Flags().String("idempotency-key", "", "Retry key; a repeated key returns the stored event")
	addLocationFlags(chainAppendCmd, "", "Event")
	_ = chainAppendCmd.MarkFlagRequired("type")

	chainListCmd.Flags().Bool("complete", false, "Only complete chains")
	chainListCmd.Flags().Bool("verified", false, "Only verified chains")
	chainListCmd.Flags().Uint64("producer", 0, "Only chains of this producer")
	chainListCmd.Flags().Int("limit", 0, "Maximum number of chains (0 for all)")
}
