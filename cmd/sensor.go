package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"foodtrace/internal/bootstrap"
	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/usecase/traceability"
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Ingest and analyse sensor telemetry",
}

var sensorIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull the latest readings of the producer's sensors into the chain",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		result, err := svc.IngestRecentTelemetry(ctx, productID)
		if err != nil {
			logging.Error(ctx, "ingest telemetry failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "ingest telemetry")
		}

		return printOutput(cmd, result, func(w io.Writer) error {
			if !result.Success {
				_, err := fmt.Fprintf(w, "ingest skipped for product %d: %s\n", productID, result.Message)
				return err
			}
			if _, err := fmt.Fprintf(w, "batch=%s zone=%d sensors=%d created=%d skipped=%d\n",
				result.BatchID, result.ZoneID, result.SensorCount, result.CreatedCount, len(result.Skipped)); err != nil {
				return err
			}
			for _, skipped := range result.Skipped {
				if _, err := fmt.Fprintf(w, "  sensor=%d reading=%d: %s\n", skipped.SensorID, skipped.ReadingID, skipped.Reason); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

var sensorAnomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Detect outliers, shocks and unreliable readings",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		report, err := svc.DetectAnomalies(ctx, productID)
		if err != nil {
			return errs.Wrap(err, "detect anomalies")
		}

		return printOutput(cmd, report, func(w io.Writer) error {
			if _, err := fmt.Fprintf(w, "readings=%d temperature_mean=%s temperature_std=%s humidity_mean=%s humidity_std=%s anomalies=%d\n",
				report.TotalReadings,
				metric(report.Temperature.Mean),
				metric(report.Temperature.StdDev),
				metric(report.Humidity.Mean),
				metric(report.Humidity.StdDev),
				len(report.Anomalies),
			); err != nil {
				return err
			}
			for _, anomaly := range report.Anomalies {
				if _, err := fmt.Fprintf(w, "  [%s] %s telemetry=%d: %s\n", anomaly.Severity, anomaly.Kind, anomaly.TelemetryID, anomaly.Message); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

var sensorQualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Compute and store the sensor-derived quality score",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		result, err := svc.ComputeSensorDerivedQuality(ctx, productID)
		if err != nil {
			return errs.Wrap(err, "compute sensor quality")
		}

		return printOutput(cmd, result, func(w io.Writer) error {
			if !result.Available {
				_, err := fmt.Fprintf(w, "no telemetry for product %d; combined_quality=%s\n", productID, metric(result.CombinedQuality))
				return err
			}
			q := result.Quality
			_, err := fmt.Fprintf(w,
				"score=%s temperature=%s humidity=%s shock=%s soil=%s reading_quality=%s combined_quality=%s\n",
				metric(q.Score),
				metric(q.TemperatureConsistency),
				metric(q.HumidityOptimality),
				metric(q.ShockAbsence),
				metric(q.SoilCondition),
				metric(q.ReadingQuality),
				metric(result.CombinedQuality),
			)
			return err
		})
	}),
}

var sensorMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Count temperature readings outside a band or named policy",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		policy, _ := cmd.Flags().GetString("policy")

		input := traceability.MonitorInput{ProductID: productID, Policy: policy}
		if cmd.Flags().Changed("min") || cmd.Flags().Changed("max") {
			minTemp, _ := cmd.Flags().GetFloat64("min")
			maxTemp, _ := cmd.Flags().GetFloat64("max")
			input.Band = &trace.TemperatureBand{Min: minTemp, Max: maxTemp}
		}

		result, err := svc.MonitorTemperatureViolations(ctx, input)
		if err != nil {
			return errs.Wrap(err, "monitor temperature")
		}

		return printOutput(cmd, result, func(w io.Writer) error {
			if _, err := fmt.Fprintf(w, "policy=%s band=[%g,%g] readings=%d violations=%d\n",
				result.PolicyKey, result.Band.Min, result.Band.Max, result.Readings, result.Count); err != nil {
				return err
			}
			for _, violation := range result.Violations {
				if _, err := fmt.Fprintf(w, "  %s %g at %s (sensor %d)\n",
					violation.ViolationType,
					violation.Temperature,
					trace.CanonicalTimestamp(violation.RecordedAt),
					violation.SensorID,
				); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

func init() {
	rootCmd.AddCommand(sensorCmd)
	sensorCmd.AddCommand(sensorIngestCmd, sensorAnomaliesCmd, sensorQualityCmd, sensorMonitorCmd)

	for _, command := range []*cobra.Command{sensorIngestCmd, sensorAnomaliesCmd, sensorQualityCmd, sensorMonitorCmd} {
		command.Flags().Uint64("product", 0, "Product id")
		_ = command.MarkFlagRequired("product")
		addJSONFlag(command)
	}

	sensorMonitorCmd.Flags().String("policy", "", "Named temperature policy from the policy file")
	sensorMonitorCmd.Flags().Float64("min", trace.DefaultMinTemperature, "Minimum temperature (overrides --policy)")
	sensorMonitorCmd.Flags().Float64("max", trace.DefaultMaxTemperature, "Maximum temperature (overrides --policy)")
}
