package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"foodtrace/internal/bootstrap"
	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/usecase/traceability"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record lifecycle events with their typed details",
}

var recordHarvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Record a harvest",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input := traceability.HarvestInput{}
		input.ProductID, _ = cmd.Flags().GetUint64("product")
		input.ProducerID, _ = cmd.Flags().GetUint64("producer")
		input.QuantityKG, _ = cmd.Flags().GetFloat64("quantity-kg")
		input.Notes, _ = cmd.Flags().GetString("notes")
		input.IdempotencyKey, _ = cmd.Flags().GetString("idempotency-key")

		location, err := locationFromFlags(cmd, "")
		if err != nil {
			return err
		}
		input.Location = location
		if input.Timestamp, err = timestampFromFlags(cmd); err != nil {
			return err
		}

		result, err := svc.RecordHarvest(ctx, input)
		if err != nil {
			logging.Error(ctx, "record harvest failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "record harvest")
		}
		return printAppendResult(cmd, result)
	}),
}

var recordTransportCmd = &cobra.Command{
	Use:   "transport",
	Short: "Record a transport leg (start, checkpoint or end) with its segment",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input := traceability.TransportInput{}
		input.ProductID, _ = cmd.Flags().GetUint64("product")
		input.TransporterID, _ = cmd.Flags().GetUint64("transporter")
		stage, _ := cmd.Flags().GetString("stage")
		input.Stage = traceability.TransportStage(strings.ToLower(strings.TrimSpace(stage)))
		input.Vehicle, _ = cmd.Flags().GetString("vehicle")
		input.IdempotencyKey, _ = cmd.Flags().GetString("idempotency-key")

		start, err := locationFromFlags(cmd, "from-")
		if err != nil {
			return errs.Wrap(err, "transport start")
		}
		end, err := locationFromFlags(cmd, "to-")
		if err != nil {
			return errs.Wrap(err, "transport end")
		}
		if start == nil || end == nil {
			return fmt.Errorf("%w: --from-lat/--from-lon and --to-lat/--to-lon are required", trace.ErrValidation)
		}
		input.Start, input.End = *start, *end

		input.PlannedDistanceKM = optionalFloatFlag(cmd, "planned-km")
		input.ActualDistanceKM = optionalFloatFlag(cmd, "actual-km")
		input.PlannedDurationHours = optionalFloatFlag(cmd, "planned-hours")
		input.ActualDurationHours = optionalFloatFlag(cmd, "actual-hours")
		input.TemperatureMin = optionalFloatFlag(cmd, "temp-min")
		input.TemperatureMax = optionalFloatFlag(cmd, "temp-max")
		input.HumidityMin = optionalFloatFlag(cmd, "humidity-min")
		input.HumidityMax = optionalFloatFlag(cmd, "humidity-max")
		if input.Timestamp, err = timestampFromFlags(cmd); err != nil {
			return err
		}

		result, err := svc.RecordTransport(ctx, input)
		if err != nil {
			logging.Error(ctx, "record transport failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "record transport")
		}
		return printAppendResult(cmd, result)
	}),
}

var recordInspectionCmd = &cobra.Command{
	Use:   "inspection",
	Short: "Record a quality inspection",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input := traceability.InspectionInput{}
		input.ProductID, _ = cmd.Flags().GetUint64("product")
		input.InspectorID, _ = cmd.Flags().GetUint64("inspector")
		input.Passed, _ = cmd.Flags().GetBool("passed")
		input.Score, _ = cmd.Flags().GetFloat64("score")
		input.IdempotencyKey, _ = cmd.Flags().GetString("idempotency-key")

		findings, _ := cmd.Flags().GetString("findings")
		if strings.TrimSpace(findings) != "" {
			decoded, err := trace.DecodePayload([]byte(findings))
			if err != nil {
				return errs.Wrap(err, "decode findings")
			}
			input.Findings = decoded
		}

		location, err := locationFromFlags(cmd, "")
		if err != nil {
			return err
		}
		input.Location = location
		if input.Timestamp, err = timestampFromFlags(cmd); err != nil {
			return err
		}

		result, err := svc.RecordInspection(ctx, input)
		if err != nil {
			logging.Error(ctx, "record inspection failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "record inspection")
		}
		return printAppendResult(cmd, result)
	}),
}

var recordSaleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Record a sale from producer to retailer or retailer to consumer",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input := traceability.SaleInput{}
		input.ProductID, _ = cmd.Flags().GetUint64("product")
		stage, _ := cmd.Flags().GetString("stage")
		input.Stage = traceability.SaleStage(strings.ToLower(strings.TrimSpace(stage)))
		input.SellerID, _ = cmd.Flags().GetUint64("seller")
		input.BuyerID, _ = cmd.Flags().GetUint64("buyer")
		input.Quantity, _ = cmd.Flags().GetFloat64("quantity")
		input.Currency, _ = cmd.Flags().GetString("currency")
		input.IdempotencyKey, _ = cmd.Flags().GetString("idempotency-key")

		rawPrice, _ := cmd.Flags().GetString("price")
		price, err := decimal.NewFromString(strings.TrimSpace(rawPrice))
		if err != nil {
			return fmt.Errorf("%w: price %q is not a decimal number", trace.ErrValidation, rawPrice)
		}
		input.Price = price

		location, err := locationFromFlags(cmd, "")
		if err != nil {
			return err
		}
		input.Location = location
		if input.Timestamp, err = timestampFromFlags(cmd); err != nil {
			return err
		}

		result, err := svc.RecordSale(ctx, input)
		if err != nil {
			logging.Error(ctx, "record sale failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "record sale")
		}
		return printAppendResult(cmd, result)
	}),
}

func optionalFloatFlag(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	value, _ := cmd.Flags().GetFloat64(name)
	return &value
}

func timestampFromFlags(cmd *cobra.Command) (time.Time, error) {
	at, _ := cmd.Flags().GetString("at")
	return parseTimestampFlag(at)
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.AddCommand(recordHarvestCmd, recordTransportCmd, recordInspectionCmd, recordSaleCmd)

	for _, command := range []*cobra.Command{recordHarvestCmd, recordTransportCmd, recordInspectionCmd, recordSaleCmd} {
		command.Flags().Uint64("product", 0, "Product id")
		command.Flags().String("at", "", "Event timestamp (RFC3339, defaults to now)")
		command.Flags().String("idempotency-key", "", "Retry key; a repeated key returns the stored event")
		_ = command.MarkFlagRequired("product")
		addJSONFlag(command)
	}
	for _, command := range []*cobra.Command{recordHarvestCmd, recordInspectionCmd, recordSaleCmd} {
		addLocationFlags(command, "", "Event")
	}

	recordHarvestCmd.Flags().Uint64("producer", 0, "Producer user id")
	recordHarvestCmd.Flags().Float64("quantity-kg", 0, "Harvested quantity in kg")
	recordHarvestCmd.Flags().String("notes", "", "Free-form notes")

	recordTransportCmd.Flags().Uint64("transporter", 0, "Transporter user id")
	recordTransportCmd.Flags().String("stage", string(traceability.TransportStart), "Transport stage (start|checkpoint|end)")
	recordTransportCmd.Flags().String("vehicle", "", "Vehicle identifier")
	addLocationFlags(recordTransportCmd, "from-", "Segment start")
	addLocationFlags(recordTransportCmd, "to-", "Segment end")
	recordTransportCmd.Flags().Float64("planned-km", 0, "Planned distance in km")
	recordTransportCmd.Flags().Float64("actual-km", 0, "Measured distance in km")
	recordTransportCmd.Flags().Float64("planned-hours", 0, "Planned duration in hours")
	recordTransportCmd.Flags().Float64("actual-hours", 0, "Measured duration in hours")
	recordTransportCmd.Flags().Float64("temp-min", 0, "Lowest temperature during the leg")
	recordTransportCmd.Flags().Float64("temp-max", 0, "Highest temperature during the leg")
	recordTransportCmd.Flags().Float64("humidity-min", 0, "Lowest humidity during the leg")
	recordTransportCmd.Flags().Float64("humidity-max", 0, "Highest humidity during the leg")

	recordInspectionCmd.Flags().Uint64("inspector", 0, "Inspector user id")
	recordInspectionCmd.Flags().Bool("passed", false, "Inspection passed")
	recordInspectionCmd.Flags().Float64("score", 0, "Inspection score in [0,100]")
	recordInspectionCmd.Flags().String("findings", "", "Findings as a JSON object")

	recordSaleCmd.Flags().String("stage", string(traceability.SaleProducerToRetailer), "Sale stage (producer_retailer|retailer_consumer)")
	recordSaleCmd.Flags().Uint64("seller", 0, "Seller user id")
	recordSaleCmd.Flags().Uint64("buyer", 0, "Buyer user id")
	recordSaleCmd.Flags().Float64("quantity", 0, "Quantity sold")
	recordSaleCmd.Flags().String("price", "0", "Total price as a decimal")
	recordSaleCmd.Flags().String("currency", "EUR", "ISO currency code")
}
