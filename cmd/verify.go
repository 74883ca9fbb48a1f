package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"foodtrace/internal/bootstrap"
	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/errs"
	"foodtrace/internal/usecase/traceability"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Score the authenticity of a product chain",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		productID, _ := cmd.Flags().GetUint64("product")
		cached, _ := cmd.Flags().GetBool("cached")

		var result traceability.VerifyResult
		if cached {
			last, found := svc.LastVerification(ctx, productID)
			if !found {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "no cached verification for product %d\n", productID)
				return err
			}
			result = last
		} else {
			verified, err := svc.Verify(ctx, productID)
			if err != nil {
				logging.Error(ctx, "verify chain failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "verify chain")
			}
			result = verified
		}

		return printOutput(cmd, result, func(w io.Writer) error {
			return writeVerifyText(w, result)
		})
	}),
}

func writeVerifyText(w io.Writer, result traceability.VerifyResult) error {
	if _, err := fmt.Fprintf(w, "product=%d authentic=%t score=%s\n", result.ProductID, result.Authentic, metric(result.Score)); err != nil {
		return err
	}
	details := result.Details
	if _, err := fmt.Fprintf(w, "  blockchain_verified=%t sensor_data_verified=%t quality_checks_passed=%t chain_complete=%t\n",
		details.BlockchainVerified, details.SensorDataVerified, details.QualityChecksPassed, details.ChainComplete); err != nil {
		return err
	}
	for i, issue := range result.Issues {
		if _, err := fmt.Fprintf(w, "  issue: %s\n", issue); err != nil {
			return err
		}
		if i < len(result.Recommendations) {
			if _, err := fmt.Fprintf(w, "    fix: %s\n", result.Recommendations[i]); err != nil {
				return err
			}
		}
	}
	if len(result.TamperedEventIDs) > 0 {
		if _, err := fmt.Fprintf(w, "  tampered events: %v\n", result.TamperedEventIDs); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Uint64("product", 0, "Product id")
	verifyCmd.Flags().Bool("cached", false, "Show the last cached verification instead of verifying again")
	_ = verifyCmd.MarkFlagRequired("product")
	addJSONFlag(verifyCmd)
}
