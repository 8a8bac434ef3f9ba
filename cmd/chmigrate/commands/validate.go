package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
)

// ErrReportInvalid is returned when a report does not match the schema.
var ErrReportInvalid = errors.New("report does not match schema")

// NewValidateCommand creates the report schema check.
func NewValidateCommand() *cobra.Command {
	var printSchema bool

	cmd := &cobra.Command{
		Use:   "validate <report.json>",
		Short: "Check a JSON report against the report schema",
		Long: `Validate a JSON report produced by "chmigrate report --format json",
compressed or not. Each schema violation is printed on its own line.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if printSchema {
				return cobra.NoArgs(cmd, args)
			}

			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if printSchema {
				_, err := cmd.OutOrStdout().Write(report.Schema())

				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open report: %w", err)
			}
			defer f.Close()

			res, err := report.Validate(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			if !res.Valid {
				for _, e := range res.Errors {
					fmt.Fprintln(cmd.OutOrStdout(), e)
				}

				return fmt.Errorf("%w: %s (%d errors)", ErrReportInvalid, args[0], len(res.Errors))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])

			return nil
		},
	}

	cmd.Flags().BoolVar(&printSchema, "schema", false, "print the JSON schema and exit")

	return cmd
}
