package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/sparkify/datalake/usecase/sparkify"
	"github.com/spf13/cobra"
)

// EtlMain is wrapped by NewEtlCommand and only exported for testing purposes.
var EtlMain *sparkify.Main

// NewEtlCommand returns a new cobra command wrapping EtlMain.
func NewEtlCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	EtlMain = sparkify.NewMain()
	EtlMain.Stderr = stderr
	etlCommand := &cobra.Command{
		Use:   "etl",
		Short: "Build the star schema tables from a catalog and an activity log.",
		Long: `Reads every catalog file matching --catalog-input and every log file
matching --log-input, builds the songs, artist, users, time and
songplays tables and replaces them below --output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return EtlMain.Run(cmd.Context())
		},
	}
	flags := etlCommand.Flags()
	err := commandeer.Flags(flags, EtlMain)
	if err != nil {
		panic(err)
	}
	return etlCommand
}

func init() {
	subcommandFns["etl"] = NewEtlCommand
}
