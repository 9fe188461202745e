package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/sparkify/datalake/usecase/gen"
	"github.com/spf13/cobra"
)

// GenMain is wrapped by NewGenCommand and only exported for testing purposes.
var GenMain *gen.Main

// NewGenCommand returns a new cobra command wrapping GenMain.
func NewGenCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	GenMain = gen.NewMain()
	genCommand := &cobra.Command{
		Use:   "gen",
		Short: "Write a synthetic song_data and log_data tree.",
		RunE: func(cmd *cobra.Command, args []string) error {
			GenMain.Out = stdout
			return GenMain.Run()
		},
	}
	flags := genCommand.Flags()
	err := commandeer.Flags(flags, GenMain)
	if err != nil {
		panic(err)
	}
	return genCommand
}

func init() {
	subcommandFns["gen"] = NewGenCommand
}
