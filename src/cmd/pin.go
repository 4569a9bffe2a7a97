package cmd

import (
	"github.com/blobsync/pinner/src/pinner"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(pinCmd)
}

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Follow the agreement event feed and keep pinned content in sync",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		controller, err := pinner.NewController(conf)
		if err != nil {
			return
		}

		err = controller.Start()
		if err != nil {
			return
		}

		<-ctx.Done()

		controller.StopWait()

		return
	},
}
