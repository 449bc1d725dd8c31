package cli

import (
	"github.com/spf13/cobra"

	"voice3d-server/internal/bootstrap"
)

// Flags are shared by every subcommand.
type Flags struct {
	ConfigPath string
	NoDotEnv   bool
}

// NewRootCmd builds the command tree. The root command serves HTTP.
func NewRootCmd() *cobra.Command {
	flags := &Flags{}

	rootCmd := &cobra.Command{
		Use:           "voice3d-server",
		Short:         "Turn spoken descriptions into published 3D models",
		Long:          "Records a short voice clip, transcribes it, generates an image and a GLB model from it, publishes the model and notifies connected browsers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap.Run(cmd.Context(), bootstrap.Options{
				ConfigPath: flags.ConfigPath,
				NoDotEnv:   flags.NoDotEnv,
			})
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVar(&flags.NoDotEnv, "no-dotenv", false, "do not read variables from .env")

	rootCmd.AddCommand(NewDoctorCmd(flags))

	return rootCmd
}
