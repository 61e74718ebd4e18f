package cmd

import (
	"fmt"
	"os"
	"strings"

	run "github.com/soundscribe/ml-backend/cmd/soundscribe/run"
	"github.com/soundscribe/ml-backend/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "SOUNDSCRIBE"

var Cmd = &cobra.Command{
	Use:   "soundscribe-ml",
	Short: "Soundscribe ML backend",
	Long:  "The ML backend process for the Soundscribe bioacoustics annotation tool: loads the CLAP model and runs batch detection over audio files, driven by line-delimited JSON commands on stdin",

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`,
			`.`, `_`,
		))
		viper.AutomaticEnv()

		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		if err := config.InitConfig(); err != nil {
			return err
		}

		return nil
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("home-dir", "", "Path to the soundscribe home directory")
	pflags.String("models-dir", "", "Path where model weights are cached")

	viper.BindPFlag("home_dir", pflags.Lookup("home-dir"))
	viper.BindPFlag("models_dir", pflags.Lookup("models-dir"))

	Cmd.AddCommand(run.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
