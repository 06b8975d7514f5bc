package main

import (
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/leanderhendrikx/weedless"
	"github.com/leanderhendrikx/weedless/internal/config"
	"github.com/leanderhendrikx/weedless/internal/install"
)

var rootCmd = &cobra.Command{
	Use:           "weedless <config.json>",
	Short:         "Rebind imported symbols in a Mach-O binary to a hook dylib",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Read(args[0])
		if err != nil {
			return errors.Wrap(err, "reading config")
		}
		log.WithField("target", cfg.Target).Info("patching target")

		if err := install.Dylibs(cfg); err != nil {
			return errors.Wrap(err, "installing dylibs")
		}

		if err := macho.WithMappedFile(cfg.Target, func(data []byte) error {
			img, err := macho.Open(data)
			if err != nil {
				return err
			}
			return macho.Apply(img, cfg)
		}); err != nil {
			return errors.Wrap(err, "patching target")
		}

		log.Info("done")
		return nil
	},
}

func main() {
	log.SetHandler(clihandler.Default)

	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
