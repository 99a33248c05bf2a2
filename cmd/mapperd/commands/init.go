package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/mapperd/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample mapperd configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/mapperd/config.yaml. Use --config to specify a custom path.

Examples:
  mapperd init
  mapperd init --config /etc/mapperd/config.yaml
  mapperd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var (
		configPath string
		err        error
	)

	if configFile := GetConfigFile(); configFile != "" {
		configPath, err = config.InitConfigToPath(configFile, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the daemon with: mapperd start")
	fmt.Printf("  3. Or specify custom config: mapperd start --config %s\n", configPath)
	return nil
}
