package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFlagName = "config"

// addConfigFlag registers --config on fs and returns a loader that reads the
// file, if any, plus {ENVPREFIX}_* environment variables into v.
func addConfigFlag(v *viper.Viper, basename string, fs *pflag.FlagSet) func() error {
	var cfgFile string
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile,
		"Read configuration from the specified file; supports JSON, TOML, YAML.")

	envPrefix := strings.ReplaceAll(strings.ToUpper(basename), "-", "_")

	return func() error {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()

		if cfgFile == "" {
			return nil
		}
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file %s: %w", cfgFile, err)
		}
		return nil
	}
}

// watchConfig calls onChange whenever the loaded configuration file is
// written. It does nothing when no file was loaded.
func watchConfig(v *viper.Viper, onChange func(v *viper.Viper)) {
	if v.ConfigFileUsed() == "" || onChange == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			onChange(v)
		}
	})
	v.WatchConfig()
}

// defaultConfigName is the file name a command looks for in its working
// directory when --config is not given.
func defaultConfigName(basename string) string {
	return filepath.Join(".", basename+".yaml")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
