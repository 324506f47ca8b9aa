package cobrax

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// AddConfigFlag registers the config file flag. The value is not bound to
// a variable; GetConfigNameFromArgs reads it straight from os.Args because
// the config must be loaded before the other flags get their defaults.
func AddConfigFlag(fset *pflag.FlagSet) {
	fset.StringP("config", "c", "", "config file")
}

// GetConfigNameFromArgs scans the raw command line for the config flag,
// in both "--config name" and "--config=name" forms.
func GetConfigNameFromArgs() string {
	for i, arg := range os.Args {
		if name, ok := strings.CutPrefix(arg, "--config="); ok {
			return name
		}
		if (arg == "--config" || arg == "-c") && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	return ""
}

// LoadConfigFromFile overlays a yaml file onto dest, which must already
// hold the defaults. An empty name leaves dest untouched.
func LoadConfigFromFile[T any](name string, dest *T) error {
	if name == "" {
		return nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parsing config %s: %w", name, err)
	}
	return nil
}
