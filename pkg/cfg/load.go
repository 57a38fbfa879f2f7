package cfg

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const envPrefix = "TESSERA"

// Load reads a YAML, JSON or TOML file on top of Default. Keys present in the
// file can be overridden by TESSERA_<SECTION>_<KEY> environment variables.
func Load(path string) (Backtest, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Backtest{}, fmt.Errorf("unable to read config %s: %w: %w", path, common.ErrConfiguration, err)
	}
	return Decode(v)
}

// Decode unmarshals the settings held by v on top of Default and validates the result.
func Decode(v *viper.Viper) (Backtest, error) {
	c := Default()
	if err := v.Unmarshal(&c, viper.DecodeHook(DecodeHook())); err != nil {
		return Backtest{}, fmt.Errorf("unable to decode config: %w: %w", common.ErrConfiguration, err)
	}
	if err := c.Validate(); err != nil {
		return Backtest{}, err
	}
	return c, nil
}

func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		pointHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// pointHookFunc accepts numeric config values for decimal fields; YAML hands
// out ints and floats for unquoted numbers.
func pointHookFunc() mapstructure.DecodeHookFuncType {
	pointType := reflect.TypeOf(fixed.Point{})
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != pointType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return fixed.Parse(v)
		case int:
			return fixed.FromInt(v, 0), nil
		case int64:
			return fixed.FromInt64(v, 0), nil
		case uint64:
			return fixed.Parse(strconv.FormatUint(v, 10))
		case float64:
			return fixed.Parse(strconv.FormatFloat(v, 'f', -1, 64))
		}
		return data, nil
	}
}
