package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix string = "PARKING"

type ConfigHandler struct {
	mainViper   *viper.Viper
	secretViper *viper.Viper
	lock        *sync.Mutex
}

// NewConfigHandler reads config.yaml and secret_config.yaml from the first
// search path that has them: $CONFIG_LOCATION, /etc/parkdesk, then the
// working directory. Precedence from highest to lowest is environment
// variables (PARKING_CLIENT_BASEURL, ...), the secret file, the main file
// and the built-in defaults.
func NewConfigHandler() *ConfigHandler {
	main := viper.New()
	main.SetConfigType("yaml")
	main.SetConfigName("config")
	secret := viper.New()
	secret.SetConfigType("yaml")
	secret.SetConfigName("secret_config")
	configPaths := []string{}
	configPathEnv := os.Getenv("CONFIG_LOCATION")
	if configPathEnv != "" {
		configPaths = append(configPaths, configPathEnv)
	}
	configPaths = append(configPaths, "/etc/parkdesk", ".")
	for _, path := range configPaths {
		main.AddConfigPath(path)
		secret.AddConfigPath(path)
	}

	setDefaults(main)
	main.SetEnvPrefix(EnvPrefix)
	main.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	main.AllowEmptyEnv(false)
	bindEnvs(main, reflect.TypeOf(Config{}), "")
	return &ConfigHandler{secretViper: secret, mainViper: main, lock: &sync.Mutex{}}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.timeout", 30*time.Second)
	v.SetDefault("client.rateLimits.enabled", false)
	v.SetDefault("store.type", StoreTypeFile)
	v.SetDefault("store.path", "~/.parkdesk/tokens.json")
	v.SetDefault("poller.enabled", false)
	v.SetDefault("poller.healthInterval", time.Minute)
	v.SetDefault("poller.verifyInterval", 5*time.Minute)
	v.SetDefault("monitoring.sentry.sampleRate", 1.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", LogFormatJSON)
}

// bindEnvs registers every leaf field of t so that env variables are seen
// even when no file mentions the key.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := strings.ToLower(f.Name)
		if prefix != "" {
			key = prefix + "." + key
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(url.URL{}) {
			bindEnvs(v, ft, key)
			continue
		}
		if err := v.BindEnv(key); err != nil {
			slog.Error("CONFIG", "message", "unable to bind env", "key", key, "error", err)
		}
	}
}

func (c *ConfigHandler) HandleChanges(callback func(Config, error)) {
	c.mainViper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("CONFIG", "message", "main config file changed", "path", e.Name)
		callback(c.Config())
	})
	c.secretViper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("CONFIG", "message", "secret config file changed", "path", e.Name)
		callback(c.Config())
	})
}

func (c *ConfigHandler) Config() (Config, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.getConfig()
}

// Watch reloads on file changes. Only files that were found are watched.
func (c *ConfigHandler) Watch() {
	if c.mainViper.ConfigFileUsed() != "" {
		c.mainViper.WatchConfig()
	}
	if c.secretViper.ConfigFileUsed() != "" {
		c.secretViper.WatchConfig()
	}
}

func (c *ConfigHandler) getConfig() (Config, error) {
	var output Config
	if err := readOptional(c.mainViper, "main"); err != nil {
		return Config{}, err
	}
	if err := readOptional(c.secretViper, "secret"); err != nil {
		return Config{}, err
	}
	// the secret file wins over the main one, env variables still win over both
	if err := c.mainViper.MergeConfigMap(c.secretViper.AllSettings()); err != nil {
		return Config{}, err
	}
	err := c.mainViper.Unmarshal(
		&output,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				parseStringAsURL(),
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		),
	)
	if err != nil {
		return Config{}, err
	}
	err = output.Validate()
	if err != nil {
		return Config{}, err
	}
	return output, nil
}

func readOptional(v *viper.Viper, name string) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		slog.Debug("CONFIG", "message", "no "+name+" config file found")
		return nil
	}
	return err
}

func parseStringAsURL() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (interface{}, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t != reflect.TypeOf(url.URL{}) && t != reflect.TypeOf(&url.URL{}) {
			return data, nil
		}

		dataStr, ok := data.(string)
		if !ok {
			return nil, fmt.Errorf("cannot cast URL value to string")
		}
		if dataStr == "" {
			return nil, fmt.Errorf("empty values are not allowed for URLs")
		}
		url, err := url.Parse(dataStr)
		if err != nil {
			return nil, err
		}
		return url, nil
	}
}
