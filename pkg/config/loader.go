package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

var durationType = reflect.TypeOf(time.Duration(0))

// Load builds the configuration. Defaults are applied first, then the YAML file at path
// (or at $LINECHAT_CONFIG when path is empty; no file is fine), then environment
// variables. The result is validated; setting problems are returned as *Error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cerr := &Error{}
	applyEnvOverrides(cfg, cerr)
	cfg.normalize()
	cfg.validate(cerr)
	if !cerr.empty() {
		return nil, cerr
	}
	return cfg, nil
}

// loadFile merges the YAML file at path into cfg. Keys absent from the file keep
// their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse config YAML %s: %w", path, err)
	}
	return nil
}

// expandEnv replaces ${VAR} placeholders with environment values. Unset variables
// expand to the empty string so that required-key validation catches them.
func expandEnv(data string) string {
	return envVarRegex.ReplaceAllStringFunc(data, func(match string) string {
		envVar := match[2 : len(match)-1] // Remove ${ and }
		return os.Getenv(envVar)
	})
}

func applyEnvOverrides(cfg *Config, cerr *Error) {
	applyEnvOverridesRecursive(reflect.ValueOf(cfg).Elem(), cerr)
}

func applyEnvOverridesRecursive(v reflect.Value, cerr *Error) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			applyEnvOverridesRecursive(field, cerr)
			continue
		}

		envKey, opt, _ := strings.Cut(fieldType.Tag.Get("env"), ",")
		if envKey == "" {
			continue
		}
		// An empty value means unset, except for clearable fields where setting the
		// variable to empty clears a value from the file.
		envValue, present := os.LookupEnv(envKey)
		if !present || (envValue == "" && opt != "clearable") {
			continue
		}
		if err := setFieldFromEnv(field, envValue); err != nil {
			cerr.invalid(envKey, "%v", err)
		}
	}
}

func setFieldFromEnv(field reflect.Value, envValue string) error {
	if !field.CanSet() {
		return errors.New("field is not settable")
	}

	envValue = strings.TrimSpace(envValue)
	switch {
	case field.Type() == durationType:
		d, err := parseDuration(envValue)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(envValue)
	case field.Kind() == reflect.Int:
		val, err := strconv.Atoi(envValue)
		if err != nil {
			return fmt.Errorf("failed to parse int from '%s'", envValue)
		}
		field.SetInt(int64(val))
	case field.Kind() == reflect.Float64:
		val, err := strconv.ParseFloat(envValue, 64)
		if err != nil {
			return fmt.Errorf("failed to parse float from '%s'", envValue)
		}
		field.SetFloat(val)
	case field.Kind() == reflect.Bool:
		val, err := parseBool(envValue)
		if err != nil {
			return err
		}
		field.SetBool(val)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// parseBool accepts "true", "1", "yes", "on" and "false", "0", "no", "off" in any case.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("failed to parse bool from '%s'", s)
	}
}

// parseDuration accepts Go duration strings and bare numbers of seconds.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration from '%s'", s)
	}
	return d, nil
}
