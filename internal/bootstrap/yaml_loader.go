package bootstrap

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPrefix roots every override in the MAXBACKUP_ namespace so the daemon
// never collides with unrelated environment variables on the host.
const envPrefix = "MAXBACKUP"

// YAMLLoader implements Loader for YAML files.
type YAMLLoader struct {
	// DefaultPath is the config file read by Load.
	DefaultPath string
}

// NewYAMLLoader creates a new YAML config loader.
func NewYAMLLoader(defaultPath string) *YAMLLoader {
	return &YAMLLoader{DefaultPath: defaultPath}
}

// Load implements Loader.Load for YAML files.
func (l *YAMLLoader) Load(cfg *ServiceBootstrapConfig) error {
	*cfg = Defaults()

	if _, err := os.Stat(l.DefaultPath); err == nil {
		if err := l.LoadFromFile(l.DefaultPath, cfg); err != nil {
			return fmt.Errorf("loading config from default path: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking config file %s: %w", l.DefaultPath, err)
	}

	if err := l.LoadWithOverrides(cfg); err != nil {
		return fmt.Errorf("applying environment overrides: %w", err)
	}

	return nil
}

// LoadFromFile implements Loader.LoadFromFile for YAML files.
func (l *YAMLLoader) LoadFromFile(filePath string, cfg *ServiceBootstrapConfig) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", filePath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshaling YAML: %w", err)
	}

	return nil
}

// LoadWithOverrides implements Loader.LoadWithOverrides.
func (l *YAMLLoader) LoadWithOverrides(cfg *ServiceBootstrapConfig) error {
	return applyEnvironmentOverrides(cfg)
}

func applyEnvironmentOverrides(cfg *ServiceBootstrapConfig) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	return walkStructForEnvOverrides(v, t, envPrefix)
}

// walkStructForEnvOverrides walks through a struct applying env var overrides.
func walkStructForEnvOverrides(v reflect.Value, t reflect.Type, prefix string) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		tag := field.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}

		tagParts := strings.Split(tag, ",")
		tag = tagParts[0]

		envName := buildEnvVarName(prefix, tag)

		if field.Type.Kind() == reflect.Struct {
			if err := walkStructForEnvOverrides(fieldValue, field.Type, envName); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envName)
		if !exists {
			continue
		}

		if err := applyEnvValueToField(fieldValue, envValue); err != nil {
			return fmt.Errorf("applying env var %s: %w", envName, err)
		}
	}

	return nil
}

// buildEnvVarName constructs an environment variable name from prefix and field.
func buildEnvVarName(prefix, field string) string {
	parts := []string{}

	if prefix != "" {
		parts = append(parts, prefix)
	}

	parts = append(parts, field)

	envName := strings.Join(parts, "_")
	return strings.ToUpper(envName)
}

// applyEnvValueToField sets a field's value from an environment variable string.
func applyEnvValueToField(fieldValue reflect.Value, envValue string) error {
	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(envValue)

	case reflect.Bool:
		boolValue, err := strconv.ParseBool(envValue)
		if err != nil {
			return fmt.Errorf("parsing bool: %w", err)
		}
		fieldValue.SetBool(boolValue)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(envValue, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing int: %w", err)
		}
		fieldValue.SetInt(intValue)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintValue, err := strconv.ParseUint(envValue, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing uint: %w", err)
		}
		fieldValue.SetUint(uintValue)

	case reflect.Float32, reflect.Float64:
		floatValue, err := strconv.ParseFloat(envValue, 64)
		if err != nil {
			return fmt.Errorf("parsing float: %w", err)
		}
		fieldValue.SetFloat(floatValue)

	default:
		return fmt.Errorf("unsupported field type: %s", fieldValue.Kind())
	}

	return nil
}
