package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/goccy/go-yaml"
)

// ConfigBaseName is the base name of the evreg configuration file without extension.
const ConfigBaseName = "evreg"

// ConfigExtension is the file extension for the configuration file without the leading dot.
const ConfigExtension = "yaml"

// ConfigFileName is the filename for the evreg configuration file.
const ConfigFileName = ConfigBaseName + "." + ConfigExtension

// SaveAsYaml writes the configuration to <root>/evreg.yaml, each field preceded by
// its comment tag.
func (c Config) SaveAsYaml() error {
	if err := EnsureRoot(c.RootDir); err != nil {
		return err
	}
	configPath := filepath.Join(c.RootDir, ConfigFileName)

	commentMap := yaml.CommentMap{}
	collectComments(reflect.TypeOf(Config{}), "", commentMap)

	data, err := yaml.MarshalWithOptions(c, yaml.WithComment(commentMap))
	if err != nil {
		return fmt.Errorf("error marshaling YAML data: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("error writing %s file: %w", ConfigFileName, err)
	}
	return nil
}

// collectComments walks the struct fields recursively and maps "$.a.b" paths to
// the field's comment tag.
func collectComments(t reflect.Type, prefix string, commentMap yaml.CommentMap) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		yamlTag := field.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		fieldPath := yamlTag
		if prefix != "" {
			fieldPath = prefix + "." + yamlTag
		}

		if comment := field.Tag.Get("comment"); comment != "" {
			commentMap["$."+fieldPath] = []*yaml.Comment{yaml.HeadComment(" " + comment)}
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(DurationWrapper{}) {
			collectComments(field.Type, fieldPath, commentMap)
		}
	}
}

// EnsureRoot ensures that the root directory exists.
func EnsureRoot(rootDir string) error {
	if rootDir == "" {
		return fmt.Errorf("root directory cannot be empty")
	}

	if err := os.MkdirAll(rootDir, DefaultDirPerm); err != nil {
		return fmt.Errorf("could not create directory %q: %w", rootDir, err)
	}

	return nil
}
