package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// outputFormats are the values accepted by --format.
var outputFormats = []string{"table", "json", "yaml"}

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Output flags
	OutputFormat string `flag:"format,f" desc:"Output format (table|json|yaml)" default:"table"`

	// Template data flags
	Data     string `flag:"data" desc:"Template data (JSON or @file.json)" default:""`
	DataFile string `flag:"data-file" desc:"Template data file (JSON)" default:""`
}

// AddStandardFlags adds standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "output":
			addOutputFlags(cmd, flags)
		case "data":
			addDataFlags(cmd, flags)
		}
	}

	return flags
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "format", "f", "table", "Output format (table|json|yaml)")
	AddFlagValidation(cmd, "format", func(format string) error {
		return ValidateFormat(format, outputFormats)
	})
}

func addDataFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVar(&flags.Data, "data", "", "Template data (JSON or @file.json)")
	cmd.Flags().StringVar(&flags.DataFile, "data-file", "", "Template data file (JSON)")
	AddFlagValidation(cmd, "data-file", ValidateFileExists)
}

// ParseData decodes the template data with support for file references.
// No data renders against an empty object.
func (f *StandardFlags) ParseData() (interface{}, error) {
	switch {
	case f.DataFile != "":
		return readJSONFile(f.DataFile)
	case strings.HasPrefix(f.Data, "@"):
		return readJSONFile(strings.TrimPrefix(f.Data, "@"))
	case f.Data != "":
		var data interface{}
		if err := json.Unmarshal([]byte(f.Data), &data); err != nil {
			return nil, fmt.Errorf("invalid JSON in --data: %w", err)
		}
		return data, nil
	default:
		return map[string]interface{}{}, nil
	}
}

func readJSONFile(filename string) (interface{}, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file %s: %w", filename, err)
	}

	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON in data file %s: %w", filename, err)
	}

	return data, nil
}

// ValidateFlags validates flag combinations and values
func (f *StandardFlags) ValidateFlags() error {
	if f.Data != "" && f.DataFile != "" {
		return fmt.Errorf("cannot specify both --data and --data-file")
	}

	if f.OutputFormat != "" {
		if err := ValidateFormat(f.OutputFormat, outputFormats); err != nil {
			return err
		}
	}

	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateFormat checks format against the accepted values.
func ValidateFormat(format string, valid []string) error {
	for _, v := range valid {
		if strings.EqualFold(format, v) {
			return nil
		}
	}

	return fmt.Errorf("invalid output format %s, must be one of: %s", format, strings.Join(valid, ", "))
}

// File existence validation helper
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil // Empty is valid for optional files
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}

	return nil
}
