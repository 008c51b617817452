package config

import (
	"encoding/json"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Load reads and validates a BacktestConfig from a yaml file.
func Load(path string) (*BacktestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse unmarshals and validates a BacktestConfig from yaml bytes. Assets
// without explicit constraints get the defaults.
func Parse(data []byte) (*BacktestConfig, error) {
	cfg := BacktestConfig{
		PortfolioConstraints: DefaultPortfolioConstraints(),
		Portfolio: PortfolioParams{
			CapitalGrowthFreq: FrequencyNever,
		},
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Assets {
		if cfg.Assets[i].Constraints == (PositionConstraintParams{}) {
			cfg.Assets[i].Constraints = DefaultPositionConstraints()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// GenerateSchema generates a JSON schema for the BacktestConfig.
func (c *BacktestConfig) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Time{}) {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}
			if strings.Contains(t.String(), "config.Frequency") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: AllFrequencies,
				}
			}
			if strings.Contains(t.String(), "config.CashPolicy") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: []any{CashPolicyShrink, CashPolicyReject},
				}
			}
			return nil
		},
	}

	schema := reflector.Reflect(c)
	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for a backtest run"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestConfig.
func (c *BacktestConfig) GenerateSchemaJSON() (string, error) {
	schema := c.GenerateSchema()

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
