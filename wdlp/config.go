package wdlp

import (
	"fmt"
	"io"
	"regexp"
	"time"

	"gopkg.in/yaml.v2"
)

type OutputConfig struct {
	Directory string `yaml:"directory"`
	Format    Format `yaml:"format"`
	Compress  bool   `yaml:"compress"`
	BatchSize int    `yaml:"batch_size"`
}

type ParserConfig struct {
	Limits    `yaml:",inline"`
	ChunkSize int `yaml:"chunk_size"`
}

// LedgerConfig names the database the processing ledger lives in. Driver is
// sqlite3 or postgres. ConnectTimeout bounds how long opening keeps retrying
// an unreachable server.
type LedgerConfig struct {
	Driver         string        `yaml:"driver"`
	DSN            string        `yaml:"dsn"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// FieldConfig is one field of a schema as written in the config file.
type FieldConfig struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Length    int    `yaml:"length"`
	MaxLength int    `yaml:"max_length"`
	Min       int64  `yaml:"min"`
	Max       int64  `yaml:"max"`
	Pattern   string `yaml:"pattern"`
	Layout    string `yaml:"layout"`
}

type Config struct {
	Output      OutputConfig                 `yaml:"output"`
	Parser      ParserConfig                 `yaml:"parser"`
	Ledger      LedgerConfig                 `yaml:"ledger"`
	SentryDSN   string                       `yaml:"sentry_dsn"`
	MetricsFile string                       `yaml:"metrics_file"`
	Schemas     map[RecordType][]FieldConfig `yaml:"schemas"`

	schemas SchemaSet
}

func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Directory: ".",
			Format:    FormatJSONL,
			BatchSize: DefaultBatchSize,
		},
		Parser: ParserConfig{
			Limits:    DefaultLimits(),
			ChunkSize: DefaultChunkSize,
		},
		Ledger: LedgerConfig{
			Driver:         "sqlite3",
			DSN:            "wdlp.db",
			ConnectTimeout: 30 * time.Second,
		},
		schemas: BuiltinSchemas(),
	}
}

// NewConfigFromFile reads a YAML config over the defaults. Schemas declared
// in the file are added to the built-in ones, replacing any with the same
// code.
func NewConfigFromFile(r io.Reader) (c *Config, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	c = DefaultConfig()
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}

	if c.Output.Format != "" {
		if c.Output.Format, err = ParseFormat(string(c.Output.Format)); err != nil {
			return nil, err
		}
	}

	declared := make(SchemaSet, len(c.Schemas))
	for code, fields := range c.Schemas {
		s, err := buildSchema(code, fields)
		if err != nil {
			return nil, err
		}
		declared[code] = s
	}
	c.schemas = c.schemas.Merge(declared)

	return c, nil
}

func buildSchema(code RecordType, fields []FieldConfig) (*Schema, error) {
	specs := make([]FieldSpec, len(fields))
	for i, fc := range fields {
		kind, err := ParseFieldKind(fc.Kind)
		if err != nil {
			return nil, fmt.Errorf("schema %s field %q: %w", code, fc.Name, err)
		}

		spec := FieldSpec{
			Name:      fc.Name,
			Kind:      kind,
			Length:    fc.Length,
			MaxLength: fc.MaxLength,
			Min:       fc.Min,
			Max:       fc.Max,
			Layout:    fc.Layout,
		}
		if fc.Pattern != "" {
			// Patterns always apply to the whole value.
			spec.Pattern, err = regexp.Compile("^(?:" + fc.Pattern + ")$")
			if err != nil {
				return nil, fmt.Errorf("%w: schema %s field %q: %v", ErrInvalidSchema, code, fc.Name, err)
			}
		}
		specs[i] = spec
	}
	return NewSchema(code, specs...)
}

// AllSchemas is every schema the config knows, built-in and declared.
func (c *Config) AllSchemas() SchemaSet {
	return c.schemas
}

func (c *Config) SchemaForCode(code RecordType) (*Schema, error) {
	if s, ok := c.schemas[code]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no schema for record type %s", code)
}
