package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
	"github.com/creasty/defaults"

	_ "embed"
)

const (
	FormatSummary   = "summary"
	FormatGraph     = "graph"
	FormatCanonical = "canonical"
	FormatCycloneDX = "cyclonedx"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"
)

// Config is the vuln-lens configuration
type Config struct {
	Version   int       `json:"version" yaml:"version"` // fixed 0 for now
	Input     Input     `json:"input" yaml:"input"`
	Normalize Normalize `json:"normalize" yaml:"normalize"`
	Graph     Graph     `json:"graph" yaml:"graph"`
	Output    Output    `json:"output" yaml:"output"`
	Batch     Batch     `json:"batch" yaml:"batch"`
	Service   Runtime   `json:"service" yaml:"service"`
}

// Input controls how scan documents are located and checked on load.
type Input struct {
	Candidates []string `json:"candidates" yaml:"candidates" default:"[\"nessus.json\",\"nesus_large.json\"]"`
	Schema     bool     `json:"schema" yaml:"schema" default:"true"`
}

type Normalize struct {
	Fields Fields `json:"fields" yaml:"fields"`
}

// Fields holds the ordered fallback lists used to resolve each logical field
// of a raw record. The first key holding a present value wins.
type Fields struct {
	HostIP         []string `json:"host_ip" yaml:"host_ip" default:"[\"ip\",\"host\",\"name\"]"`
	Hostname       []string `json:"hostname" yaml:"hostname" default:"[\"hostname\",\"fqdn\",\"host_name\"]"`
	OS             []string `json:"os" yaml:"os" default:"[\"os\",\"operating_system\"]"`
	Services       []string `json:"services" yaml:"services" default:"[\"services\"]"`
	Findings       []string `json:"findings" yaml:"findings" default:"[\"vulnerabilities\",\"findings\"]"`
	ServicePort    []string `json:"service_port" yaml:"service_port" default:"[\"port\"]"`
	ServiceProto   []string `json:"service_proto" yaml:"service_proto" default:"[\"protocol\",\"proto\"]"`
	ServiceName    []string `json:"service_name" yaml:"service_name" default:"[\"service\",\"name\"]"`
	PluginID       []string `json:"plugin_id" yaml:"plugin_id" default:"[\"plugin_id\",\"pluginID\",\"id\",\"plugin\"]"`
	FindingName    []string `json:"finding_name" yaml:"finding_name" default:"[\"name\",\"title\",\"pluginName\"]"`
	Severity       []string `json:"severity" yaml:"severity" default:"[\"severity\"]"`
	CVSS           []string `json:"cvss" yaml:"cvss" default:"[\"cvss\",\"cvss3\",\"cvss3_base_score\"]"`
	CVSSVector     []string `json:"cvss_vector" yaml:"cvss_vector" default:"[\"cvss_vector\",\"cvss3_vector\"]"`
	FindingPort    []string `json:"finding_port" yaml:"finding_port" default:"[\"port\"]"`
	Description    []string `json:"description" yaml:"description" default:"[\"description\",\"desc\"]"`
	Recommendation []string `json:"recommendation" yaml:"recommendation" default:"[\"recommendation\",\"solution\"]"`
}

// Graph holds the risk aggregation parameters.
type Graph struct {
	HostTopNFindings int     `json:"host_top_n_findings" yaml:"host_top_n_findings" default:"10"`
	SeverityWeight   float64 `json:"severity_weight" yaml:"severity_weight" default:"2.5"`
}

type Output struct {
	Format string `json:"format" yaml:"format" default:"summary"` // summary|graph|canonical|cyclonedx
}

type Batch struct {
	Workers int `json:"workers" yaml:"workers" default:"4"`
}

// Runtime is the service section: logging of the process.
type Runtime struct {
	Verbose bool   `json:"verbose" yaml:"verbose"`
	Log     string `json:"log" yaml:"log" default:"stderr"` // "stderr"|"stdout"|"discard"|path
}

// DefaultConfig returns the configuration used when no config file exists.
// It is equal to the result of loading an empty YAML document.
func DefaultConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// only malformed struct tags can get here
		panic(err)
	}
	return cfg
}

// DefaultFields returns the default fallback lists of the normalizer.
func DefaultFields() Fields {
	return DefaultConfig().Normalize.Fields
}

func (c Config) IsZero() bool {
	return isZero(c)
}

func (f Fields) IsZero() bool {
	return isZero(f)
}

//go:embed config.cue
var cueSource []byte

var (
	cueCtx    *cue.Context
	cueConfig cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	cueConfig = compiled.LookupPath(cue.ParsePath("#Config"))
	if cueConfig.Err() != nil {
		panic(cueConfig.Err())
	}
	if err := cueConfig.Validate(); err != nil {
		panic(err)
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
// NOT SAFE for multiple goroutines
// Return CueError in a case validation phase fails
func LoadConfig(r io.Reader) (Config, error) {
	var ret Config
	if err := loadConfig(r, &ret); err != nil {
		return ret, err
	}
	return ret, nil
}

// LoadConfigFromPath is LoadConfig reading a file, "-" means stdin.
func LoadConfigFromPath(path string) (Config, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("error opening config file: %w", err)
		}
		r = f
		defer func() {
			err := f.Close()
			if err != nil {
				slog.Error("can't close config file", "path", path, "error", err)
			}
		}()
	}
	cfg, err := LoadConfig(r)
	if err != nil {
		var cuerr CueError
		if errors.As(err, &cuerr) {
			for _, d := range cuerr.Details() {
				slog.Error("validation error", d.Attr("detail"))
			}
		}
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func loadConfig(r io.Reader, cfg *Config) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	yamlFile, err := yaml.Extract("config.yaml", bytes.NewReader(b))
	if err != nil {
		return err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := cueConfig.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return CueError{cuerr: err}
	}

	if err := unified.Decode(cfg); err != nil {
		return err
	}

	expandEnvValue(reflect.ValueOf(cfg).Elem())
	return nil
}

// expandEnvValue expands ${VAR} and $VAR in every string reachable from v
func expandEnvValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandEnvValue(v.Field(i))
		}
	case reflect.Pointer:
		if !v.IsNil() {
			expandEnvValue(v.Elem())
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandEnvValue(v.Index(i))
		}
	default:
		// other kinds ignored
	}
}

func isZero[T any](v T) bool {
	return reflect.ValueOf(v).IsZero()
}
