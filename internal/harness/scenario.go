package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a query conformance scenario: a small provenance graph
// and the queries to run against it with their expected outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed seeds the UUID generator so fixture UUIDs are reproducible. When
	// empty, a seed is derived from Name.
	Seed string `yaml:"seed,omitempty"`

	// Fixture is the graph written before any query runs.
	Fixture Fixture `yaml:"fixture"`

	// Queries run in order against the fixture graph.
	Queries []QueryCase `yaml:"queries"`
}

// Fixture describes a provenance graph. Records name each other through
// refs; a node with no user is owned by the first user, and a default user
// is created when none is listed.
type Fixture struct {
	Users     []UserFixture     `yaml:"users,omitempty"`
	Computers []ComputerFixture `yaml:"computers,omitempty"`
	AuthInfos []AuthInfoFixture `yaml:"authinfos,omitempty"`
	Nodes     []NodeFixture     `yaml:"nodes"`
	Links     []LinkFixture     `yaml:"links,omitempty"`
	Groups    []GroupFixture    `yaml:"groups,omitempty"`
	Comments  []CommentFixture  `yaml:"comments,omitempty"`
	Logs      []LogFixture      `yaml:"logs,omitempty"`
}

type UserFixture struct {
	Ref         string `yaml:"ref"`
	Email       string `yaml:"email"`
	FirstName   string `yaml:"first_name,omitempty"`
	LastName    string `yaml:"last_name,omitempty"`
	Institution string `yaml:"institution,omitempty"`
}

type ComputerFixture struct {
	Ref           string         `yaml:"ref"`
	Label         string         `yaml:"label"`
	Hostname      string         `yaml:"hostname,omitempty"`
	Description   string         `yaml:"description,omitempty"`
	SchedulerType string         `yaml:"scheduler_type,omitempty"`
	TransportType string         `yaml:"transport_type,omitempty"`
	Metadata      map[string]any `yaml:"metadata,omitempty"`
}

type AuthInfoFixture struct {
	User       string         `yaml:"user"`
	Computer   string         `yaml:"computer"`
	Enabled    bool           `yaml:"enabled"`
	Metadata   map[string]any `yaml:"metadata,omitempty"`
	AuthParams map[string]any `yaml:"auth_params,omitempty"`
}

type NodeFixture struct {
	Ref         string         `yaml:"ref"`
	NodeType    string         `yaml:"node_type"`
	ProcessType string         `yaml:"process_type,omitempty"`
	Label       string         `yaml:"label,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Attributes  map[string]any `yaml:"attributes,omitempty"`
	Extras      map[string]any `yaml:"extras,omitempty"`
	User        string         `yaml:"user,omitempty"`
	Computer    string         `yaml:"computer,omitempty"`
}

type LinkFixture struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Type   string `yaml:"type"`
	Label  string `yaml:"label,omitempty"`
}

type GroupFixture struct {
	Ref         string         `yaml:"ref"`
	Label       string         `yaml:"label"`
	TypeString  string         `yaml:"type_string,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Extras      map[string]any `yaml:"extras,omitempty"`
	User        string         `yaml:"user,omitempty"`
	Nodes       []string       `yaml:"nodes,omitempty"`
}

type CommentFixture struct {
	Node    string `yaml:"node"`
	User    string `yaml:"user,omitempty"`
	Content string `yaml:"content"`
}

type LogFixture struct {
	Node       string         `yaml:"node"`
	LoggerName string         `yaml:"loggername,omitempty"`
	LevelName  string         `yaml:"levelname"`
	Message    string         `yaml:"message"`
	Metadata   map[string]any `yaml:"metadata,omitempty"`
}

// QueryCase is one query and what it must produce.
type QueryCase struct {
	// Name identifies the query within the scenario.
	Name string `yaml:"name"`

	// Spec is the query in wire form. Exactly one of Spec and SpecFile is set.
	Spec map[string]any `yaml:"spec,omitempty"`

	// SpecFile is a JSON, YAML or CUE spec file, relative to the scenario.
	SpecFile string `yaml:"spec_file,omitempty"`

	// MaxDepth overrides the closure depth bound for this query.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// Expect holds the expected outcome.
	Expect Expect `yaml:"expect"`
}

// Expect lists the checks applied to a query's outcome. Unset checks are
// skipped.
type Expect struct {
	// Count is the expected Count() result.
	Count *int `yaml:"count,omitempty"`

	// Rows are the expected All() rows, compared in order unless Unordered.
	Rows []any `yaml:"rows,omitempty"`

	// Unordered compares Rows as a multiset.
	Unordered bool `yaml:"unordered,omitempty"`

	// Error is the expected error code, e.g. INVALID_FILTER.
	Error string `yaml:"error,omitempty"`

	// SQLContains lists fragments the compiled SQL must contain.
	SQLContains []string `yaml:"sql_contains,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Spec file paths are
// resolved relative to the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec file paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i := range scenario.Queries {
		q := &scenario.Queries[i]
		if q.SpecFile != "" && !filepath.IsAbs(q.SpecFile) && basePath != "" {
			q.SpecFile = filepath.Join(basePath, q.SpecFile)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML, rejecting unknown fields.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and ref integrity.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	if err := validateFixture(&s.Fixture); err != nil {
		return fmt.Errorf("fixture: %w", err)
	}

	names := make(map[string]bool)
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if names[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		names[q.Name] = true
		if (q.Spec == nil) == (q.SpecFile == "") {
			return fmt.Errorf("queries[%d] (%s): exactly one of spec and spec_file is required", i, q.Name)
		}
		if q.MaxDepth < 0 {
			return fmt.Errorf("queries[%d] (%s): max_depth must not be negative", i, q.Name)
		}
		if q.Expect.Error != "" && (q.Expect.Count != nil || q.Expect.Rows != nil) {
			return fmt.Errorf("queries[%d] (%s): an expected error excludes count and rows", i, q.Name)
		}
	}
	return nil
}

func validateFixture(f *Fixture) error {
	refs := func(kind string) func(string) error {
		seen := make(map[string]bool)
		return func(ref string) error {
			if ref == "" {
				return fmt.Errorf("%s ref is required", kind)
			}
			if seen[ref] {
				return fmt.Errorf("duplicate %s ref %q", kind, ref)
			}
			seen[ref] = true
			return nil
		}
	}

	users, computers, nodes, groups := refs("user"), refs("computer"), refs("node"), refs("group")
	for _, u := range f.Users {
		if err := users(u.Ref); err != nil {
			return err
		}
	}
	for _, c := range f.Computers {
		if err := computers(c.Ref); err != nil {
			return err
		}
	}
	for _, n := range f.Nodes {
		if err := nodes(n.Ref); err != nil {
			return err
		}
		if n.NodeType == "" {
			return fmt.Errorf("node %q: node_type is required", n.Ref)
		}
	}
	for _, g := range f.Groups {
		if err := groups(g.Ref); err != nil {
			return err
		}
	}
	for i, l := range f.Links {
		if l.Input == "" || l.Output == "" || l.Type == "" {
			return fmt.Errorf("links[%d]: input, output and type are required", i)
		}
	}
	return nil
}
