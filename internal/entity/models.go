package entity

import "time"

// Row is a raw decoded entity row: the table it came from and its columns
// keyed by external field name. The conversion hook promotes Rows to the
// structs below.
type Row struct {
	Kind   Kind
	Edge   EdgeKind
	Table  string
	Fields map[string]any
}

// Node is a data or process record in the provenance graph.
type Node struct {
	ID                 int64
	UUID               string
	NodeType           string
	ProcessType        string
	Label              string
	Description        string
	CTime              time.Time
	MTime              time.Time
	Attributes         map[string]any
	Extras             map[string]any
	RepositoryMetadata map[string]any
	UserID             int64
	ComputerID         *int64
}

// Link is a directed, typed edge between two nodes.
type Link struct {
	ID       int64
	InputID  int64
	OutputID int64
	Label    string
	Type     LinkType
}

// Group is a named collection of nodes.
type Group struct {
	ID          int64
	UUID        string
	Label       string
	TypeString  string
	Time        time.Time
	Description string
	Extras      map[string]any
	UserID      int64
}

// User owns nodes, groups and comments.
type User struct {
	ID          int64
	Email       string
	FirstName   string
	LastName    string
	Institution string
}

// Computer is a compute resource nodes may have run on.
type Computer struct {
	ID            int64
	UUID          string
	Label         string
	Hostname      string
	Description   string
	SchedulerType string
	TransportType string
	Metadata      map[string]any
}

// AuthInfo holds a user's credentials for a computer.
type AuthInfo struct {
	ID         int64
	UserID     int64
	ComputerID int64
	Metadata   map[string]any
	AuthParams map[string]any
	Enabled    bool
}

// Comment is free text attached to a node.
type Comment struct {
	ID      int64
	UUID    string
	NodeID  int64
	CTime   time.Time
	MTime   time.Time
	UserID  int64
	Content string
}

// Log is a log record emitted while a process node ran.
type Log struct {
	ID         int64
	UUID       string
	Time       time.Time
	LoggerName string
	LevelName  string
	NodeID     int64
	Message    string
	Metadata   map[string]any
}
