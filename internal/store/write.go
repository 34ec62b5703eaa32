package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/ir"
)

// The Insert methods write graph fixtures. They are used by tests, the
// scenario harness and the CLI's fixture loader; the query compiler itself
// never writes.
//
// Each method fills in the generated ID and, where unset, the UUID and
// timestamps, then returns the updated record.

func newUUIDString() string {
	return uuid.NewString()
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: last insert id: %w", op, err)
	}
	return id, nil
}

func (s *Store) stamp(t time.Time) string {
	if t.IsZero() {
		t = s.now()
	}
	return ir.FormatTime(t)
}

func (s *Store) uuidOr(u string) (string, error) {
	if u == "" {
		return s.newUUID(), nil
	}
	parsed, err := uuid.Parse(u)
	if err != nil {
		return "", fmt.Errorf("invalid uuid %q: %w", u, err)
	}
	return parsed.String(), nil
}

// jsonColumn renders a JSON column value as canonical JSON; nil is {}.
func jsonColumn(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := ir.MarshalCanonical(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// InsertUser inserts a user.
func (s *Store) InsertUser(ctx context.Context, u entity.User) (entity.User, error) {
	id, err := s.exec(ctx, "insert user", `
		INSERT INTO db_dbuser (email, first_name, last_name, institution)
		VALUES (?, ?, ?, ?)
	`, u.Email, u.FirstName, u.LastName, u.Institution)
	if err != nil {
		return u, err
	}
	u.ID = id
	return u, nil
}

// InsertComputer inserts a computer.
func (s *Store) InsertComputer(ctx context.Context, c entity.Computer) (entity.Computer, error) {
	var err error
	if c.UUID, err = s.uuidOr(c.UUID); err != nil {
		return c, fmt.Errorf("insert computer: %w", err)
	}
	meta, err := jsonColumn(c.Metadata)
	if err != nil {
		return c, fmt.Errorf("insert computer: metadata: %w", err)
	}
	c.ID, err = s.exec(ctx, "insert computer", `
		INSERT INTO db_dbcomputer (uuid, label, hostname, description, scheduler_type, transport_type, _metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.UUID, c.Label, c.Hostname, c.Description, c.SchedulerType, c.TransportType, meta)
	return c, err
}

// InsertAuthInfo inserts credentials linking a user to a computer.
func (s *Store) InsertAuthInfo(ctx context.Context, a entity.AuthInfo) (entity.AuthInfo, error) {
	meta, err := jsonColumn(a.Metadata)
	if err != nil {
		return a, fmt.Errorf("insert authinfo: metadata: %w", err)
	}
	params, err := jsonColumn(a.AuthParams)
	if err != nil {
		return a, fmt.Errorf("insert authinfo: auth params: %w", err)
	}
	a.ID, err = s.exec(ctx, "insert authinfo", `
		INSERT INTO db_dbauthinfo (aiidauser_id, dbcomputer_id, _metadata, auth_params, enabled)
		VALUES (?, ?, ?, ?, ?)
	`, a.UserID, a.ComputerID, meta, params, a.Enabled)
	return a, err
}

// InsertNode inserts a node.
func (s *Store) InsertNode(ctx context.Context, n entity.Node) (entity.Node, error) {
	var err error
	if n.UUID, err = s.uuidOr(n.UUID); err != nil {
		return n, fmt.Errorf("insert node: %w", err)
	}
	attrs, err := jsonColumn(n.Attributes)
	if err != nil {
		return n, fmt.Errorf("insert node: attributes: %w", err)
	}
	extras, err := jsonColumn(n.Extras)
	if err != nil {
		return n, fmt.Errorf("insert node: extras: %w", err)
	}
	repo, err := jsonColumn(n.RepositoryMetadata)
	if err != nil {
		return n, fmt.Errorf("insert node: repository metadata: %w", err)
	}
	ctime := s.stamp(n.CTime)
	mtime := ctime
	if !n.MTime.IsZero() {
		mtime = ir.FormatTime(n.MTime)
	}
	var processType sql.NullString
	if n.ProcessType != "" {
		processType = sql.NullString{String: n.ProcessType, Valid: true}
	}
	var computer sql.NullInt64
	if n.ComputerID != nil {
		computer = sql.NullInt64{Int64: *n.ComputerID, Valid: true}
	}

	n.ID, err = s.exec(ctx, "insert node", `
		INSERT INTO db_dbnode
		(uuid, node_type, process_type, label, description, ctime, mtime,
		 attributes, extras, repository_metadata, user_id, dbcomputer_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.UUID, n.NodeType, processType, n.Label, n.Description, ctime, mtime,
		attrs, extras, repo, n.UserID, computer)
	return n, err
}

// InsertLink inserts a directed link between two nodes.
func (s *Store) InsertLink(ctx context.Context, l entity.Link) (entity.Link, error) {
	var err error
	l.ID, err = s.exec(ctx, "insert link", `
		INSERT INTO db_dblink (input_id, output_id, label, type)
		VALUES (?, ?, ?, ?)
	`, l.InputID, l.OutputID, l.Label, string(l.Type))
	return l, err
}

// InsertGroup inserts a group.
func (s *Store) InsertGroup(ctx context.Context, g entity.Group) (entity.Group, error) {
	var err error
	if g.UUID, err = s.uuidOr(g.UUID); err != nil {
		return g, fmt.Errorf("insert group: %w", err)
	}
	if g.TypeString == "" {
		g.TypeString = "core"
	}
	extras, err := jsonColumn(g.Extras)
	if err != nil {
		return g, fmt.Errorf("insert group: extras: %w", err)
	}
	g.ID, err = s.exec(ctx, "insert group", `
		INSERT INTO db_dbgroup (uuid, label, type_string, time, description, extras, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, g.UUID, g.Label, g.TypeString, s.stamp(g.Time), g.Description, extras, g.UserID)
	return g, err
}

// AddNodesToGroup adds nodes to a group.
// Uses ON CONFLICT DO NOTHING for idempotency - existing members are silently ignored.
func (s *Store) AddNodesToGroup(ctx context.Context, groupID int64, nodeIDs ...int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add nodes to group: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, id := range nodeIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO db_dbgroup_dbnodes (dbnode_id, dbgroup_id)
			VALUES (?, ?)
			ON CONFLICT(dbgroup_id, dbnode_id) DO NOTHING
		`, id, groupID); err != nil {
			return fmt.Errorf("add node %d to group %d: %w", id, groupID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add nodes to group: commit: %w", err)
	}
	return nil
}

// InsertComment attaches a comment to a node.
func (s *Store) InsertComment(ctx context.Context, c entity.Comment) (entity.Comment, error) {
	var err error
	if c.UUID, err = s.uuidOr(c.UUID); err != nil {
		return c, fmt.Errorf("insert comment: %w", err)
	}
	ctime := s.stamp(c.CTime)
	mtime := ctime
	if !c.MTime.IsZero() {
		mtime = ir.FormatTime(c.MTime)
	}
	c.ID, err = s.exec(ctx, "insert comment", `
		INSERT INTO db_dbcomment (uuid, dbnode_id, ctime, mtime, user_id, content)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.UUID, c.NodeID, ctime, mtime, c.UserID, c.Content)
	return c, err
}

// InsertLog attaches a log record to a node.
func (s *Store) InsertLog(ctx context.Context, l entity.Log) (entity.Log, error) {
	var err error
	if l.UUID, err = s.uuidOr(l.UUID); err != nil {
		return l, fmt.Errorf("insert log: %w", err)
	}
	meta, err := jsonColumn(l.Metadata)
	if err != nil {
		return l, fmt.Errorf("insert log: metadata: %w", err)
	}
	l.ID, err = s.exec(ctx, "insert log", `
		INSERT INTO db_dblog (uuid, time, loggername, levelname, dbnode_id, message, _metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.UUID, s.stamp(l.Time), l.LoggerName, l.LevelName, l.NodeID, l.Message, meta)
	return l, err
}
