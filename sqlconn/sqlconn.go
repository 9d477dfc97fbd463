// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package sqlconn is a client connector running SQL statements on
// named database/sql pools, addressed as sql://name/.  The statement
// is the text/plain entity of a POST, or the q query parameter of a
// GET; further arg query parameters are its positional arguments.
// Row sets come back as a RowSet, other statements as an ExecResult,
// in whatever format the converters negotiate.
//
// Pools are configured by connection string and use PostgreSQL
// through lib/pq by default.  A directory of sql-migrate migrations
// can be applied to each pool when the connector starts.
package sqlconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"strings"
	"sync"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/converter"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

// Protocols is the protocol set of the helper.
var Protocols = []restlet.Protocol{restlet.SQL}

// Register adds the SQL client helper to a registry.
func Register(registry *connector.Registry) {
	registry.RegisterClient(Protocols, NewClientHelper)
}

// Options are the parameters of an SQL client connector.
type Options struct {
	// Driver is the database/sql driver name.
	Driver string
	// Databases maps names, the authority of a reference, to
	// connection strings.
	Databases map[string]string
	// Migrations maps names to directories of migrations to apply
	// at start.
	Migrations map[string]string
	// MaxOpenConns limits each pool; zero means no limit.
	MaxOpenConns int
}

// RowSet is the result of a query.
type RowSet struct {
	Columns []string        `json:"columns" codec:"columns"`
	Rows    [][]interface{} `json:"rows" codec:"rows"`
}

// ExecResult is the result of any other statement.
type ExecResult struct {
	RowsAffected int64 `json:"rowsAffected" codec:"rowsAffected"`
}

// ClientHelper runs statements.
type ClientHelper struct {
	Client     *connector.Client
	Options    Options
	Converters *converter.Service

	lock sync.RWMutex
	dbs  map[string]*sql.DB
}

// NewClientHelper is the connector.ClientFactory for SQL.
func NewClientHelper(client *connector.Client) (connector.ClientHelper, error) {
	h := &ClientHelper{
		Client:  client,
		Options: Options{Driver: "postgres"},
		dbs:     make(map[string]*sql.DB),
	}
	if registry := client.Registry(); registry != nil {
		h.Converters = registry.ConverterService()
	} else {
		h.Converters = converter.NewService()
	}
	if err := client.DecodeParameters(&h.Options); err != nil {
		return nil, err
	}
	return h, nil
}

// Protocols returns the SQL protocol.
func (h *ClientHelper) Protocols() []restlet.Protocol {
	return Protocols
}

// Start opens the configured pools and runs their migrations.
func (h *ClientHelper) Start() error {
	for name, conn := range h.Options.Databases {
		db, err := sql.Open(h.Options.Driver, normalize(h.Options.Driver, conn))
		if err != nil {
			return errors.Wrapf(err, "opening database %q", name)
		}
		if h.Options.MaxOpenConns > 0 {
			db.SetMaxOpenConns(h.Options.MaxOpenConns)
		}
		if dir := h.Options.Migrations[name]; dir != "" {
			n, err := Upgrade(db, h.Options.Driver, dir)
			if err != nil {
				_ = db.Close()
				return errors.Wrapf(err, "migrating database %q", name)
			}
			h.Client.Context.Log().WithFields(logrus.Fields{
				"database":   name,
				"migrations": n,
			}).Info("Applied migrations")
		}
		h.AddDB(name, db)
	}
	return nil
}

// Stop closes every pool.
func (h *ClientHelper) Stop() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	var firstErr error
	for name, db := range h.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.dbs, name)
	}
	return firstErr
}

// normalize turns a destructured "//user@host/db" URL back into a
// proper postgres: URL, as lib/pq wants.
func normalize(driverName, conn string) string {
	if driverName == "postgres" && strings.HasPrefix(conn, "//") {
		return "postgres:" + conn
	}
	return conn
}

// Migrations lists the migrations in a directory.
func Migrations(dir string) ([]*migrate.Migration, error) {
	return migrate.FileMigrationSource{Dir: dir}.FindMigrations()
}

// Upgrade applies the migrations in a directory and returns how many
// ran.
func Upgrade(db *sql.DB, dialect, dir string) (int, error) {
	return migrate.Exec(db, dialect, migrate.FileMigrationSource{Dir: dir}, migrate.Up)
}

// AddDB serves an open pool under a name.
func (h *ClientHelper) AddDB(name string, db *sql.DB) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.dbs[strings.ToLower(name)] = db
}

// DB returns a named pool, or nil.
func (h *ClientHelper) DB(name string) *sql.DB {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.dbs[strings.ToLower(name)]
}

// Handle runs one statement.
func (h *ClientHelper) Handle(req *restlet.Request, resp *restlet.Response) {
	name := req.ResourceRef.HostDomain()
	db := h.DB(name)
	if db == nil {
		resp.SetError(restlet.NewStatusError(restlet.StatusNotFound, "no database %q", name))
		return
	}
	statement, args, err := h.statement(req)
	if err != nil {
		resp.SetError(err)
		return
	}
	log := h.Client.Context.Log().WithFields(logrus.Fields{
		"database": name,
		"id":       req.ID,
	})
	log.WithField("statement", statement).Debug("SQL call")

	var result interface{}
	if returnsRows(statement) {
		result, err = query(req.Context(), db, req.Method.IsSafe(), statement, args)
	} else if req.Method.IsSafe() {
		err = restlet.NewStatusError(restlet.StatusBadRequest, "%v only runs queries", req.Method)
	} else {
		result, err = exec(req.Context(), db, statement, args)
	}
	if err != nil {
		status := statusOf(err)
		if status.IsServerError() || status.IsConnectorError() {
			log.WithError(err).Warn("SQL call failed")
		}
		resp.Status = status
		resp.Err = err
		return
	}

	entity, err := h.Converters.ToRepresentation(result, req.ClientInfo.Conneg(nil))
	if err != nil {
		resp.SetError(err)
		return
	}
	resp.SetStatus(restlet.StatusOK)
	resp.Entity = entity
}

// statement finds the statement text and its arguments.
func (h *ClientHelper) statement(req *restlet.Request) (string, []interface{}, error) {
	values := req.ResourceRef.QueryValues()
	var args []interface{}
	for _, arg := range values["arg"] {
		args = append(args, arg)
	}
	switch req.Method {
	case restlet.MethodGet:
		if q := values.Get("q"); q != "" {
			return q, args, nil
		}
		return "", nil, restlet.NewStatusError(restlet.StatusBadRequest, "GET needs a q parameter")
	case restlet.MethodPost:
		if req.Entity == nil {
			return "", nil, restlet.NewStatusError(restlet.StatusBadRequest, "POST needs a statement entity")
		}
		mt := req.Entity.Variant().MediaType
		if !mt.IsZero() && !metadata.TextPlain.Includes(mt) {
			return "", nil, converter.ErrUnsupportedMediaType{Type: mt.String()}
		}
		text, err := representation.Text(req.Context(), req.Entity)
		if err != nil {
			return "", nil, err
		}
		if strings.TrimSpace(text) == "" {
			return "", nil, restlet.NewStatusError(restlet.StatusBadRequest, "empty statement")
		}
		return text, args, nil
	}
	return "", nil, restlet.NewStatusError(restlet.StatusMethodNotAllowed, "%v is not supported", req.Method)
}

func query(ctx context.Context, db *sql.DB, readOnly bool, statement string, args []interface{}) (*RowSet, error) {
	result := &RowSet{}
	err := withTx(ctx, db, readOnly, func(tx *sql.Tx) error {
		result.Rows = [][]interface{}{}
		rows, err := tx.QueryContext(ctx, statement, args...)
		if err != nil {
			return err
		}
		result.Columns, err = rows.Columns()
		if err != nil {
			_ = rows.Close()
			return err
		}
		return scanRows(rows, func() error {
			values := make([]interface{}, len(result.Columns))
			ptrs := make([]interface{}, len(values))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			for i, v := range values {
				values[i] = cell(v)
			}
			result.Rows = append(result.Rows, values)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func exec(ctx context.Context, db *sql.DB, statement string, args []interface{}) (*ExecResult, error) {
	result := &ExecResult{}
	err := withTx(ctx, db, false, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, statement, args...)
		if err != nil {
			return err
		}
		result.RowsAffected, err = r.RowsAffected()
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// statusOf maps database errors: bad statements are the client's
// fault, constraint violations are conflicts, and an unreachable
// database is a connection error.
func statusOf(err error) restlet.Status {
	if pqerr, ok := err.(*pq.Error); ok {
		s := restlet.StatusInternalServerError
		switch pqerr.Code.Class() {
		case "42", "22":
			s = restlet.StatusBadRequest
		case "23":
			s = restlet.StatusConflict
		case "28":
			s = restlet.StatusForbidden
		case "08":
			s = restlet.StatusConnectorConnection
		}
		return s.WithDescription(pqerr.Message)
	}
	if err == driver.ErrBadConn {
		return restlet.StatusConnectorConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return restlet.StatusConnectorConnection
	}
	return restlet.StatusOf(err)
}
