// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package sqlconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/converter"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver answers a handful of scripted statements.
type fakeDriver struct {
	lock      sync.Mutex
	args      []driver.Value
	readOnly  []bool
	commits   int
	rollbacks int
	conflicts int
}

var fake = &fakeDriver{}

func init() {
	sql.Register("sqlconn-fake", fake)
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	return &fakeConn{d}, nil
}

func (d *fakeDriver) reset() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.args = nil
	d.readOnly = nil
	d.commits = 0
	d.rollbacks = 0
	d.conflicts = 1
}

type fakeConn struct {
	d *fakeDriver
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeStmt{c.d, query}, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *fakeConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.d.lock.Lock()
	defer c.d.lock.Unlock()
	c.d.readOnly = append(c.d.readOnly, opts.ReadOnly)
	return &fakeTx{c.d}, nil
}

type fakeTx struct {
	d *fakeDriver
}

func (tx *fakeTx) Commit() error {
	tx.d.lock.Lock()
	defer tx.d.lock.Unlock()
	tx.d.commits++
	return nil
}

func (tx *fakeTx) Rollback() error {
	tx.d.lock.Lock()
	defer tx.d.lock.Unlock()
	tx.d.rollbacks++
	return nil
}

type fakeStmt struct {
	d     *fakeDriver
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) record(args []driver.Value) {
	s.d.lock.Lock()
	defer s.d.lock.Unlock()
	s.d.args = append(s.d.args, args...)
}

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.record(args)
	switch s.query {
	case "DELETE FROM things":
		return driver.RowsAffected(2), nil
	case "INSERT INTO things VALUES ('apple')":
		return nil, &pq.Error{Code: "23505", Message: "duplicate key"}
	case "UPDATE things SET size = size + 1":
		s.d.lock.Lock()
		defer s.d.lock.Unlock()
		if s.d.conflicts > 0 {
			s.d.conflicts--
			return nil, &pq.Error{Code: "40001", Message: "could not serialize access"}
		}
		return driver.RowsAffected(1), nil
	}
	return nil, &pq.Error{Code: "42601", Message: "syntax error"}
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.record(args)
	switch s.query {
	case "SELECT name, size FROM things WHERE size > $1":
		return &fakeRows{
			columns: []string{"name", "size"},
			values: [][]driver.Value{
				{[]byte("apple"), int64(3)},
				{[]byte("pear"), int64(5)},
			},
		}, nil
	case "SELECT broken":
		return nil, &pq.Error{Code: "42601", Message: "syntax error"}
	}
	return nil, errors.New("unexpected query")
}

type fakeRows struct {
	columns []string
	values  [][]driver.Value
}

func (r *fakeRows) Columns() []string { return r.columns }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if len(r.values) == 0 {
		return io.EOF
	}
	copy(dest, r.values[0])
	r.values = r.values[1:]
	return nil
}

func newClient(t *testing.T) *connector.Client {
	fake.reset()
	registry := connector.NewRegistry()
	Register(registry)
	client := connector.NewClient(nil, registry, restlet.SQL)
	client.Parameters["driver"] = "sqlconn-fake"
	client.Parameters["databases"] = map[string]interface{}{"main": "fake"}
	require.NoError(t, client.Start())
	return client
}

func call(t *testing.T, client *connector.Client, method restlet.Method, ref, statement string) *restlet.Response {
	req, err := restlet.NewRequest(method, ref)
	require.NoError(t, err)
	if statement != "" {
		req.Entity = representation.NewString(statement, metadata.TextPlain)
	}
	resp := restlet.NewResponse(req)
	client.Handle(req, resp)
	return resp
}

func TestQuery(t *testing.T) {
	client := newClient(t)
	defer client.Stop()

	resp := call(t, client, restlet.MethodGet, "sql://main/?q=SELECT+name,+size+FROM+things+WHERE+size+%3E+$1&arg=2", "")
	require.Equal(t, restlet.StatusOK, resp.Status, "%v", resp.Err)
	require.NotNil(t, resp.Entity)
	assert.Equal(t, metadata.ApplicationJSON, resp.Entity.Variant().MediaType)
	text, err := representation.Text(context.Background(), resp.Entity)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"columns":["name","size"],"rows":[["apple",3],["pear",5]]}`, text)

	assert.Equal(t, []driver.Value{"2"}, fake.args)
	assert.Equal(t, []bool{true}, fake.readOnly)
	assert.Equal(t, 1, fake.commits)
}

func TestQueryCBOR(t *testing.T) {
	client := newClient(t)
	defer client.Stop()

	req, err := restlet.NewRequest(restlet.MethodPost, "sql://main/?arg=2")
	require.NoError(t, err)
	req.Entity = representation.NewString("SELECT name, size FROM things WHERE size > $1", metadata.TextPlain)
	req.ClientInfo.MediaTypes = metadata.ParseMediaTypes("application/cbor")
	resp := restlet.NewResponse(req)
	client.Handle(req, resp)
	require.Equal(t, restlet.StatusOK, resp.Status, "%v", resp.Err)
	assert.Equal(t, metadata.ApplicationCBOR, resp.Entity.Variant().MediaType)

	var rows RowSet
	require.NoError(t, converter.NewService().ToObject(context.Background(), resp.Entity, &rows))
	assert.Equal(t, []string{"name", "size"}, rows.Columns)
	assert.Len(t, rows.Rows, 2)
	// A POSTed query is not read-only
	assert.Equal(t, []bool{false}, fake.readOnly)
}

func TestExec(t *testing.T) {
	client := newClient(t)
	defer client.Stop()

	resp := call(t, client, restlet.MethodPost, "sql://main/", "DELETE FROM things")
	require.Equal(t, restlet.StatusOK, resp.Status, "%v", resp.Err)
	text, err := representation.Text(context.Background(), resp.Entity)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"rowsAffected":2}`, text)
}

func TestSerializationRetry(t *testing.T) {
	client := newClient(t)
	defer client.Stop()

	resp := call(t, client, restlet.MethodPost, "sql://main/", "UPDATE things SET size = size + 1")
	require.Equal(t, restlet.StatusOK, resp.Status, "%v", resp.Err)
	assert.Equal(t, 1, fake.rollbacks)
	assert.Equal(t, 1, fake.commits)
	assert.Len(t, fake.readOnly, 2)
}

func TestErrors(t *testing.T) {
	client := newClient(t)
	defer client.Stop()

	resp := call(t, client, restlet.MethodPost, "sql://main/", "INSERT INTO things VALUES ('apple')")
	assert.Equal(t, restlet.StatusConflict.Code, resp.Status.Code)
	assert.Equal(t, "duplicate key", resp.Status.Description)
	assert.Equal(t, 1, fake.rollbacks)

	resp = call(t, client, restlet.MethodGet, "sql://main/?q=SELECT+broken", "")
	assert.Equal(t, restlet.StatusBadRequest.Code, resp.Status.Code)

	resp = call(t, client, restlet.MethodGet, "sql://main/?q=DELETE+FROM+things", "")
	assert.Equal(t, restlet.StatusBadRequest.Code, resp.Status.Code)

	resp = call(t, client, restlet.MethodGet, "sql://main/", "")
	assert.Equal(t, restlet.StatusBadRequest.Code, resp.Status.Code)

	resp = call(t, client, restlet.MethodPost, "sql://other/", "DELETE FROM things")
	assert.Equal(t, restlet.StatusNotFound.Code, resp.Status.Code)

	resp = call(t, client, restlet.MethodDelete, "sql://main/", "")
	assert.Equal(t, restlet.StatusMethodNotAllowed.Code, resp.Status.Code)

	req, err := restlet.NewRequest(restlet.MethodPost, "sql://main/")
	require.NoError(t, err)
	req.Entity = representation.NewString("{}", metadata.ApplicationJSON)
	resp = restlet.NewResponse(req)
	client.Handle(req, resp)
	assert.Equal(t, restlet.StatusUnsupportedMediaType.Code, resp.Status.Code)
}

func TestReturnsRows(t *testing.T) {
	assert.True(t, returnsRows("select 1"))
	assert.True(t, returnsRows("  WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.True(t, returnsRows("INSERT INTO t VALUES (1) RETURNING id"))
	assert.False(t, returnsRows("UPDATE t SET x = 1"))
	assert.False(t, returnsRows(""))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "postgres://u@localhost/db", normalize("postgres", "//u@localhost/db"))
	assert.Equal(t, "host=localhost", normalize("postgres", "host=localhost"))
	assert.Equal(t, "//x", normalize("other", "//x"))
}

func TestMigrations(t *testing.T) {
	dir, err := ioutil.TempDir("", "sqlconn")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	script := "-- +migrate Up\nCREATE TABLE things (name TEXT, size INT);\n\n-- +migrate Down\nDROP TABLE things;\n"
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "1_things.sql"), []byte(script), 0644))

	migrations, err := Migrations(dir)
	if assert.NoError(t, err) && assert.Len(t, migrations, 1) {
		assert.Equal(t, "1_things.sql", migrations[0].Id)
		assert.Len(t, migrations[0].Up, 1)
	}
}
