package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/sitestore/internal/common/logtrace"
	"github.com/tansive/sitestore/internal/sitestore/bootstrap"
	"github.com/tansive/sitestore/internal/sitestore/config"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/dbmanager"
	"github.com/tansive/sitestore/internal/sitestore/db/schema"
)

func runCmd(t *testing.T, connector dbmanager.Connector, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigFile, "")
	cmd := NewRootCmd(WithConnector(connector), WithRetryDelay(time.Millisecond))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, dbmanager.NewMemoryServer(), "version")
	require.NoError(t, err)
	assert.Equal(t, "sitectl "+cliVersion+"\n", out)

	out, err = runCmd(t, dbmanager.NewMemoryServer(), "version", "-j")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, cliVersion, v["version"])
}

func TestDbName(t *testing.T) {
	server := dbmanager.NewMemoryServer()

	out, err := runCmd(t, server, "dbname", "--site", "42")
	require.NoError(t, err)
	assert.Equal(t, "cms_site42\n", out)

	out, err = runCmd(t, server, "dbname", "--site", "0")
	require.NoError(t, err)
	assert.Equal(t, "cms_global\n", out)

	_, err = runCmd(t, server, "dbname", "--site=-3")
	assert.ErrorIs(t, err, dberror.ErrInvalidSiteID)
	assert.Empty(t, server.DatabaseNames())
}

func TestEntities(t *testing.T) {
	out, err := runCmd(t, dbmanager.NewMemoryServer(), "entities", "--json")
	require.NoError(t, err)
	var infos []entityInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	assert.Len(t, infos, len(schema.Names()))
	assert.Contains(t, infos, entityInfo{Name: schema.EntityPage, Scope: "site", Collection: "pages", Fields: len(mustLookup(t, schema.EntityPage).Fields)})
}

func mustLookup(t *testing.T, entity string) *schema.Definition {
	t.Helper()
	def, err := schema.Lookup(entity)
	require.NoError(t, err)
	return def
}

func TestBootstrapAndGet(t *testing.T) {
	server := dbmanager.NewMemoryServer()

	out, err := runCmd(t, server, "bootstrap", "--site", "5", "--author", "user-1", "--title", "Acme", "-j")
	require.NoError(t, err)
	var summary bootstrapSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "5", summary.Site)
	assert.Equal(t, "cms_site5", summary.Database)
	assert.Len(t, summary.Pages, 3)
	assert.Equal(t, bootstrap.SettingsCount, summary.Settings)
	assert.Equal(t, 6, summary.MenuItems)
	assert.Len(t, summary.Collections, len(schema.ForScope(schema.ScopeSite)))

	out, err = runCmd(t, server, "get", schema.EntityPage, "--site", "5", "-o", "json")
	require.NoError(t, err)
	var pages []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &pages))
	require.Len(t, pages, 3)
	for _, p := range pages {
		assert.Equal(t, "user-1", p["authorId"])
	}

	out, err = runCmd(t, server, "get", schema.EntitySetting, "--site", "5", "--filter", "key=site_title", "-o", "json")
	require.NoError(t, err)
	var settings []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &settings))
	require.Len(t, settings, 1)
	assert.Equal(t, "Acme", settings[0]["value"])

	out, err = runCmd(t, server, "get", schema.EntityMenuItem, "--site", "5", "--filter", "type=custom", "--sort", "-label", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "label: Terms of Service")

	out, err = runCmd(t, server, "collections", "--site", "5")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), len(schema.ForScope(schema.ScopeSite)))
	assert.Contains(t, out, "menu_items\n")

	// other sites stay empty
	out, err = runCmd(t, server, "get", schema.EntityPage, "--site", "6", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestBootstrapRejectsSite(t *testing.T) {
	server := dbmanager.NewMemoryServer()
	_, err := runCmd(t, server, "bootstrap")
	assert.Error(t, err)
	_, err = runCmd(t, server, "bootstrap", "--site", "0")
	assert.ErrorIs(t, err, dberror.ErrInvalidSiteID)
	_, err = runCmd(t, server, "bootstrap", "--site", "1", "--wait", "0")
	assert.Error(t, err)
	assert.Empty(t, server.DatabaseNames())
}

func TestRegister(t *testing.T) {
	server := dbmanager.NewMemoryServer()

	out, err := runCmd(t, server, "register", "--site", "20", "--name", "acme", "--display-name", "Acme",
		"--domain", "acme.example.com", "--owner", "user-1", "-j")
	require.NoError(t, err)
	var summary bootstrapSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "20", summary.Site)
	assert.Empty(t, summary.Pages)

	out, err = runCmd(t, server, "get", schema.EntitySite, "-o", "json")
	require.NoError(t, err)
	var sites []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &sites))
	require.Len(t, sites, 1)
	assert.Equal(t, "acme.example.com", sites[0]["domain"])
	assert.Equal(t, float64(20), sites[0]["siteId"])

	_, err = runCmd(t, server, "register", "--site", "21", "--name", "acme", "--display-name", "Acme again",
		"--domain", "other.example.com")
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)
}

func TestGetErrors(t *testing.T) {
	server := dbmanager.NewMemoryServer()

	_, err := runCmd(t, server, "get", "Widgetry")
	assert.ErrorIs(t, err, dberror.ErrUnknownEntity)
	_, err = runCmd(t, server, "get", schema.EntityPage)
	assert.ErrorIs(t, err, dberror.ErrInvalidSiteID)
	_, err = runCmd(t, server, "get", schema.EntityPage, "--site", "1", "--filter", "=x")
	assert.Error(t, err)
	_, err = runCmd(t, server, "get", schema.EntityPage, "--site", "1", "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestCollectionsRetriesConnectivity(t *testing.T) {
	var calls atomic.Int32
	refused := errors.New("connection refused")
	connector := dbmanager.ConnectorFunc(func(ctx context.Context, dbName string) (dbmanager.Conn, error) {
		calls.Add(1)
		return nil, refused
	})

	_, err := runCmd(t, connector, "collections", "--site", "3", "--wait", "3")
	assert.ErrorIs(t, err, dberror.ErrConnectivity)
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, errorText(err), "connection refused")
}

func TestCollectionsRecoversAfterRetry(t *testing.T) {
	server := dbmanager.NewMemoryServer()
	var calls atomic.Int32
	connector := dbmanager.ConnectorFunc(func(ctx context.Context, dbName string) (dbmanager.Conn, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("starting up")
		}
		return server.Connect(ctx, dbName)
	})

	out, err := runCmd(t, connector, "collections", "--site", "3", "-j")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCollectionsDoesNotRetryConfiguration(t *testing.T) {
	var calls atomic.Int32
	connector := dbmanager.ConnectorFunc(func(ctx context.Context, dbName string) (dbmanager.Conn, error) {
		calls.Add(1)
		return nil, dberror.ErrConfiguration.Msg("unknown driver")
	})

	_, err := runCmd(t, connector, "collections", "--site", "3")
	assert.ErrorIs(t, err, dberror.ErrConfiguration)
	assert.Equal(t, int32(1), calls.Load())
}

// termsFailConn rejects writes to the terms collection.
type termsFailConn struct {
	dbmanager.Conn
}

func (c termsFailConn) Collection(name string) dbmanager.Collection {
	if name == "terms" {
		return termsFailCollection{c.Conn.Collection(name)}
	}
	return c.Conn.Collection(name)
}

type termsFailCollection struct {
	dbmanager.Collection
}

func (termsFailCollection) InsertOne(ctx context.Context, doc dbmanager.Document) error {
	return dberror.ErrDatabase.Msg("disk full")
}

func (termsFailCollection) InsertMany(ctx context.Context, docs []dbmanager.Document) error {
	return dberror.ErrDatabase.Msg("disk full")
}

func TestReportErrorKind(t *testing.T) {
	server := dbmanager.NewMemoryServer()
	connector := dbmanager.ConnectorFunc(func(ctx context.Context, dbName string) (dbmanager.Conn, error) {
		c, err := server.Connect(ctx, dbName)
		if err != nil || dbName != "cms_site4" {
			return c, err
		}
		return termsFailConn{c}, nil
	})

	report := func(err error) map[string]string {
		var buf bytes.Buffer
		reportError(&buf, true, err)
		var v map[string]string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &v))
		return v
	}

	_, err := runCmd(t, connector, "bootstrap", "--site", "4", "-j")
	require.ErrorIs(t, err, dberror.ErrPartialBootstrap)
	v := report(err)
	assert.Equal(t, "partial", v["kind"])
	assert.Contains(t, v["error"], "default-term")

	refused := dbmanager.ConnectorFunc(func(ctx context.Context, dbName string) (dbmanager.Conn, error) {
		return nil, errors.New("connection refused")
	})
	_, err = runCmd(t, refused, "bootstrap", "--site", "4", "--wait", "1")
	assert.Equal(t, "connectivity", report(err)["kind"])

	_, err = runCmd(t, server, "get", "Widgetry")
	assert.Equal(t, "configuration", report(err)["kind"])

	var buf bytes.Buffer
	reportError(&buf, false, err)
	assert.True(t, strings.HasPrefix(buf.String(), "Error: "))
}

func TestRequestIdPerCommand(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	var ids []string
	for i := 0; i < 2; i++ {
		root := NewRootCmd(WithConnector(dbmanager.NewMemoryServer()))
		root.AddCommand(&cobra.Command{
			Use: "trace",
			Run: func(cmd *cobra.Command, args []string) {
				ids = append(ids, logtrace.RequestIdFromContext(cmd.Context()))
			},
		})
		root.SetOut(io.Discard)
		root.SetArgs([]string{"trace"})
		require.NoError(t, root.ExecuteContext(context.Background()))
	}
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestParseFilters(t *testing.T) {
	f, err := parseFilters([]string{"status=published", "menuOrder=2", "meta.featured=true", "title=a=b"})
	require.NoError(t, err)
	assert.Equal(t, dbmanager.Filter{
		"status":        "published",
		"menuOrder":     float64(2),
		"meta.featured": true,
		"title":         "a=b",
	}, f)

	f, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = parseFilters([]string{"novalue"})
	assert.Error(t, err)
}
