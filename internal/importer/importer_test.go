package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-wildfire-alerts/internal/incident"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
	"github.com/mr1hm/go-wildfire-alerts/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T) *incident.Store {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return incident.NewStore(db, nil, nil)
}

const arrayInput = `[
  {"latitude": 34.6857, "longitude": 33.0437, "status": "active", "district": "Limassol"},
  {"latitude": 34.7720, "longitude": 32.4297, "status": "threat", "firefighters": 12},
  {"latitude": 95, "longitude": 10},
  {"latitude": 35.1264, "longitude": 33.4299, "status": "out"}
]`

func TestDecode_Array(t *testing.T) {
	reqs, err := Decode(strings.NewReader("  \n" + arrayInput))
	require.NoError(t, err)
	require.Len(t, reqs, 4)
	assert.Equal(t, 34.6857, *reqs[0].Latitude)
	assert.Equal(t, "Limassol", *reqs[0].District)
	assert.Equal(t, 12, *reqs[1].Firefighters)
}

func TestDecode_FeatureCollection(t *testing.T) {
	input := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","id":9,"geometry":{"type":"Point","coordinates":[33.0437,34.6857]},
	   "properties":{"id":9,"status":"controlled","resources_on_site":{"firefighters":4,"vehicles":2,"aircraft":1},"reporter_name":null}}
	]}`

	reqs, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	r := reqs[0]
	assert.Equal(t, 34.6857, *r.Latitude)
	assert.Equal(t, 33.0437, *r.Longitude)
	assert.Equal(t, models.IncidentStatusControlled, *r.Status)
	assert.Equal(t, 4, *r.Firefighters)
	assert.Equal(t, 1, *r.Aircraft)
	assert.Nil(t, r.ReporterName)
}

func TestDecode_RejectsNonPoint(t *testing.T) {
	input := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"properties":{}}
	]}`
	_, err := Decode(strings.NewReader(input))
	assert.ErrorContains(t, err, "point geometry")
}

func TestDecode_RejectsScalar(t *testing.T) {
	_, err := Decode(strings.NewReader(`"nope"`))
	assert.Error(t, err)
}

func TestImporter_Run(t *testing.T) {
	store := newStore(t)
	reqs, err := Decode(strings.NewReader(arrayInput))
	require.NoError(t, err)

	res, err := New(store, Options{Workers: 2}).Run(context.Background(), reqs)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Created)
	assert.Equal(t, int64(2), res.Failed)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 2, res.Errors[0].Index)
	assert.Contains(t, res.Errors[0].Error, "latitude")
	assert.Equal(t, 3, res.Errors[1].Index)
	assert.Contains(t, res.Errors[1].Error, "status")

	list, err := store.List(context.Background(), incident.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestImporter_Replace(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	lat, lng := 35.0, 33.0
	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, models.CreateIncidentRequest{Latitude: &lat, Longitude: &lng})
		require.NoError(t, err)
	}

	reqs, err := Decode(strings.NewReader(arrayInput))
	require.NoError(t, err)

	res, err := New(store, Options{Replace: true}).Run(ctx, reqs[:2])
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Cleared)
	assert.Equal(t, int64(2), res.Created)

	list, err := store.List(ctx, incident.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	for _, inc := range list {
		assert.Greater(t, inc.ID, int64(3), "identities are not reused after a clear")
	}
}

func TestImporter_Cancelled(t *testing.T) {
	store := newStore(t)
	reqs, err := Decode(strings.NewReader(arrayInput))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = New(store, Options{Workers: 1, BufferSize: 1}).Run(ctx, append(reqs, reqs...))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.json")
	require.NoError(t, os.WriteFile(path, []byte(arrayInput), 0o600))

	rc, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close()

	reqs, err := Decode(rc)
	require.NoError(t, err)
	assert.Len(t, reqs, 4)
}

func TestOpen_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/incidents.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(arrayInput))
	}))
	defer srv.Close()

	rc, err := Open(context.Background(), srv.URL+"/incidents.json")
	require.NoError(t, err)
	reqs, err := Decode(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Len(t, reqs, 4)

	_, err = Open(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
