package sheets

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"google.golang.org/api/option"

	"feed_syncer/internal/domain"
	"feed_syncer/internal/normalize"
)

// fakeSheet serves the subset of the values API the store uses.
type fakeSheet struct {
	mu      sync.Mutex
	rows    map[int][]string
	puts    []string
	options []string
	failGet bool
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := strings.Index(r.URL.Path, "/values/")
	if idx < 0 {
		http.NotFound(w, r)
		return
	}
	rng := r.URL.Path[idx+len("/values/"):]
	from, to := parseRows(rng)

	switch r.Method {
	case http.MethodGet:
		if f.failGet {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota exceeded"}}`))
			return
		}
		var values [][]string
		last := to
		if last <= 0 {
			for n := range f.rows {
				if n > last {
					last = n
				}
			}
		}
		for n := from; n <= last; n++ {
			values = append(values, f.rows[n])
		}
		for len(values) > 0 && len(values[len(values)-1]) == 0 {
			values = values[:len(values)-1]
		}
		resp := map[string]any{"range": rng, "majorDimension": "ROWS"}
		if len(values) > 0 {
			resp["values"] = values
		}
		_ = json.NewEncoder(w).Encode(resp)
	case http.MethodPut:
		var body struct {
			Values [][]string `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for i, row := range body.Values {
			f.rows[from+i] = row
		}
		f.puts = append(f.puts, rng)
		f.options = append(f.options, r.URL.Query().Get("valueInputOption"))
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng, "updatedRows": len(body.Values)})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func parseRows(rng string) (int, int) {
	cells := rng[strings.LastIndex(rng, "!")+1:]
	parts := strings.SplitN(cells, ":", 2)
	return rowOf(parts[0]), rowOf(parts[1])
}

func rowOf(cell string) int {
	n, _ := strconv.Atoi(strings.TrimLeft(cell, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	return n
}

type StoreTestSuite struct {
	suite.Suite
	ctx    context.Context
	fake   *fakeSheet
	server *httptest.Server
	store  *Store
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.fake = &fakeSheet{rows: map[int][]string{}}
	s.server = httptest.NewServer(s.fake)
	s.store = New(Config{
		SpreadsheetID: "sheet-id",
		SheetName:     "Recettes",
		Columns:       domain.Columns,
	},
		slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		option.WithEndpoint(s.server.URL+"/"),
		option.WithHTTPClient(s.server.Client()),
	)
}

func (s *StoreTestSuite) TearDownTest() {
	s.server.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) TestAuthorize_WritesMissingHeader() {
	s.Require().NoError(s.store.Authorize(s.ctx))

	s.Equal(domain.Columns, s.fake.rows[1])
	s.Equal([]string{"Recettes!A1:X1"}, s.fake.puts)
}

func (s *StoreTestSuite) TestAuthorize_KeepsExistingHeader() {
	s.fake.rows[1] = []string{"id", "title"}

	s.Require().NoError(s.store.Authorize(s.ctx))

	s.Empty(s.fake.puts)
	s.Equal([]string{"id", "title"}, s.fake.rows[1])
}

func (s *StoreTestSuite) TestAuthorize_BadCredentialsFile() {
	path := filepath.Join(s.T().TempDir(), "creds.json")
	s.Require().NoError(os.WriteFile(path, []byte(`{"type":"nope"}`), 0o600))
	s.store.cfg.CredentialsFile = path

	err := s.store.Authorize(s.ctx)

	s.Error(err)
	s.Contains(err.Error(), "credentials")
}

func (s *StoreTestSuite) TestLoadAll_BeforeAuthorize() {
	_, err := s.store.LoadAll(s.ctx, 2)
	s.ErrorIs(err, errNotAuthorized)
}

func (s *StoreTestSuite) TestLoadAll_MapsRowsOntoHeader() {
	s.fake.rows[1] = []string{"id", "title", "author"}
	s.fake.rows[2] = []string{"2", "B", "Zoe"}
	s.fake.rows[3] = []string{"1", "A"}
	s.Require().NoError(s.store.Authorize(s.ctx))

	records, err := s.store.LoadAll(s.ctx, 2)

	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal("2", records[0].ID())
	s.Equal("Zoe", records[0].Value("author"))
	s.Equal([]string{"id", "title"}, records[1].Keys())
}

func (s *StoreTestSuite) TestLoadAll_EmptySheet() {
	s.Require().NoError(s.store.Authorize(s.ctx))

	records, err := s.store.LoadAll(s.ctx, 2)

	s.Require().NoError(err)
	s.Empty(records)
}

func (s *StoreTestSuite) TestLoadAll_BackendError() {
	s.Require().NoError(s.store.Authorize(s.ctx))
	s.fake.failGet = true

	_, err := s.store.LoadAll(s.ctx, 2)

	s.Error(err)
	s.Contains(err.Error(), "Recettes!A1:X")
}

func (s *StoreTestSuite) TestWriteRows_RoundTrip() {
	s.Require().NoError(s.store.Authorize(s.ctx))

	written := []domain.Record{
		domain.NewRecord("id", "2", "title", "B", "cover_url", "u"),
		domain.NewRecord("id", "1", "title", "A"),
	}
	s.Require().NoError(s.store.WriteRows(s.ctx, normalize.ProjectAll(written, domain.Columns), 2))

	s.Equal("Recettes!A2:X3", s.fake.puts[len(s.fake.puts)-1])
	s.Equal("RAW", s.fake.options[len(s.fake.options)-1])

	loaded, err := s.store.LoadAll(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(loaded, 2)
	for i := range written {
		for _, c := range domain.Columns {
			s.Equal(written[i].Value(c), loaded[i].Value(c), "row %d column %s", i, c)
		}
	}
}

func (s *StoreTestSuite) TestWriteRows_Empty() {
	s.Require().NoError(s.store.Authorize(s.ctx))
	puts := len(s.fake.puts)

	s.Require().NoError(s.store.WriteRows(s.ctx, nil, 2))
	s.Len(s.fake.puts, puts)
}

func (s *StoreTestSuite) TestLoadAll_RejectsHeaderOffset() {
	s.Require().NoError(s.store.Authorize(s.ctx))

	_, err := s.store.LoadAll(s.ctx, 1)
	s.Error(err)
}

func (s *StoreTestSuite) TestLoadAll_SkipsRowsAboveOffset() {
	s.Require().NoError(s.store.Authorize(s.ctx))
	s.fake.rows[2] = []string{"", "note"}
	s.fake.rows[3] = normalize.Project(domain.NewRecord("id", "1", "title", "A"), domain.Columns)

	records, err := s.store.LoadAll(s.ctx, 3)

	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("1", records[0].ID())
}

func (s *StoreTestSuite) TestLoadMergeWrite_RepeatedCyclesKeepRowsAboveOffset() {
	const offset = 3
	s.Require().NoError(s.store.Authorize(s.ctx))
	note := []string{"", "note"}
	s.fake.rows[2] = note
	s.fake.rows[3] = normalize.Project(domain.NewRecord("id", "1", "title", "A"), domain.Columns)

	cycle := func(fresh ...domain.Record) {
		existing, err := s.store.LoadAll(s.ctx, offset)
		s.Require().NoError(err)
		merged := normalize.Merge(fresh, existing)
		s.Require().NoError(s.store.WriteRows(s.ctx, normalize.ProjectAll(merged, domain.Columns), offset))
	}

	cycle(domain.NewRecord("id", "2", "title", "B"))
	s.Len(s.fake.rows, 4)

	cycle()
	s.Len(s.fake.rows, 4)
	s.Equal(note, s.fake.rows[2])

	loaded, err := s.store.LoadAll(s.ctx, offset)
	s.Require().NoError(err)
	s.Require().Len(loaded, 2)
	s.Equal("2", loaded[0].ID())
	s.Equal("1", loaded[1].ID())
}
