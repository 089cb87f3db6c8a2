package comicvine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/metadata"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err, "load fixture %s", name)
	return data
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(Config{APIKey: "test-key", BaseURL: server.URL, RequestsPerSecond: 1000}, nil)
	client.http = server.Client()
	t.Cleanup(client.Close)
	return client
}

func TestClient_SearchSeries(t *testing.T) {
	fixture := loadFixture(t, "search_response.json")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "volume", r.URL.Query().Get("resources"))
		assert.Equal(t, "batman", r.URL.Query().Get("query"))
		w.Write(fixture)
	})

	matches, more, err := client.SearchSeries(context.Background(), "batman", 10, 0)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, matches, 2)

	first := matches[0]
	assert.Equal(t, "91273", first.SourceID)
	assert.Equal(t, SourceName, first.Source)
	assert.Equal(t, 2016, first.StartYear)
	assert.Equal(t, "DC Comics", first.Publisher)
	assert.Equal(t, []string{"Batman Rebirth", "Batman (2016)"}, first.Aliases)
	assert.Equal(t, "The **Rebirth** run.", first.Description)
	assert.Equal(t, "https://example.test/91273.jpg", first.CoverURL)

	assert.Equal(t, "https://example.test/796-m.jpg", matches[1].CoverURL)
	assert.Nil(t, matches[1].Aliases)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
	}{
		{"http rate limited", http.StatusTooManyRequests, "", metadata.ErrRateLimited},
		{"http server error", http.StatusBadGateway, "", metadata.ErrServer},
		{"body invalid key", http.StatusOK, `{"status_code":100,"error":"Invalid API Key"}`, metadata.ErrUnauthorized},
		{"body not found", http.StatusOK, `{"status_code":101,"error":"Object Not Found"}`, metadata.ErrNotFound},
		{"body rate exceeded", http.StatusOK, `{"status_code":107,"error":"Rate limit exceeded"}`, metadata.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			})

			_, err := client.GetSeries(context.Background(), "796")
			require.Error(t, err)

			var mdErr *metadata.Error
			require.True(t, errors.As(err, &mdErr))
			assert.Equal(t, "getSeries", mdErr.Op)
			assert.Equal(t, "796", mdErr.ID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_MissingAPIKey(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	defer client.Close()

	_, _, err := client.SearchSeries(context.Background(), "batman", 5, 0)
	assert.ErrorIs(t, err, metadata.ErrUnauthorized)
}

func TestClient_InvalidID(t *testing.T) {
	client := New(Config{APIKey: "k"}, nil)
	defer client.Close()

	_, err := client.GetIssue(context.Background(), "abc")
	assert.ErrorIs(t, err, metadata.ErrBadRequest)
}

func TestClient_ListIssues_Pages(t *testing.T) {
	const total = 150
	var calls int

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/issues/", r.URL.Path)
		assert.Equal(t, "volume:91273", r.URL.Query().Get("filter"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		n := min(issuesPageSize, total-offset)

		fmt.Fprintf(w, `{"status_code":1,"error":"OK","number_of_total_results":%d,"results":[`, total)
		for i := 0; i < n; i++ {
			if i > 0 {
				w.Write([]byte(","))
			}
			fmt.Fprintf(w, `{"id":%d,"issue_number":"%d","name":"","cover_date":"2016-01-01"}`, 1000+offset+i, offset+i+1)
		}
		w.Write([]byte("]}"))
	})

	issues, err := client.ListIssues(context.Background(), "91273")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, issues, total)
	assert.Equal(t, "1", issues[0].Number)
	assert.Equal(t, "150", issues[total-1].Number)
	assert.Equal(t, "91273", issues[0].SeriesID)
	assert.False(t, issues[0].HasCredits())
}

func TestClient_GetIssue_ParsesCredits(t *testing.T) {
	fixture := loadFixture(t, "issue_response.json")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/issue/4000-555001/", r.URL.Path)
		w.Write(fixture)
	})

	issue, err := client.GetIssue(context.Background(), "555001")
	require.NoError(t, err)

	assert.Equal(t, "1", issue.Number)
	assert.Equal(t, "91273", issue.SeriesID)
	assert.Equal(t, "I Am Gotham", issue.StoryArc)
	assert.Equal(t, []string{"Batman", "Gotham Girl"}, issue.Characters)
	assert.Equal(t, "A new hero arrives.", issue.Summary)
	assert.Equal(t, []domain.Credit{
		{Name: "Tom King", Role: domain.RoleWriter},
		{Name: "David Finch", Role: domain.RolePenciller},
		{Name: "David Finch", Role: domain.RoleCoverArtist},
		{Name: "Matt Banning", Role: domain.RoleInker},
	}, issue.Credits)
}

func TestClient_Source(t *testing.T) {
	client := New(Config{}, nil)
	defer client.Close()

	assert.Equal(t, domain.MetadataSource{Name: "comicvine", ProvidesIssueIndex: true}, client.Source())
}
