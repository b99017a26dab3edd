package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/zmb3/spotify/v2"

	"github.com/grrywlsn/plexmatch/catalog"
	"github.com/grrywlsn/plexmatch/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Spotify: config.SpotifyConfig{
			ClientID:     "test_client_id",
			ClientSecret: "test_client_secret",
		},
	}
	return NewClientWithHTTP(cfg, srv.Client(), nil, spotify.WithBaseURL(srv.URL+"/"))
}

func trackJSON(i int) string {
	return fmt.Sprintf(`{"track":{"id":"t%d","name":"Song %d","uri":"spotify:track:t%d","duration_ms":1000,`+
		`"artists":[{"name":"Artist %d"},{"name":"Guest"}],"album":{"name":"Album"},"external_ids":{"isrc":"ISRC%d"}}}`, i, i, i, i, i)
}

func TestGetPlaylistEntriesPaging(t *testing.T) {
	total := PageSize + 3
	var offsets []string

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlists/pl1/tracks" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offsets = append(offsets, r.URL.Query().Get("offset"))

		end := offset + limit
		if end > total {
			end = total
		}
		items := make([]string, 0, end-offset)
		for i := offset; i < end; i++ {
			items = append(items, trackJSON(i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"items":[%s],"limit":%d,"offset":%d,"total":%d}`, strings.Join(items, ","), limit, offset, total)
	})

	entries, err := client.GetPlaylistEntries(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("GetPlaylistEntries failed: %v", err)
	}
	if len(entries) != total {
		t.Fatalf("Expected %d entries, got %d", total, len(entries))
	}
	if !reflect.DeepEqual(offsets, []string{"0", "100"}) {
		t.Errorf("Expected offsets [0 100], got %v", offsets)
	}

	first := entries[0]
	if first.Track != "Song 0" || first.Album != "Album" {
		t.Errorf("Unexpected entry %+v", first)
	}
	if !reflect.DeepEqual(first.Artists, []string{"Artist 0", "Guest"}) {
		t.Errorf("Expected every artist to be kept, got %v", first.Artists)
	}
	src, ok := first.Source()
	if !ok {
		t.Fatal("Expected a source origin")
	}
	if src.ID != "t0" || src.URI != "spotify:track:t0" || src.ISRC != "ISRC0" {
		t.Errorf("Unexpected origin %+v", src)
	}
}

func TestGetPlaylistEntriesError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"status":404,"message":"Not found."}}`)
	})

	if _, err := client.GetPlaylistEntries(context.Background(), "missing"); err == nil {
		t.Error("Expected an error for a missing playlist")
	}
}

func TestGetPlaylistInfo(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlists/pl1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"id":"pl1","name":"Mix","description":"weekly","public":true,"owner":{"display_name":"dj"},"tracks":{"total":42,"items":[]}}`)
	})

	info, err := client.GetPlaylistInfo(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("GetPlaylistInfo failed: %v", err)
	}
	expected := PlaylistInfo{ID: "pl1", Name: "Mix", Description: "weekly", Owner: "dj", TrackCount: 42, Public: true}
	if *info != expected {
		t.Errorf("Expected %+v, got %+v", expected, *info)
	}
}

func TestClientCredentialsRefresh(t *testing.T) {
	var mu sync.Mutex
	var issued int
	var auths []string

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		issued++
		n := issued
		mu.Unlock()

		// tokens this close to expiry are treated as expired by the client
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":1}`, n)
	})
	mux.HandleFunc("/playlists/pl1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		fmt.Fprint(w, `{"id":"pl1","name":"Mix","public":true,"owner":{"display_name":"dj"},"tracks":{"total":0,"items":[]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.Config{Spotify: config.SpotifyConfig{ClientID: "id", ClientSecret: "secret"}}
	ctx := context.Background()
	client, err := newClientCredentials(ctx, cfg, srv.URL+"/token", nil, spotify.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("newClientCredentials failed: %v", err)
	}

	for range 2 {
		if _, err := client.GetPlaylistInfo(ctx, "pl1"); err != nil {
			t.Fatalf("GetPlaylistInfo failed: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if issued != 3 {
		t.Errorf("Expected a token per request after the first, got %d issued", issued)
	}
	expected := []string{"Bearer token-2", "Bearer token-3"}
	if !reflect.DeepEqual(auths, expected) {
		t.Errorf("Expected fresh tokens %v, got %v", expected, auths)
	}
}

func TestClientCredentialsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))
	defer srv.Close()

	cfg := &config.Config{Spotify: config.SpotifyConfig{ClientID: "id", ClientSecret: "wrong"}}
	if _, err := newClientCredentials(context.Background(), cfg, srv.URL, nil); err == nil {
		t.Fatal("Expected an error for rejected credentials")
	}
}

func TestGetUserPublicPlaylists(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/dj/playlists" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"items":[`+
			`{"id":"a","name":"Public","public":true,"owner":{"display_name":"dj"},"tracks":{"total":3}},`+
			`{"id":"b","name":"Private","public":false,"owner":{"display_name":"dj"},"tracks":{"total":5}}`+
			`],"total":2,"next":null}`)
	})

	playlists, err := client.GetUserPublicPlaylists(context.Background(), "dj")
	if err != nil {
		t.Fatalf("GetUserPublicPlaylists failed: %v", err)
	}
	if len(playlists) != 1 || playlists[0].ID != "a" || playlists[0].TrackCount != 3 {
		t.Errorf("Expected only the public playlist, got %+v", playlists)
	}
}

func TestTrackEntry(t *testing.T) {
	tests := []struct {
		name  string
		track spotify.FullTrack
		ok    bool
		want  catalog.Entry
	}{
		{
			name: "full track",
			track: spotify.FullTrack{
				SimpleTrack: spotify.SimpleTrack{
					ID:      "id1",
					Name:    "Closer",
					URI:     "spotify:track:id1",
					Artists: []spotify.SimpleArtist{{Name: "The Chainsmokers"}, {Name: "Halsey"}},
				},
				Album:       spotify.SimpleAlbum{Name: "Collage"},
				ExternalIDs: map[string]string{"isrc": "USQX91601347"},
			},
			ok: true,
			want: catalog.Entry{
				Track:   "Closer",
				Album:   "Collage",
				Artists: []string{"The Chainsmokers", "Halsey"},
				Origin:  catalog.SourceOrigin{URI: "spotify:track:id1", ID: "id1", ISRC: "USQX91601347"},
			},
		},
		{
			name:  "removed track",
			track: spotify.FullTrack{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := trackEntry(tt.track)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
