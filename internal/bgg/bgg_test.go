package bgg

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ubglab/ruleharvest/internal/cache"
	"github.com/ubglab/ruleharvest/internal/fault"
	"github.com/ubglab/ruleharvest/internal/governor"
)

const catanXML = `<?xml version="1.0" encoding="utf-8"?>
<items termsofuse="https://boardgamegeek.com/xmlapi/termsofuse">
  <item type="boardgame" id="13">
    <thumbnail>https://cf.geekdo-images.com/thumb.jpg</thumbnail>
    <image>https://cf.geekdo-images.com/original.jpg</image>
    <name type="primary" sortindex="1" value="CATAN"/>
    <name type="alternate" sortindex="5" value="The Settlers of Catan"/>
    <description>In CATAN, players try to be the dominant force on the island.</description>
    <yearpublished value="1995"/>
    <minplayers value="3"/>
    <maxplayers value="4"/>
    <playingtime value="120"/>
    <minage value="10"/>
    <link type="boardgamecategory" id="1026" value="Negotiation"/>
    <link type="boardgamemechanic" id="2072" value="Dice Rolling"/>
    <link type="boardgamemechanic" id="2008" value="Trading"/>
    <link type="boardgamedesigner" id="11" value="Klaus Teuber"/>
    <link type="boardgameartist" id="12834" value="Volkan Baga"/>
    <link type="boardgamepublisher" id="37" value="KOSMOS"/>
    <link type="boardgameexpansion" id="325" value="Catan: Seafarers"/>
    <link type="boardgamefamily" id="3" value="Game: Catan"/>
    <statistics page="1">
      <ratings>
        <usersrated value="115000"/>
        <average value="7.09"/>
        <ranks>
          <rank type="subtype" id="1" name="boardgame" friendlyname="Board Game Rank" value="429"/>
        </ranks>
      </ratings>
    </statistics>
  </item>
</items>`

func TestExtractID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"13", "13"},
		{" 174430 ", "174430"},
		{"https://boardgamegeek.com/boardgame/13/catan", "13"},
		{"https://boardgamegeek.com/boardgame/174430/gloomhaven?foo=1", "174430"},
	}
	for _, c := range cases {
		got, err := ExtractID(c.in)
		if err != nil {
			t.Fatalf("ExtractID(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ExtractID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractID_Invalid(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "catan", "https://boardgamegeek.com/geeklist/42", "13a"} {
		if _, err := ExtractID(in); !fault.IsKind(err, fault.BGGInvalidID) {
			t.Fatalf("ExtractID(%q): want BGG_INVALID_ID, got %v", in, err)
		}
	}
}

func TestNormalize_Fixture(t *testing.T) {
	t.Parallel()
	md, err := normalize([]byte(catanXML), "13")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if md.ID != "13" || md.Title != "CATAN" {
		t.Fatalf("identity: got id=%s title=%q", md.ID, md.Title)
	}
	if md.Year != 1995 || md.MinPlayers != 3 || md.MaxPlayers != 4 || md.PlayingTime != 120 || md.MinAge != 10 {
		t.Fatalf("numerics not coerced: %+v", md)
	}
	if len(md.Mechanics) != 2 || md.Mechanics[0].Value != "Dice Rolling" || md.Mechanics[0].ID != "2072" {
		t.Fatalf("mechanics: %+v", md.Mechanics)
	}
	if len(md.Categories) != 1 || len(md.Designers) != 1 || len(md.Artists) != 1 || len(md.Publishers) != 1 || len(md.Expansions) != 1 || len(md.Families) != 1 {
		t.Fatalf("link grouping: %+v", md)
	}
	if md.Stats.Average != 7.09 || md.Stats.UsersRated != 115000 || md.Stats.Rank != 429 {
		t.Fatalf("stats: %+v", md.Stats)
	}
	if md.Image == "" || md.Thumbnail == "" || md.Description == "" {
		t.Fatalf("media/description dropped: %+v", md)
	}
}

func TestNormalize_AlternateNameFallback(t *testing.T) {
	t.Parallel()
	xmlBody := `<items><item type="boardgame" id="7">
		<name type="alternate" value="Nur Alternativ"/>
		<yearpublished value="2001"/>
	</item></items>`
	md, err := normalize([]byte(xmlBody), "7")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if md.Title != "Nur Alternativ" {
		t.Fatalf("fallback name: got %q", md.Title)
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g := governor.New(time.Millisecond)
	c := &Client{
		HTTP:     srv.Client(),
		Cache:    &cache.Pages{Dir: t.TempDir()},
		Governor: g,
		BaseURL:  srv.URL,
		QPS:      1000,
		Now:      func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) },
	}
	return c, srv
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "13" || r.URL.Query().Get("stats") != "1" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(catanXML))
	}))
	md, err := c.Fetch(context.Background(), "https://boardgamegeek.com/boardgame/13/catan")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if md.Title != "CATAN" || md.Error != "" {
		t.Fatalf("got %+v", md)
	}
	if md.FetchedAt.IsZero() {
		t.Fatalf("fetchedAt not stamped")
	}
}

func TestFetch_Server500YieldsPartial(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	c.MaxRetries = -1
	md, err := c.Fetch(context.Background(), "13")
	if !fault.IsKind(err, fault.BGGPartial) {
		t.Fatalf("want BGG_PARTIAL, got %v", err)
	}
	if md == nil {
		t.Fatalf("partial metadata must accompany the error")
	}
	if md.ID != "13" || md.Error != "BGG API request failed with status 500" {
		t.Fatalf("sentinel payload: %+v", md)
	}
	if md.FetchedAt.IsZero() {
		t.Fatalf("sentinel must carry fetchedAt")
	}
}

func TestFetch_CacheHitAvoidsNetwork(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(catanXML))
	}))
	if _, err := c.Fetch(context.Background(), "13"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := c.Fetch(context.Background(), "13"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("network hits = %d, want 1 (second call served from cache)", got)
	}
}

func TestFetch_TransportErrorYieldsPartial(t *testing.T) {
	t.Parallel()
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	c.MaxRetries = -1
	md, err := c.Fetch(context.Background(), "99")
	if !fault.IsKind(err, fault.BGGPartial) {
		t.Fatalf("want BGG_PARTIAL, got %v", err)
	}
	if md.ID != "99" || md.Error == "" {
		t.Fatalf("sentinel payload: %+v", md)
	}
}
