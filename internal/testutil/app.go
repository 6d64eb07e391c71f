package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// SessionKey is the storage key the fixture app reads its session from.
const SessionKey = "app-session"

// App is a small single-page app served over HTTP. It renders a sign-in
// heading unless SessionKey holds {"isAuthenticated": true}, in which case it
// fetches /items and renders an inventory table with a details panel, tabs,
// a custom combobox and a native select.
//
// Query flags: overlay=1 covers the page with a fixed overlay, boom=1 throws
// an uncaught error after boot, remote=1 loads the items from APIURL instead,
// a second origin serving /rest/v1/items the way a hosted backend would.
type App struct {
	URL       string
	APIURL    string
	itemsHits atomic.Int64
	apiHits   atomic.Int64
}

// LiveItems is what the real /items endpoint serves.
var LiveItems = []map[string]interface{}{
	{"id": "live-1", "name": "Live Item", "stock": 9},
}

// NewApp starts the app; it is stopped when the test finishes.
func NewApp(t testing.TB) *App {
	t.Helper()
	a := &App{}

	mux := http.NewServeMux()
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		a.itemsHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(LiveItems)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(strings.ReplaceAll(appHTML, "__API_URL__", a.APIURL)))
	})

	// No CORS headers: only a mock can make this origin readable to the app.
	api := http.NewServeMux()
	api.HandleFunc("/rest/v1/items", func(w http.ResponseWriter, r *http.Request) {
		a.apiHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(LiveItems)
	})

	apiServer := httptest.NewServer(api)
	t.Cleanup(apiServer.Close)
	a.APIURL = apiServer.URL

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	a.URL = server.URL
	return a
}

// ItemsHits returns how many requests reached the real /items endpoint.
func (a *App) ItemsHits() int64 {
	return a.itemsHits.Load()
}

// APIHits returns how many requests reached the second origin.
func (a *App) APIHits() int64 {
	return a.apiHits.Load()
}

const appHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Fixture App</title>
<style>
  body { font-family: sans-serif; margin: 0; padding: 16px; }
  .fixed { position: fixed; }
  .inset-0 { top: 0; right: 0; bottom: 0; left: 0; }
  .overlay { background: rgba(0, 0, 0, 0.3); z-index: 50; }
  [hidden] { display: none !important; }
  td, th { padding: 4px 8px; }
</style>
</head>
<body>
<main id="app"></main>
<script>
(async function () {
  const params = new URLSearchParams(location.search);
  const app = document.getElementById('app');
  let session = null;
  try { session = JSON.parse(localStorage.getItem('app-session') || 'null'); } catch (e) {}
  console.log('app booted', session && session.isAuthenticated ? 'authenticated' : 'anonymous');

  if (params.get('overlay') === '1') {
    const overlay = document.createElement('div');
    overlay.className = 'fixed inset-0 overlay';
    document.body.appendChild(overlay);
  }
  if (params.get('boom') === '1') {
    setTimeout(function () { throw new Error('fixture boom'); }, 0);
  }

  if (!session || !session.isAuthenticated) {
    app.innerHTML = '<h1>Sign in</h1><p>Your session has expired.</p>';
    return;
  }

  app.innerHTML =
    '<h1>Inventory</h1>' +
    '<div role="tablist">' +
    '  <button role="tab" id="tab-items" aria-selected="true">Items</button>' +
    '  <button role="tab" id="tab-log" aria-selected="false">Log</button>' +
    '</div>' +
    '<section id="items-panel">' +
    '  <table><thead><tr><th>Name</th><th>Stock</th><th></th></tr></thead><tbody id="rows"></tbody></table>' +
    '</section>' +
    '<section id="log-panel" hidden><h2>Activity log</h2></section>' +
    '<section id="details" hidden>' +
    '  <h2>Item details</h2>' +
    '  <p id="details-name"></p>' +
    '  <label for="qty">Quantity</label>' +
    '  <input id="qty" placeholder="How many?">' +
    '  <label for="dest">Destination</label>' +
    '  <select id="dest"><option value="">Choose</option><option value="main">Main workshop</option><option value="annex">Annex</option></select>' +
    '  <button role="combobox" id="loc" aria-expanded="false">Pick location</button>' +
    '  <ul role="listbox" id="loc-list" hidden><li role="option">Taller Principal</li><li role="option">Bodega</li></ul>' +
    '  <textarea placeholder="Add a comment..."></textarea>' +
    '  <span id="readonly-note" data-testid="note">read only</span>' +
    '  <button id="submit" disabled>Submit</button>' +
    '  <p id="status"></p>' +
    '</section>';

  const res = params.get('remote') === '1'
    ? await fetch('__API_URL__/rest/v1/items?select=*', { headers: { apikey: 'anon', Authorization: 'Bearer anon' } })
    : await fetch('/items?select=*');
  const items = await res.json();
  const rows = document.getElementById('rows');
  items.forEach(function (item) {
    const tr = document.createElement('tr');
    tr.innerHTML = '<td></td><td></td><td><button class="details">Details</button></td>';
    tr.children[0].textContent = item.name;
    tr.children[1].textContent = String(item.stock);
    tr.querySelector('button').addEventListener('click', function () {
      document.getElementById('details').hidden = false;
      document.getElementById('details-name').textContent = item.name;
    });
    rows.appendChild(tr);
  });

  const tabs = { 'tab-items': 'items-panel', 'tab-log': 'log-panel' };
  Object.keys(tabs).forEach(function (id) {
    document.getElementById(id).addEventListener('click', function () {
      Object.keys(tabs).forEach(function (other) {
        document.getElementById(other).setAttribute('aria-selected', String(other === id));
        document.getElementById(tabs[other]).hidden = other !== id;
      });
    });
  });

  const qty = document.getElementById('qty');
  const submit = document.getElementById('submit');
  qty.addEventListener('input', function () { submit.disabled = qty.value === ''; });
  submit.addEventListener('click', function () {
    document.getElementById('status').textContent = 'Requested ' + qty.value;
  });

  const loc = document.getElementById('loc');
  const list = document.getElementById('loc-list');
  loc.addEventListener('click', function () {
    list.hidden = !list.hidden;
    loc.setAttribute('aria-expanded', String(!list.hidden));
  });
  list.querySelectorAll('[role=option]').forEach(function (opt) {
    opt.addEventListener('click', function () {
      loc.textContent = opt.textContent;
      list.hidden = true;
      loc.setAttribute('aria-expanded', 'false');
    });
  });
})();
</script>
</body>
</html>
`
