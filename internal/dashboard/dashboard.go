package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetforge/coordinator/internal/changefeed"
	"github.com/fleetforge/coordinator/internal/types"
)

// DefaultPollInterval is how often the dashboard re-polls the change
// feed for each project a viewer is currently watching.
const DefaultPollInterval = 2 * time.Second

// AllowedOrigins lists additional non-localhost origins the websocket
// upgrade accepts, beyond localhost/127.0.0.1/::1 which are always
// allowed.
var AllowedOrigins []string

var upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

// checkOrigin validates the Origin header on a websocket upgrade to
// prevent cross-site hijacking of the dashboard connection.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := originURL.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	for _, allowed := range AllowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Hostname() == allowedURL.Hostname() && originURL.Scheme == allowedURL.Scheme {
			return true
		}
	}
	return false
}

// Dashboard owns the hub and the background poll loop that keeps it
// fed from the change feed.
type Dashboard struct {
	hub          *Hub
	feed         *changefeed.Feed
	pollInterval time.Duration

	mu       sync.Mutex
	cursors  map[int64]time.Time
	watching map[int64]bool
}

func New(feed *changefeed.Feed) *Dashboard {
	d := &Dashboard{
		hub:          NewHub(),
		feed:         feed,
		pollInterval: DefaultPollInterval,
		cursors:      make(map[int64]time.Time),
		watching:     make(map[int64]bool),
	}
	go d.hub.Run()
	return d
}

// HandleWebSocket upgrades the request and registers the viewer. A
// project_id query parameter scopes the viewer to one project; absent
// or zero means an unscoped admin view of every project.
func (d *Dashboard) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var projectID int64
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid project_id", http.StatusBadRequest)
			return
		}
		projectID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{hub: d.hub, conn: conn, send: make(chan []byte, WebSocketBufferSize), projectID: projectID}
	d.hub.Register(client)
	d.watchProject(projectID)

	data, err := json.Marshal(types.WSMessage{Type: types.WSTypeStateSync, Data: map[string]int64{"project_id": projectID}})
	if err == nil {
		client.send <- data
	}

	go client.readPump()
	go client.writePump()
}

func (d *Dashboard) watchProject(projectID int64) {
	if projectID == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cursors[projectID]; !ok {
		// Stored timestamps have whole-second precision, so the first
		// cursor starts one second back; otherwise an event written in
		// the same second as the connect would compare as not after it.
		d.cursors[projectID] = time.Now().UTC().Add(-time.Second)
	}
	d.watching[projectID] = true
}

func (d *Dashboard) watchedProjects() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int64, 0, len(d.watching))
	for id := range d.watching {
		ids = append(ids, id)
	}
	return ids
}

// SetPollInterval overrides the poll cadence. Optional; must be called
// before Run.
func (d *Dashboard) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		d.pollInterval = interval
	}
}

// Run polls every watched project's change feed and fans new events
// out through the hub until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	log.Printf("[DASHBOARD] poll loop started, interval=%s", d.pollInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[DASHBOARD] poll loop stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			d.pollOnce()
		}
	}
}

func (d *Dashboard) pollOnce() {
	for _, projectID := range d.watchedProjects() {
		d.mu.Lock()
		since := d.cursors[projectID]
		d.mu.Unlock()

		result := d.feed.Changes(projectID, since)

		d.mu.Lock()
		d.cursors[projectID] = result.LatestTimestamp
		d.mu.Unlock()

		for _, event := range result.Events {
			d.hub.Broadcast(event)
		}
	}
}

func (d *Dashboard) ClientCount() int {
	return d.hub.ClientCount()
}
