package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"problinx/internal/config"
	"problinx/internal/domain"
	"problinx/internal/engine"
)

const (
	defaultTelemetryInterval = 2 * time.Second
	defaultTelemetryTimeout  = 5 * time.Second
	defaultTelemetryBatch    = 100
)

// telemetryForwarder tails the event log and posts matching events to
// configured sinks. Delivery is best-effort: a failed sink retries from
// its cursor on the next tick and never blocks request handling.
type telemetryForwarder struct {
	engine   engine.Engine
	sinks    []config.TelemetrySink
	client   *http.Client
	quit     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	cursors  map[int]int64
}

// startTelemetryForwarder launches the background loop and returns its
// stop function. Without configured sinks the stop function is a no-op.
func startTelemetryForwarder(e engine.Engine) func() {
	if e.Config == nil || len(e.Config.Telemetry.Sinks) == 0 {
		return func() {}
	}
	f := &telemetryForwarder{
		engine:  e,
		sinks:   e.Config.Telemetry.Sinks,
		client:  &http.Client{Timeout: defaultTelemetryTimeout},
		quit:    make(chan struct{}),
		cursors: make(map[int]int64),
	}
	go f.run()
	return f.stop
}

func (f *telemetryForwarder) run() {
	ticker := time.NewTicker(defaultTelemetryInterval)
	defer ticker.Stop()
	for {
		f.forwardAll()
		select {
		case <-f.quit:
			return
		case <-ticker.C:
		}
	}
}

func (f *telemetryForwarder) stop() {
	f.stopOnce.Do(func() { close(f.quit) })
}

func (f *telemetryForwarder) forwardAll() {
	for i, sink := range f.sinks {
		if strings.TrimSpace(sink.URL) == "" {
			continue
		}
		f.forwardSink(i, sink)
	}
}

func (f *telemetryForwarder) forwardSink(idx int, sink config.TelemetrySink) {
	ctx := context.Background()
	cursor := f.cursorFor(idx)
	evts, err := f.engine.Repo.EventsAfter(ctx, defaultTelemetryBatch, cursor)
	if err != nil {
		log.Printf("telemetry: fetch events failed: %v", err)
		return
	}
	filter := newEventFilter(sink.Events)
	for _, evt := range evts {
		if !filter.match(evt.Type) {
			f.setCursor(idx, evt.ID)
			continue
		}
		if err := f.postEvent(ctx, sink, evt); err != nil {
			log.Printf("telemetry: deliver to %s failed: %v", sink.URL, err)
			return
		}
		f.setCursor(idx, evt.ID)
	}
}

func (f *telemetryForwarder) cursorFor(idx int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.cursors[idx]; ok {
		return cur
	}
	cur, err := f.engine.Repo.LatestEventID(context.Background())
	if err != nil {
		log.Printf("telemetry: init cursor failed: %v", err)
		cur = 0
	}
	f.cursors[idx] = cur
	return cur
}

func (f *telemetryForwarder) setCursor(idx int, value int64) {
	f.mu.Lock()
	f.cursors[idx] = value
	f.mu.Unlock()
}

type telemetryEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (f *telemetryForwarder) postEvent(ctx context.Context, sink config.TelemetrySink, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	body := telemetryEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sink.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Problinx-Event", evt.Type)
	req.Header.Set("X-Problinx-Delivery", fmt.Sprintf("%d", evt.ID))
	res, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(evts []string) eventFilter {
	if len(evts) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(evts))
	for _, evt := range evts {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
