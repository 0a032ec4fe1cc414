package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hire-realtime/internal/models"
)

const validResponse = "```json\n" + `{
  "scores": {"skills_match": 140, "experience_relevance": -5, "education_fit": "72.6", "keyword_alignment": 60},
  "review": "Strong backend profile with solid Go and Postgres experience, but little exposure to the streaming stack the role needs.",
  "suggestions": [
    {"id": "s1", "title": "Quantify impact", "description": "Add throughput or latency numbers to the payments project.", "category": "Experience", "priority": 9},
    {"title": "Mention Kafka", "description": "List any event streaming work explicitly."}
  ]
}` + "\n```"

type scriptedScorer struct {
	mu      sync.Mutex
	calls   []string
	respond func(model string, call int) (string, error)
}

func (s *scriptedScorer) Score(_ context.Context, model, _ string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, model)
	n := len(s.calls)
	s.mu.Unlock()
	return s.respond(model, n)
}

func (s *scriptedScorer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func noSleep(context.Context, time.Duration) error { return nil }

type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFiles() *memFiles {
	return &memFiles{files: make(map[string][]byte)}
}

func (f *memFiles) Save(_ context.Context, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "mem://" + name
	f.files[url] = append([]byte(nil), data...)
	return url, nil
}

func (f *memFiles) Load(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("no file %s", url)
	}
	return data, nil
}

func (f *memFiles) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

type memQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *memQueue) Enqueue(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, jobID)
	return nil
}

type delivery struct {
	target string
	event  string
	status models.ResumeStatusEvent
}

type recorder struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (r *recorder) BroadcastToUser(userID, event string, payload any) {
	r.record(models.UserRoom(userID), event, payload)
}

func (r *recorder) BroadcastExceptUser(room, event string, payload any, _ string) {
	r.record(room, event, payload)
}

func (r *recorder) record(target, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, _ := payload.(models.ResumeStatusEvent)
	r.deliveries = append(r.deliveries, delivery{target: target, event: event, status: ev})
}

// userEvents returns what reached the owner's personal room.
func (r *recorder) userEvents(userID string) []models.ResumeStatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ResumeStatusEvent
	for _, d := range r.deliveries {
		if d.target == models.UserRoom(userID) && d.event == models.EventResumeStatus {
			out = append(out, d.status)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

type denyAll struct{}

func (denyAll) Allow(string, string) (bool, time.Duration) { return false, 30 * time.Second }

var errBoom = errors.New("connection reset by peer")
