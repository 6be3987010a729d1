// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/config"
	"github.com/GovThePPL/candid/internal/database"
	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/models"
	"github.com/GovThePPL/candid/internal/nlp"
	"github.com/GovThePPL/candid/internal/scoring"
	"github.com/GovThePPL/candid/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

type fakePositions struct {
	positions map[uuid.UUID]*models.Position
	votes     []*models.Vote
	up, down  float64
	totalsErr error
}

func newFakePositions() *fakePositions {
	return &fakePositions{positions: make(map[uuid.UUID]*models.Position)}
}

func (f *fakePositions) CreatePosition(_ context.Context, p *models.Position) error {
	f.positions[p.ID] = p
	return nil
}

func (f *fakePositions) GetPosition(_ context.Context, id uuid.UUID) (*models.Position, error) {
	p, ok := f.positions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return p, nil
}

func (f *fakePositions) UpsertVote(_ context.Context, v *models.Vote) error {
	f.votes = append(f.votes, v)
	return nil
}

func (f *fakePositions) VoteTotals(_ context.Context, _ uuid.UUID) (float64, float64, error) {
	return f.up, f.down, f.totalsErr
}

type fakeQueue struct {
	stats      models.QueueStats
	requeuable map[uuid.UUID]bool
	requeued   []uuid.UUID
}

func (f *fakeQueue) Stats(_ context.Context) (models.QueueStats, error) {
	return f.stats, nil
}

func (f *fakeQueue) Requeue(_ context.Context, id uuid.UUID) (bool, error) {
	if !f.requeuable[id] {
		return false, nil
	}
	f.requeued = append(f.requeued, id)
	return true, nil
}

type fakeProducer struct {
	positionCalls int
	voteCalls     int
	lastResponse  string
}

func (f *fakeProducer) QueuePositionSync(_ context.Context, _ uuid.UUID, _ string, _ *uuid.UUID, _, _ uuid.UUID) bool {
	f.positionCalls++
	return true
}

func (f *fakeProducer) QueueVoteSync(_ context.Context, _, _ uuid.UUID, responseType string) bool {
	f.voteCalls++
	f.lastResponse = responseType
	return true
}

type fakeModerator struct {
	result nlp.ModerationResult
	err    error
	calls  int
}

func (f *fakeModerator) ClassifyImage(_ context.Context, image io.Reader, _ string) (*nlp.ModerationResult, error) {
	f.calls++
	if _, err := io.Copy(io.Discard, image); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &f.result, nil
}

type fakeCoordReader struct {
	points map[uuid.UUID][]models.UserCoordinate
}

func (f *fakeCoordReader) UserCoordinates(_ context.Context, conversationID uuid.UUID) ([]models.UserCoordinate, error) {
	return f.points[conversationID], nil
}

type testAPI struct {
	router    http.Handler
	positions *fakePositions
	queue     *fakeQueue
	producer  *fakeProducer
	coords    *fakeCoordReader
	moderator *fakeModerator
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	positions := newFakePositions()
	queue := &fakeQueue{requeuable: make(map[uuid.UUID]bool)}
	producer := &fakeProducer{}
	coords := &fakeCoordReader{points: make(map[uuid.UUID][]models.UserCoordinate)}
	moderator := &fakeModerator{}

	auth, err := NewAuthenticator(&config.AuthConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	handler := NewHandler(positions, queue, producer, coords, websocket.NewHub(), moderator)
	router := NewRouter(&config.APIConfig{
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}, handler, auth)

	return &testAPI{
		router:    router.Routes(),
		positions: positions,
		queue:     queue,
		producer:  producer,
		coords:    coords,
		moderator: moderator,
	}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !resp.Success {
		t.Error("health response not successful")
	}
}

func TestCreatePosition(t *testing.T) {
	api := newTestAPI(t)
	locationID := uuid.New()

	body := fmt.Sprintf(`{"statement":"More bike lanes downtown","location_id":%q}`, locationID)
	rec, resp := api.do(t, http.MethodPost, "/api/v1/positions", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if !resp.Success {
		t.Error("response not successful")
	}
	if len(api.positions.positions) != 1 {
		t.Fatalf("persisted %d positions, want 1", len(api.positions.positions))
	}
	for _, p := range api.positions.positions {
		if p.Statement != "More bike lanes downtown" {
			t.Errorf("statement = %q", p.Statement)
		}
		if p.LocationID != locationID {
			t.Errorf("location = %s, want %s", p.LocationID, locationID)
		}
	}
	if api.producer.positionCalls != 1 {
		t.Errorf("producer called %d times, want 1", api.producer.positionCalls)
	}
}

func TestCreatePositionValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"statement":`},
		{"missing statement", fmt.Sprintf(`{"location_id":%q}`, uuid.New())},
		{"statement too short", fmt.Sprintf(`{"statement":"no","location_id":%q}`, uuid.New())},
		{"missing location", `{"statement":"a perfectly fine statement"}`},
		{"unknown field", fmt.Sprintf(`{"statement":"valid statement","location_id":%q,"extra":1}`, uuid.New())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := api.do(t, http.MethodPost, "/api/v1/positions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp.Error == nil {
				t.Error("expected error body")
			}
		})
	}

	if len(api.positions.positions) != 0 {
		t.Errorf("invalid requests persisted %d positions", len(api.positions.positions))
	}
	if api.producer.positionCalls != 0 {
		t.Errorf("invalid requests enqueued %d syncs", api.producer.positionCalls)
	}
}

func TestCreateVote(t *testing.T) {
	api := newTestAPI(t)
	position := &models.Position{ID: uuid.New(), Statement: "s", LocationID: uuid.New()}
	api.positions.positions[position.ID] = position

	rec, _ := api.do(t, http.MethodPost,
		"/api/v1/positions/"+position.ID.String()+"/votes",
		`{"response_type":"agree"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if len(api.positions.votes) != 1 {
		t.Fatalf("persisted %d votes, want 1", len(api.positions.votes))
	}
	vote := api.positions.votes[0]
	if vote.ResponseType != models.ResponseAgree {
		t.Errorf("response type = %q", vote.ResponseType)
	}
	if vote.Weight != scoring.BaselineWeight {
		t.Errorf("weight = %v, want baseline", vote.Weight)
	}
	if api.producer.voteCalls != 1 || api.producer.lastResponse != models.ResponseAgree {
		t.Errorf("producer calls = %d lastResponse = %q", api.producer.voteCalls, api.producer.lastResponse)
	}
}

func TestCreateVoteErrors(t *testing.T) {
	api := newTestAPI(t)
	position := &models.Position{ID: uuid.New(), Statement: "s", LocationID: uuid.New()}
	api.positions.positions[position.ID] = position

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"unknown position", "/api/v1/positions/" + uuid.NewString() + "/votes", `{"response_type":"agree"}`, http.StatusNotFound},
		{"bad uuid", "/api/v1/positions/not-a-uuid/votes", `{"response_type":"agree"}`, http.StatusBadRequest},
		{"bad response type", "/api/v1/positions/" + position.ID.String() + "/votes", `{"response_type":"upvote"}`, http.StatusBadRequest},
		{"empty body", "/api/v1/positions/" + position.ID.String() + "/votes", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := api.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}

	if api.producer.voteCalls != 0 {
		t.Errorf("failed requests enqueued %d vote syncs", api.producer.voteCalls)
	}
}

func TestPositionScores(t *testing.T) {
	api := newTestAPI(t)
	position := &models.Position{
		ID:          uuid.New(),
		Statement:   "s",
		LocationID:  uuid.New(),
		CreatedTime: time.Now().UTC().Add(-time.Hour),
	}
	api.positions.positions[position.ID] = position
	api.positions.up = 80
	api.positions.down = 20

	rec, resp := api.do(t, http.MethodGet, "/api/v1/positions/"+position.ID.String()+"/scores", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want object", resp.Data)
	}
	wantWilson := scoring.WilsonScore(80, 20)
	if got := data["wilson"].(float64); got != wantWilson {
		t.Errorf("wilson = %v, want %v", got, wantWilson)
	}
	wantControversial := scoring.ControversialScore(80, 20)
	if got := data["controversial"].(float64); got != wantControversial {
		t.Errorf("controversial = %v, want %v", got, wantControversial)
	}
	if data["hot"].(float64) <= 0 {
		t.Errorf("hot = %v, want positive for upvote-dominant position", data["hot"])
	}
}

func TestConversationCoordinates(t *testing.T) {
	api := newTestAPI(t)
	convID := uuid.New()
	// A unit square of users plus one in the middle; the hull must exclude
	// the interior point and the centroid sits at its center.
	corners := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0.5, 0.5}}
	for _, c := range corners {
		api.coords.points[convID] = append(api.coords.points[convID], models.UserCoordinate{
			ConversationID: convID, UserID: uuid.New(), X: c[0], Y: c[1],
		})
	}

	rec, resp := api.do(t, http.MethodGet, "/api/v1/conversations/"+convID.String()+"/coordinates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want object", resp.Data)
	}
	if got := len(data["points"].([]interface{})); got != 5 {
		t.Errorf("points = %d, want 5", got)
	}
	if got := len(data["hull"].([]interface{})); got != 4 {
		t.Errorf("hull has %d vertices, want 4 (interior point excluded)", got)
	}
	centroid, ok := data["centroid"].(map[string]interface{})
	if !ok {
		t.Fatalf("centroid is %T, want object", data["centroid"])
	}
	if centroid["x"].(float64) != 0.5 || centroid["y"].(float64) != 0.5 {
		t.Errorf("centroid = (%v, %v), want (0.5, 0.5)", centroid["x"], centroid["y"])
	}
}

func TestConversationCoordinatesEmpty(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodGet, "/api/v1/conversations/"+uuid.NewString()+"/coordinates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := resp.Data.(map[string]interface{})
	if _, hasCentroid := data["centroid"]; hasCentroid {
		t.Error("centroid present for an untrained conversation, want omitted")
	}
}

func TestQueueStatsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.queue.stats = models.QueueStats{Pending: 3, Processing: 1, Completed: 10, Failed: 2}

	rec, resp := api.do(t, http.MethodGet, "/api/v1/admin/sync-queue/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want object", resp.Data)
	}
	if got := data["pending"].(float64); got != 3 {
		t.Errorf("pending = %v, want 3", got)
	}
}

func TestRequeueEndpoint(t *testing.T) {
	api := newTestAPI(t)
	failedID := uuid.New()
	api.queue.requeuable[failedID] = true

	rec, _ := api.do(t, http.MethodPost, "/api/v1/admin/sync-queue/"+failedID.String()+"/requeue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(api.queue.requeued) != 1 || api.queue.requeued[0] != failedID {
		t.Errorf("requeued = %v, want [%s]", api.queue.requeued, failedID)
	}

	rec, _ = api.do(t, http.MethodPost, "/api/v1/admin/sync-queue/"+uuid.NewString()+"/requeue", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d for unknown item, want 404", rec.Code)
	}
}

func TestModerateImage(t *testing.T) {
	api := newTestAPI(t)
	api.moderator.result = nlp.ModerationResult{NSFW: true, Confidence: 0.97}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/moderate/image", strings.NewReader("fake-png-bytes"))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if api.moderator.calls != 1 {
		t.Errorf("moderator called %d times, want 1", api.moderator.calls)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data := resp.Data.(map[string]interface{})
	if data["nsfw"] != true {
		t.Errorf("nsfw = %v, want true", data["nsfw"])
	}
}

func TestModerateImageRejectsNonImage(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/moderate/image", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if api.moderator.calls != 0 {
		t.Errorf("moderator called %d times, want 0", api.moderator.calls)
	}
}
