// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"

	"github.com/GovThePPL/candid/internal/database"
	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/models"
	"github.com/GovThePPL/candid/internal/nlp"
	"github.com/GovThePPL/candid/internal/scoring"
	"github.com/GovThePPL/candid/internal/websocket"
)

// maxImageSize caps uploads to the image moderation endpoint.
const maxImageSize = 10 << 20

// PositionStore is the persistence surface the handlers need for
// positions and votes.
type PositionStore interface {
	CreatePosition(ctx context.Context, p *models.Position) error
	GetPosition(ctx context.Context, id uuid.UUID) (*models.Position, error)
	UpsertVote(ctx context.Context, v *models.Vote) error
	VoteTotals(ctx context.Context, positionID uuid.UUID) (up, down float64, err error)
}

// QueueAdmin exposes the sync-queue operations behind the admin endpoints.
type QueueAdmin interface {
	Stats(ctx context.Context) (models.QueueStats, error)
	Requeue(ctx context.Context, id uuid.UUID) (bool, error)
}

// SyncProducer enqueues external sync work after a successful write.
type SyncProducer interface {
	QueuePositionSync(ctx context.Context, positionID uuid.UUID, statement string, categoryID *uuid.UUID, locationID, creatorUserID uuid.UUID) bool
	QueueVoteSync(ctx context.Context, positionID, userID uuid.UUID, responseType string) bool
}

// ImageModerator classifies uploaded images, backed by the NLP service.
type ImageModerator interface {
	ClassifyImage(ctx context.Context, image io.Reader, contentType string) (*nlp.ModerationResult, error)
}

// CoordinateReader loads the fitted per-user ideological coordinates of a
// conversation. Implemented by database.TrainingStore.
type CoordinateReader interface {
	UserCoordinates(ctx context.Context, conversationID uuid.UUID) ([]models.UserCoordinate, error)
}

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	positions PositionStore
	queue     QueueAdmin
	producer  SyncProducer
	coords    CoordinateReader
	hub       *websocket.Hub
	moderator ImageModerator
	upgrader  gorillaws.Upgrader
}

// NewHandler wires the endpoint dependencies together. moderator may be
// nil when the NLP service is disabled.
func NewHandler(positions PositionStore, queue QueueAdmin, producer SyncProducer, coords CoordinateReader, hub *websocket.Hub, moderator ImageModerator) *Handler {
	return &Handler{
		positions: positions,
		queue:     queue,
		producer:  producer,
		coords:    coords,
		hub:       hub,
		moderator: moderator,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser origin enforcement happens in the CORS layer;
			// the upgrade itself is bearer-token gated.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// CreatePosition handles POST /api/v1/positions.
func (h *Handler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req createPositionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	position := &models.Position{
		ID:            uuid.New(),
		Statement:     req.Statement,
		CategoryID:    req.CategoryID,
		LocationID:    req.LocationID,
		CreatorUserID: UserIDFromContext(r.Context()),
		CreatedTime:   time.Now().UTC(),
	}

	if err := h.positions.CreatePosition(r.Context(), position); err != nil {
		writeDatabaseError(w, r, err)
		return
	}

	// The sync enqueue is best-effort; the position is already durable
	// and the queue producer logs its own failures.
	h.producer.QueuePositionSync(r.Context(), position.ID, position.Statement,
		position.CategoryID, position.LocationID, position.CreatorUserID)

	writeSuccess(w, http.StatusCreated, position)
}

// CreateVote handles POST /api/v1/positions/{id}/votes.
func (h *Handler) CreateVote(w http.ResponseWriter, r *http.Request) {
	positionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req createVoteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	if _, err := h.positions.GetPosition(r.Context(), positionID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "position not found")
			return
		}
		writeDatabaseError(w, r, err)
		return
	}

	vote := &models.Vote{
		ID:           uuid.New(),
		PositionID:   positionID,
		UserID:       UserIDFromContext(r.Context()),
		ResponseType: req.ResponseType,
		Weight:       scoring.BaselineWeight,
		CreatedTime:  time.Now().UTC(),
	}

	if err := h.positions.UpsertVote(r.Context(), vote); err != nil {
		writeDatabaseError(w, r, err)
		return
	}

	h.producer.QueueVoteSync(r.Context(), positionID, vote.UserID, vote.ResponseType)

	writeSuccess(w, http.StatusCreated, vote)
}

// positionScores is the GET scores payload.
type positionScores struct {
	PositionID    uuid.UUID `json:"position_id"`
	Up            float64   `json:"up"`
	Down          float64   `json:"down"`
	Wilson        float64   `json:"wilson"`
	Hot           float64   `json:"hot"`
	Controversial float64   `json:"controversial"`
}

// PositionScores handles GET /api/v1/positions/{id}/scores.
func (h *Handler) PositionScores(w http.ResponseWriter, r *http.Request) {
	positionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	position, err := h.positions.GetPosition(r.Context(), positionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "position not found")
			return
		}
		writeDatabaseError(w, r, err)
		return
	}

	up, down, err := h.positions.VoteTotals(r.Context(), positionID)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, positionScores{
		PositionID:    positionID,
		Up:            up,
		Down:          down,
		Wilson:        scoring.WilsonScore(up, down),
		Hot:           scoring.HotScore(up, down, position.CreatedTime, time.Now().UTC()),
		Controversial: scoring.ControversialScore(up, down),
	})
}

// opinionMap is the GET coordinates payload: the fitted points plus the
// hull outline and centroid used to draw the opinion-space visualization.
type opinionMap struct {
	ConversationID uuid.UUID               `json:"conversation_id"`
	Points         []models.UserCoordinate `json:"points"`
	Hull           []models.Coords         `json:"hull"`
	Centroid       *models.Coords          `json:"centroid,omitempty"`
}

// ConversationCoordinates handles GET /api/v1/conversations/{id}/coordinates.
func (h *Handler) ConversationCoordinates(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	points, err := h.coords.UserCoordinates(r.Context(), conversationID)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}

	raw := make([]models.Coords, len(points))
	for i, p := range points {
		raw[i] = models.Coords{X: p.X, Y: p.Y}
	}

	body := opinionMap{
		ConversationID: conversationID,
		Points:         points,
		Hull:           scoring.ConvexHull(raw),
	}
	if c, ok := scoring.Centroid(raw); ok {
		body.Centroid = &c
	}
	writeSuccess(w, http.StatusOK, body)
}

// QueueStats handles GET /api/v1/admin/sync-queue/stats.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

// RequeueItem handles POST /api/v1/admin/sync-queue/{id}/requeue. Only
// terminally failed items can be requeued.
func (h *Handler) RequeueItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	requeued, err := h.queue.Requeue(r.Context(), itemID)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	if !requeued {
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "no failed item with that id")
		return
	}

	logging.Info().Str("item_id", itemID.String()).Msg("sync item requeued by admin")
	writeSuccess(w, http.StatusOK, map[string]interface{}{"requeued": true})
}

// ModerateImage handles POST /api/v1/moderate/image: the raw image body
// is classified by the NLP service before a client attaches it to a chat.
func (h *Handler) ModerateImage(w http.ResponseWriter, r *http.Request) {
	if h.moderator == nil {
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeInternalError, "image moderation is not enabled")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "body must be an image")
		return
	}

	result, err := h.moderator.ClassifyImage(r.Context(), http.MaxBytesReader(w, r.Body, maxImageSize), contentType)
	if err != nil {
		logging.Error().Err(err).Msg("image moderation failed")
		writeError(w, r, http.StatusBadGateway, ErrCodeInternalError, "moderation service unavailable")
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, healthBody{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	})
}

// ChatWebSocket handles GET /api/v1/chats/{id}/ws: it upgrades the
// connection and hands it to the relay hub.
func (h *Handler) ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	userID := UserIDFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	websocket.NewClient(h.hub, conn, chatID, userID).Start()
}

// pathUUID parses a UUID route parameter, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid "+name+" parameter")
		return uuid.Nil, false
	}
	return id, true
}
