package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lumistudy/lumi-backend/internal/config"
	"github.com/lumistudy/lumi-backend/internal/middleware"
	"github.com/lumistudy/lumi-backend/internal/service"
	ws "github.com/lumistudy/lumi-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles WebSocket assessment streaming.
type WSHandler struct {
	rdb               *redis.Client
	assessmentService *service.AssessmentService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, assessmentService *service.AssessmentService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:               rdb,
		assessmentService: assessmentService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// AssessmentStream godoc
// WS /ws/v1/learner/assessments/:assessment_id/stream
// Upgrades to WebSocket for low-latency answer autosave while the learner
// works through an assessment.
func (h *WSHandler) AssessmentStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assessment ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	if err := h.assessmentService.VerifyInProgress(c.Request.Context(), claims.LearnerID, assessmentID); err != nil {
		ws.WriteError(conn, "no in-progress assessment to stream")
		return
	}

	answersKey := config.CacheKey.AssessmentAnswersKey(assessmentID.String())

	wsLog := h.log.With().
		Str("learner_id", claims.LearnerID.String()).
		Str("assessment_id", assessmentID.String()).
		Logger()

	wsLog.Info().Msg("Learner connected")

	for {
		var msg ws.RequestPayload
		err := ws.ReadJSON(conn, &msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, answersKey, assessmentID, &msg)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave buffers a single answer in Redis and queues it for
// persistence by the autosave worker.
func (h *WSHandler) handleAutosave(conn *websocket.Conn, answersKey string, assessmentID uuid.UUID, msg *ws.RequestPayload) {
	ctx := context.Background()

	if msg.ItemID == "" || msg.Answer == "" {
		ws.WriteError(conn, "item_id and ans are required")
		return
	}

	// The item id keys a Redis hash field; only well-formed UUIDs get in.
	if _, err := uuid.Parse(msg.ItemID); err != nil {
		ws.WriteError(conn, "invalid item_id format")
		return
	}

	if err := h.rdb.HSet(ctx, answersKey, msg.ItemID, msg.Answer).Err(); err != nil {
		h.log.Error().Err(err).Str("assessment_id", assessmentID.String()).Msg("Autosave Redis error")
		ws.WriteError(conn, "save failed")
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"assessment_id": assessmentID.String(),
		"item_id":       msg.ItemID,
		"answer":        msg.Answer,
	})
	h.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSuccess, Status: "saved", ItemID: msg.ItemID})
}
