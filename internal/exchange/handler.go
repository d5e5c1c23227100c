package exchange

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"giralibros/internal/auth"
	"giralibros/internal/live"
)

type Handler struct {
	Service *Service
	Repo    *Repo
	Hub     *live.Hub
}

func NewHandler(svc *Service, repo *Repo, hub *live.Hub) *Handler {
	return &Handler{Service: svc, Repo: repo, Hub: hub}
}

// RegisterRoutes mounts the exchange endpoints. All of them require an
// authenticated caller.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/books/:id/request", h.requestExchange)
	rg.GET("/my/requests", h.sentRequests)
	rg.GET("/my/requests/received", h.receivedRequests)
}

func (h *Handler) requestExchange(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	bookID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || bookID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	adm, err := h.Service.TryCreate(c.Request.Context(), claims.UserID, bookID, time.Now())
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			if rej.Kind == KindNotificationFailure {
				log.Printf("[exchange] notify owner for book %d: %v", bookID, rej.Cause)
			}
			c.JSON(statusFor(rej.Kind), gin.H{"error": rej.Reason, "kind": rej.Kind})
			return
		}
		log.Printf("[exchange] admission for book %d: %v", bookID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	if h.Hub != nil {
		ev := live.ExchangeEvent{
			Type:          "exchange.request",
			FromUsername:  adm.FromUsername,
			OwnerUsername: adm.OwnerUsername,
			BookID:        bookID,
			BookTitle:     adm.Record.BookTitle,
			BookAuthor:    adm.Record.BookAuthor,
			At:            time.Now().UTC(),
		}
		go h.Hub.BroadcastJSON(ev)
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "¡Pedido enviado! El dueño va a recibir un mail con tus datos de contacto.",
		"request": adm.Record,
	})
}

func statusFor(k RejectKind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotificationFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (h *Handler) sentRequests(c *gin.Context) {
	h.listHistory(c, h.Repo.SentBy)
}

func (h *Handler) receivedRequests(c *gin.Context) {
	h.listHistory(c, h.Repo.ReceivedBy)
}

func (h *Handler) listHistory(c *gin.Context, load func(ctx context.Context, userID string, limit, offset int) ([]HistoryItem, error)) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := parseInt(c.Query("limit"), 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := parseInt(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	items, err := load(c.Request.Context(), claims.UserID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": items, "count": len(items)})
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
