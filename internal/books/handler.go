package books

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"giralibros/internal/auth"
	"giralibros/internal/live"
	"giralibros/pkg/models"
)

var validate = validator.New()

type Handler struct {
	Repo *Repo
	Hub  *live.Hub
	// CoverDir is where uploaded cover images live.
	CoverDir string
	// RequestWindow is how far back a request still counts as live for
	// the listing's already_requested flag. Matches the admission
	// gate's duplicate window.
	RequestWindow time.Duration
}

func NewHandler(repo *Repo, hub *live.Hub, coverDir string, requestWindow time.Duration) *Handler {
	return &Handler{Repo: repo, Hub: hub, CoverDir: coverDir, RequestWindow: requestWindow}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/books", h.list)
	rg.GET("/books/:id", h.getOne)
	rg.GET("/books/:id/cover", h.serveCover)

	rg.GET("/my/books", h.listMine)
	rg.POST("/my/books", h.create)
	rg.PUT("/my/books/:id", h.update)
	rg.DELETE("/my/books/:id", h.remove)
	rg.POST("/my/books/:id/trade", h.trade)
	rg.POST("/my/books/:id/reserve", h.reserve)
	rg.POST("/my/books/:id/unreserve", h.unreserve)
	rg.POST("/my/books/:id/cover", h.uploadCover)

	rg.GET("/my/wanted", h.listWanted)
	rg.POST("/my/wanted", h.createWanted)
	rg.DELETE("/my/wanted/:id", h.removeWanted)
}

func (h *Handler) list(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	q := ListingQuery{
		ViewerID:       claims.UserID,
		Search:         c.Query("q"),
		Wanted:         c.Query("match") == "wanted",
		RequestedSince: time.Now().UTC().Add(-h.RequestWindow),
		Limit:          parseInt(c.Query("limit"), 20),
		Offset:         parseInt(c.Query("offset"), 0),
	}

	items, total, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (h *Handler) getOne(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	b, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if b == nil || !b.Active {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

type bookReq struct {
	Title  string `json:"title" validate:"required,max=200"`
	Author string `json:"author" validate:"required,max=200"`
	Notes  string `json:"notes" validate:"max=2000"`
}

func (h *Handler) create(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req bookReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and author are required (max 200 chars)"})
		return
	}

	id, err := h.Repo.Create(c.Request.Context(), models.OfferedBook{
		UserID: claims.UserID,
		Title:  req.Title,
		Author: req.Author,
		Notes:  req.Notes,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	b, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil || b == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch created failed"})
		return
	}

	if h.Hub != nil {
		ev := live.ExchangeEvent{
			Type:          "book.listed",
			OwnerUsername: claims.Username,
			BookID:        b.ID,
			BookTitle:     b.Title,
			BookAuthor:    b.Author,
			At:            time.Now().UTC(),
		}
		go h.Hub.BroadcastJSON(ev)
	}

	c.JSON(http.StatusCreated, b)
}

func (h *Handler) listMine(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	activeOnly := c.Query("all") != "true"
	items, err := h.Repo.ListByOwner(c.Request.Context(), claims.UserID, activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if items == nil {
		items = []models.OfferedBook{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) update(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req bookReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and author are required (max 200 chars)"})
		return
	}

	ok, err := h.Repo.Update(c.Request.Context(), id, claims.UserID, req.Title, req.Author, req.Notes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	b, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil || b == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch updated failed"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) remove(c *gin.Context) {
	h.retire(c, h.Repo.SoftDelete, "deleted")
}

func (h *Handler) trade(c *gin.Context) {
	h.retire(c, h.Repo.MarkTraded, "traded")
}

func (h *Handler) retire(c *gin.Context, op func(context.Context, int64, string) (bool, error), result string) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	ok, err := op(c.Request.Context(), id, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result + " failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": result})
}

func (h *Handler) reserve(c *gin.Context) {
	h.setReserved(c, true)
}

func (h *Handler) unreserve(c *gin.Context) {
	h.setReserved(c, false)
}

func (h *Handler) setReserved(c *gin.Context, reserved bool) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	ok, err := h.Repo.SetReserved(c.Request.Context(), id, claims.UserID, reserved)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reserve failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reserved": reserved})
}

type wantedReq struct {
	Title  string `json:"title" validate:"max=200"`
	Author string `json:"author" validate:"required,max=200"`
}

func (h *Handler) createWanted(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req wantedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "author is required (max 200 chars); empty title means any book by that author"})
		return
	}

	id, err := h.Repo.CreateWanted(c.Request.Context(), models.WantedBook{
		UserID: claims.UserID,
		Title:  req.Title,
		Author: req.Author,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "title": req.Title, "author": req.Author})
}

func (h *Handler) listWanted(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := h.Repo.ListWanted(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if items == nil {
		items = []models.WantedBook{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) removeWanted(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	ok, err := h.Repo.DeleteWanted(c.Request.Context(), id, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
