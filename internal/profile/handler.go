package profile

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"giralibros/internal/auth"
	"giralibros/internal/books"
	"giralibros/internal/exchange"
	"giralibros/pkg/models"
)

var validate = validator.New()

type Handler struct {
	Repo     *Repo
	Users    *auth.Repo
	Books    *books.Repo
	Requests *exchange.Repo
	// how far back a request still counts as "already asked"
	RequestWindow time.Duration
}

func NewHandler(repo *Repo, users *auth.Repo, bookRepo *books.Repo, requests *exchange.Repo, window time.Duration) *Handler {
	return &Handler{Repo: repo, Users: users, Books: bookRepo, Requests: requests, RequestWindow: window}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/profile", h.getOwn)
	rg.PUT("/profile", h.put)
	rg.GET("/users/:username", h.publicProfile)
}

type profileReq struct {
	FirstName        string   `json:"first_name" validate:"required,max=150"`
	ContactEmail     string   `json:"contact_email" validate:"required,email,max=255"`
	AlternateContact string   `json:"alternate_contact" validate:"max=200"`
	About            string   `json:"about" validate:"max=2000"`
	Areas            []string `json:"areas" validate:"required,min=1"`
}

func (h *Handler) put(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req profileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.ContactEmail = strings.TrimSpace(strings.ToLower(req.ContactEmail))
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "first name, contact email and at least one area are required"})
		return
	}
	for _, a := range req.Areas {
		if !models.ValidArea(a) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown area: " + a})
			return
		}
	}

	p := models.Profile{
		UserID:           claims.UserID,
		FirstName:        req.FirstName,
		ContactEmail:     req.ContactEmail,
		AlternateContact: strings.TrimSpace(req.AlternateContact),
		About:            strings.TrimSpace(req.About),
		Areas:            dedupeAreas(req.Areas),
	}
	if err := h.Repo.Save(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *Handler) getOwn(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	p, err := h.Repo.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if p == nil {
		// not completed yet; suggest the registration email as contact
		areas, err := h.Repo.Areas(c.Request.Context(), claims.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"profile":  models.Profile{UserID: claims.UserID, ContactEmail: claims.Email, Areas: areas},
			"complete": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": p, "complete": true})
}

// publicProfile is the shelf view other users browse: who this is, what
// they offer (flagged if the viewer already asked), what they want. The
// owner additionally sees their recent request traffic.
func (h *Handler) publicProfile(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	username := strings.TrimSpace(c.Param("username"))
	owner, err := h.Users.GetByUsername(c.Request.Context(), username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if owner == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	p, err := h.Repo.Get(c.Request.Context(), owner.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	about := ""
	areas := []string{}
	if p != nil {
		about = p.About
		areas = p.Areas
	}

	since := time.Now().UTC().Add(-h.RequestWindow)
	shelf, err := h.Books.ListProfileShelf(c.Request.Context(), owner.ID, claims.UserID, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	wanted, err := h.Books.ListWanted(c.Request.Context(), owner.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	resp := gin.H{
		"user": gin.H{
			"username":   owner.Username,
			"first_name": owner.FirstName,
			"about":      about,
		},
		"areas":         areas,
		"offered_books": shelf,
		"wanted_books":  wanted,
	}

	if owner.ID == claims.UserID {
		sent, err := h.Requests.SentBy(c.Request.Context(), owner.ID, 10, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
			return
		}
		received, err := h.Requests.ReceivedBy(c.Request.Context(), owner.ID, 10, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
			return
		}
		resp["sent_requests"] = sent
		resp["received_requests"] = received
	}

	c.JSON(http.StatusOK, resp)
}

func dedupeAreas(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, a := range in {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
