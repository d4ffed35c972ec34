package api

import (
	"context"
	"errors"
	"time"

	"github.com/bilgisen/kafkaesque/internal/config"
	"github.com/bilgisen/kafkaesque/internal/content"
	"github.com/bilgisen/kafkaesque/internal/imageproxy"
	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/bilgisen/kafkaesque/internal/middleware"
	"github.com/bilgisen/kafkaesque/internal/models"
	"github.com/bilgisen/kafkaesque/internal/newsletter"
	"github.com/bilgisen/kafkaesque/internal/search"
	"github.com/bilgisen/kafkaesque/internal/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

const (
	postsCacheControl       = "public, max-age=60, stale-while-revalidate=86400"
	shortSearchCacheControl = "public, max-age=60"
	searchCacheControl      = "public, max-age=300"
	imageCacheControl       = "public, max-age=604800, immutable"
)

// PostSource serves listing pages and single posts
type PostSource interface {
	Page(ctx context.Context, limit int, after *string) (models.Page, error)
	Post(ctx context.Context, slug string) (*models.Post, error)
}

// Searcher answers search queries from a cached index
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (search.Result, error)
	State() search.State
	Invalidate()
}

// Subscriber signs readers up for the newsletter
type Subscriber interface {
	Subscribe(ctx context.Context, email string) (newsletter.Outcome, error)
}

// ImageSource serves processed images
type ImageSource interface {
	Get(ctx context.Context, req imageproxy.Request) (*imageproxy.Image, error)
}

// Deps are the collaborators of the HTTP handlers
type Deps struct {
	Config     *config.Config
	Posts      PostSource
	Search     Searcher
	Newsletter Subscriber
	Images     ImageSource
}

type Handlers struct {
	config     *config.Config
	configErr  error
	posts      PostSource
	search     Searcher
	newsletter Subscriber
	images     ImageSource
	validator  *middleware.Validator
	log        zerolog.Logger
}

type listQuery struct {
	Cursor string `query:"cursor"`
	Limit  *int   `query:"limit" validate:"omitempty,min=1,max=20"`
}

type signupForm struct {
	Email string `form:"email" json:"email" validate:"required,basic_email"`
}

func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		config:     deps.Config,
		configErr:  deps.Config.Validate(),
		posts:      deps.Posts,
		search:     deps.Search,
		newsletter: deps.Newsletter,
		images:     deps.Images,
		validator:  middleware.NewValidator(),
		log:        logger.Component("api"),
	}
}

// HealthCheck handles GET /api/health
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	status := "ok"
	if h.configErr != nil {
		status = "misconfigured"
	}
	return c.JSON(fiber.Map{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
		"search": h.search.State().String(),
	})
}

// ListPosts handles GET /api/posts
func (h *Handlers) ListPosts(c *fiber.Ctx) error {
	if h.configErr != nil {
		return h.configError(c, h.configErr)
	}

	q := c.Locals(middleware.QueryKey).(*listQuery)
	limit := h.config.PostsPerPage
	if q.Limit != nil {
		limit = *q.Limit
	}

	var after *string
	if q.Cursor != "" {
		after = &q.Cursor
	}

	page, err := h.posts.Page(c.UserContext(), limit, after)
	if err != nil {
		if errors.Is(err, content.ErrNotConfigured) {
			return h.configError(c, err)
		}
		h.log.Error().Err(err).Str("cursor", q.Cursor).Int("limit", limit).Msg("Error fetching posts")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch posts",
		})
	}

	c.Set(fiber.HeaderCacheControl, postsCacheControl)
	return c.JSON(page)
}

// GetPost handles GET /api/posts/:slug
func (h *Handlers) GetPost(c *fiber.Ctx) error {
	if h.configErr != nil {
		return h.configError(c, h.configErr)
	}

	slug := c.Params("slug")
	post, err := h.posts.Post(c.UserContext(), slug)
	switch {
	case errors.Is(err, content.ErrInvalidSlug):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Post slug is required",
		})
	case errors.Is(err, content.ErrNotConfigured):
		return h.configError(c, err)
	case err != nil:
		h.log.Error().Err(err).Str("slug", slug).Msg("Error fetching post")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch post",
		})
	case post == nil:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Post not found",
		})
	}

	c.Set(fiber.HeaderCacheControl, postsCacheControl)
	return c.JSON(post)
}

// Search handles GET /api/search
func (h *Handlers) Search(c *fiber.Ctx) error {
	query := c.Query("q")

	res, err := h.search.Search(c.UserContext(), query, h.config.SearchMaxResults)
	if err != nil {
		if errors.Is(err, content.ErrNotConfigured) {
			return h.configError(c, err)
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		h.log.Error().Err(err).Str("query", query).Msg("Search failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search is temporarily unavailable",
		})
	}

	// short queries never reach the index
	if res.Version == "" {
		c.Set(fiber.HeaderCacheControl, shortSearchCacheControl)
		return c.JSON(res.Posts)
	}

	etag := `"` + utils.HashParts(query, res.Version)[:32] + `"`
	c.Set(fiber.HeaderCacheControl, searchCacheControl)
	c.Set(fiber.HeaderETag, etag)
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}
	return c.JSON(res.Posts)
}

// Signup handles POST /api/signup
func (h *Handlers) Signup(c *fiber.Ctx) error {
	var form signupForm
	if err := c.BodyParser(&form); err != nil || h.validator.Validate(&form) != nil {
		return c.Status(fiber.StatusBadRequest).JSON(newsletter.Outcome{
			Message: "Valid email is required",
		})
	}

	out, err := h.newsletter.Subscribe(c.UserContext(), form.Email)
	if err != nil {
		if errors.Is(err, newsletter.ErrNotConfigured) {
			return h.configError(c, err)
		}
		h.log.Error().Err(err).Str("subscriber", newsletter.SubscriberTag(form.Email)).Msg("Newsletter subscription failed")
		return c.Status(fiber.StatusInternalServerError).JSON(newsletter.Outcome{
			Message: "An unexpected server error occurred.",
		})
	}

	return c.Status(out.Status).JSON(out)
}

// ImageProxy handles GET /api/image-proxy
func (h *Handlers) ImageProxy(c *fiber.Ctx) error {
	req := imageproxy.ParseRequest(c.Query("url"), c.Query("w"), c.Query("h"), c.Query("q"))

	img, err := h.images.Get(c.UserContext(), req)
	if err != nil {
		var pe *imageproxy.Error
		if errors.As(err, &pe) {
			return fiber.NewError(pe.Status, pe.Message)
		}
		return err
	}

	c.Set(fiber.HeaderCacheControl, imageCacheControl)
	c.Set(fiber.HeaderETag, img.ETag)
	c.Set("X-Image-Processed", "true")
	if c.Get(fiber.HeaderIfNoneMatch) == img.ETag {
		return c.SendStatus(fiber.StatusNotModified)
	}
	c.Set(fiber.HeaderContentType, imageproxy.ContentType)
	return c.Send(img.Data)
}

// InvalidateSearch handles POST /api/admin/search/invalidate
func (h *Handlers) InvalidateSearch(c *fiber.Ctx) error {
	h.search.Invalidate()
	h.log.Info().Str("ip", c.IP()).Msg("Search index invalidated by admin")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) configError(c *fiber.Ctx, err error) error {
	h.log.Error().Err(err).Str("path", c.Path()).Msg("Server configuration error")

	msg := err.Error()
	var cfgErr *config.Error
	switch {
	case errors.As(err, &cfgErr):
	case errors.Is(err, content.ErrNotConfigured):
		msg = "HASHNODE_HOST is not configured"
	case errors.Is(err, newsletter.ErrNotConfigured):
		msg = "HASHNODE_ACCESS_TOKEN and HASHNODE_PUBLICATION_ID are required"
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "server configuration error: " + msg,
	})
}
