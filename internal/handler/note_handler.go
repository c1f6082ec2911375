package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notedrop/internal/domain"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"github.com/kursadbilgin/notedrop/internal/service"
)

type NoteService interface {
	Create(ctx context.Context, in service.CreateNoteInput) (*domain.Note, error)
	GetByID(ctx context.Context, id string) (*domain.Note, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Note, int64, error)
	Replay(ctx context.Context, id string) error
}

type NoteHandler struct {
	service NoteService
}

func NewNoteHandler(service NoteService) (*NoteHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("note service is required")
	}
	return &NoteHandler{service: service}, nil
}

// RegisterNoteRoutes mounts the note endpoints under /api. middleware runs in
// order before every route in the group, so a rate limit must precede auth to
// count rejected requests too.
func RegisterNoteRoutes(router fiber.Router, service NoteService, middleware ...fiber.Handler) error {
	h, err := NewNoteHandler(service)
	if err != nil {
		return err
	}

	api := router.Group("/api", middleware...)
	api.Post("/notes", h.CreateNote)
	api.Get("/notes", h.ListNotes)
	api.Get("/notes/:id", h.GetNote)
	api.Post("/notes/:id/replay", h.ReplayNote)

	return nil
}

type createNoteRequest struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	ReleaseAt  string `json:"releaseAt"`
	WebhookURL string `json:"webhookUrl"`
}

type attemptResponse struct {
	At         time.Time `json:"at"`
	StatusCode int       `json:"statusCode"`
	OK         bool      `json:"ok"`
	Error      *string   `json:"error"`
}

type noteResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	ReleaseAt   string            `json:"releaseAt"`
	WebhookURL  string            `json:"webhookUrl"`
	Status      string            `json:"status"`
	Attempts    []attemptResponse `json:"attempts"`
	DeliveredAt *time.Time        `json:"deliveredAt"`
	LockedAt    *time.Time        `json:"lockedAt"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type listNotesResponse struct {
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Total    int64          `json:"total"`
	Items    []noteResponse `json:"items"`
}

func (h *NoteHandler) CreateNote(c *fiber.Ctx) error {
	var req createNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.Create(c.Context(), service.CreateNoteInput{
		Title:      req.Title,
		Body:       req.Body,
		ReleaseAt:  req.ReleaseAt,
		WebhookURL: req.WebhookURL,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toNoteResponse(created))
}

func (h *NoteHandler) GetNote(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	note, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNoteResponse(note))
}

func (h *NoteHandler) ListNotes(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notes, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listNotesResponse{
		Page:     params.Page,
		PageSize: params.PageSize,
		Total:    total,
		Items:    toNoteResponses(notes),
	})
}

func (h *NoteHandler) ReplayNote(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Replay(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok": true,
		"id": id,
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("pageSize", repository.DefaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > repository.MaxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, repository.MaxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func toNoteResponses(notes []domain.Note) []noteResponse {
	responses := make([]noteResponse, 0, len(notes))
	for i := range notes {
		responses = append(responses, toNoteResponse(&notes[i]))
	}
	return responses
}

func toNoteResponse(n *domain.Note) noteResponse {
	if n == nil {
		return noteResponse{}
	}

	attempts := make([]attemptResponse, 0, len(n.Attempts))
	for _, a := range n.Attempts {
		item := attemptResponse{
			At:         a.At,
			StatusCode: a.StatusCode,
			OK:         a.OK,
		}
		if a.Error != "" {
			msg := a.Error
			item.Error = &msg
		}
		attempts = append(attempts, item)
	}

	return noteResponse{
		ID:          n.ID,
		Title:       n.Title,
		Body:        n.Body,
		ReleaseAt:   domain.FormatReleaseAt(n.ReleaseAt),
		WebhookURL:  n.WebhookURL,
		Status:      n.Status.String(),
		Attempts:    attempts,
		DeliveredAt: n.DeliveredAt,
		LockedAt:    n.LockedAt,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
