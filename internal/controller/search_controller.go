package controller

import (
	"bufio"
	"errors"

	"food-search-be/internal/dto"
	"food-search-be/internal/pkg/serverutils"
	"food-search-be/internal/service"
	"food-search-be/internal/sse"
	"food-search-be/internal/websocket"
	"food-search-be/pkg/failure"
	"food-search-be/pkg/pipeline"

	"github.com/gofiber/fiber/v2"
)

type ISearchController interface {
	RegisterRoutes(r fiber.Router)
	Search(ctx *fiber.Ctx) error
	SearchStream(ctx *fiber.Ctx) error
	Reply(ctx *fiber.Ctx) error
	ReplyStream(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type searchController struct {
	searchService service.ISearchService
	jwtSecret     string
}

func NewSearchController(searchService service.ISearchService, jwtSecret string) ISearchController {
	return &searchController{
		searchService: searchService,
		jwtSecret:     jwtSecret,
	}
}

func (c *searchController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Health)

	h := r.Group("/search")
	h.Use(serverutils.OptionalJwtMiddleware(c.jwtSecret))
	h.Post("", c.Search)
	h.Post("/stream", c.SearchStream)
	h.Get("/:requestId", c.Show)
	h.Post("/:requestId/reply", c.Reply)
	h.Post("/:requestId/reply/stream", c.ReplyStream)
}

func (c *searchController) Search(ctx *fiber.Ctx) error {
	var req dto.SearchRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}

	res, err := c.searchService.Search(ctx.UserContext(), req, caller(ctx, req.SessionID))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success search", res))
}

func (c *searchController) SearchStream(ctx *fiber.Ctx) error {
	var req dto.SearchRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}

	// Locals and params are not valid once the handler returns; capture them first.
	runCtx := ctx.UserContext()
	id := caller(ctx, req.SessionID)

	sse.SetHeaders(ctx)
	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		stream := sse.NewWriter(w)
		if err := stream.Open(); err != nil {
			return
		}
		c.searchService.StreamSearch(runCtx, req, id, stream)
	})
	return nil
}

func (c *searchController) Reply(ctx *fiber.Ctx) error {
	var req dto.ReplyRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}

	res, err := c.searchService.Reply(ctx.UserContext(), ctx.Params("requestId"), req, caller(ctx, req.SessionID))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success reply", res))
}

func (c *searchController) ReplyStream(ctx *fiber.Ctx) error {
	var req dto.ReplyRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}

	runCtx := ctx.UserContext()
	requestID := ctx.Params("requestId")
	id := caller(ctx, req.SessionID)

	sse.SetHeaders(ctx)
	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		stream := sse.NewWriter(w)
		if err := stream.Open(); err != nil {
			return
		}
		c.searchService.StreamReply(runCtx, requestID, req, id, stream)
	})
	return nil
}

func (c *searchController) Show(ctx *fiber.Ctx) error {
	res, err := c.searchService.GetState(ctx.UserContext(), ctx.Params("requestId"), caller(ctx, ctx.Query("sessionId")))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show search", res))
}

func (c *searchController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("OK", c.searchService.Health()))
}

func parse(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return serverutils.ValidateRequest(req)
}

func caller(ctx *fiber.Ctx, sessionID string) websocket.Identity {
	return websocket.Identity{
		SessionID: sessionID,
		UserID:    serverutils.UserID(ctx),
	}
}

// writeError answers with the taxonomy code as the machine-readable reason.
func writeError(ctx *fiber.Ctx, err error) error {
	pe := service.ClassifyError(err)
	status := statusFor(err, pe)
	message := pe.Message()
	if status == fiber.StatusNotFound || status == fiber.StatusConflict {
		message = err.Error()
	}
	return ctx.Status(status).JSON(serverutils.ErrorResponseWithReason(status, message, string(pe.Code())))
}

func statusFor(err error, pe *failure.PipelineError) int {
	switch {
	case errors.Is(err, pipeline.ErrRequestNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, pipeline.ErrRequestBusy), errors.Is(err, pipeline.ErrNotAwaitingReply),
		errors.Is(err, pipeline.ErrRequestExists):
		return fiber.StatusConflict
	}

	switch pe.Code() {
	case failure.CodeUnauthorized:
		return fiber.StatusForbidden
	case failure.CodeBadRequest:
		return fiber.StatusBadRequest
	case failure.CodeServerBusy:
		return fiber.StatusServiceUnavailable
	case failure.CodeLLMTimeout:
		return fiber.StatusGatewayTimeout
	case failure.CodeLLMFailed, failure.CodeSearchFailed:
		return fiber.StatusBadGateway
	case failure.CodeAborted:
		return fiber.StatusRequestTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
