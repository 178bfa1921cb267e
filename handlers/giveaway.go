package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"raildrops/middleware"
	"raildrops/services"
	"raildrops/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// ImageUploader stores an uploaded image and returns its public URL.
type ImageUploader interface {
	UploadFile(ctx context.Context, fh *multipart.FileHeader, key string) (string, error)
}

type giveawayHandler struct {
	giveaways *services.GiveawayService
	entries   *services.EntryService
	winners   *services.WinnerService
	uploader  ImageUploader
}

func SetupGiveawayRoutes(app *fiber.App, giveaways *services.GiveawayService, entries *services.EntryService,
	winners *services.WinnerService, uploader ImageUploader) {
	h := &giveawayHandler{giveaways: giveaways, entries: entries, winners: winners, uploader: uploader}

	// 🔓 Public: identity is optional, used for can_enter
	app.Get("/giveaways", h.list)
	app.Get("/giveaways/:id", h.detail)
	app.Get("/giveaways/:id/winner", h.winner)

	// 🔐 Secured
	app.Post("/s/giveaways", h.create)
	app.Put("/s/giveaways/:id", h.update)
	app.Get("/s/business/giveaways", h.listOwn)
	app.Post("/s/giveaways/:id/entries", h.enter)
}

func (h *giveawayHandler) list(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	out, err := h.giveaways.ListActive(c.UserContext(), services.ListFilter{
		City:       c.Query("city"),
		PostalCode: c.Query("postal_code"),
		AllDates:   c.QueryBool("all_dates", false),
		Page:       page,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"giveaways": out, "page": max(page, 1)})
}

func (h *giveawayHandler) detail(c *fiber.Ctx) error {
	ctx := c.UserContext()
	g, err := h.giveaways.GetGiveaway(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	count, err := h.entries.CountEntries(ctx, g.ID)
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{"giveaway": g, "entries_count": count}
	if acct := middleware.AccountFrom(c); acct.IsAuthenticated() {
		canEnter, err := h.entries.CanEnterGiveaway(ctx, acct, g)
		if err != nil {
			return respondError(c, err)
		}
		entered, err := h.entries.HasEntered(ctx, g.ID, acct.UserID)
		if err != nil {
			return respondError(c, err)
		}
		resp["can_enter"] = canEnter
		resp["has_entered"] = entered
	}
	return c.JSON(resp)
}

func (h *giveawayHandler) winner(c *fiber.Ctx) error {
	w, err := h.winners.GetWinner(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(w)
}

type entryRequest struct {
	Answer           string `json:"answer" form:"answer"`
	UserLocationCity string `json:"user_location_city" form:"user_location_city"`
}

func (h *giveawayHandler) enter(c *fiber.Ctx) error {
	var req entryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	entry, err := h.entries.SubmitEntry(c.UserContext(), middleware.AccountFrom(c), c.Params("id"), req.UserLocationCity, req.Answer)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *giveawayHandler) create(c *fiber.Ctx) error {
	in, err := h.parseGiveawayForm(c)
	if err != nil {
		return respondError(c, err)
	}
	g, err := h.giveaways.CreateGiveaway(c.UserContext(), middleware.AccountFrom(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(g)
}

func (h *giveawayHandler) update(c *fiber.Ctx) error {
	in, err := h.parseGiveawayForm(c)
	if err != nil {
		return respondError(c, err)
	}
	g, err := h.giveaways.UpdateGiveaway(c.UserContext(), middleware.AccountFrom(c), c.Params("id"), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(g)
}

func (h *giveawayHandler) listOwn(c *fiber.Ctx) error {
	out, err := h.giveaways.ListForBusiness(c.UserContext(), middleware.AccountFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"giveaways": out})
}

// parseGiveawayForm reads a (multipart) giveaway form and uploads the optional image.
func (h *giveawayHandler) parseGiveawayForm(c *fiber.Ctx) (services.GiveawayInput, error) {
	in := services.GiveawayInput{
		Title:          c.FormValue("title"),
		Description:    c.FormValue("description"),
		SignupQuestion: c.FormValue("signup_question"),
	}

	var err error
	if in.StartDate, err = parseFormTime(c.FormValue("start_date")); err != nil {
		return in, &services.GiveawayFieldError{Field: "start_date", Msg: err.Error()}
	}
	if in.EndDate, err = parseFormTime(c.FormValue("end_date")); err != nil {
		return in, &services.GiveawayFieldError{Field: "end_date", Msg: err.Error()}
	}
	if raw := strings.TrimSpace(c.FormValue("prize_value")); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return in, &services.GiveawayFieldError{Field: "prize_value", Msg: "prize_value must be a number"}
		}
		in.PrizeValue = &v
	}
	if raw := c.FormValue("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return in, &services.GiveawayFieldError{Field: "is_active", Msg: "is_active must be true or false"}
		}
		in.IsActive = &active
	}

	if form, err := c.MultipartForm(); err == nil {
		in.SignupOptions = form.Value["signup_options"]
	} else {
		for _, v := range c.Request().PostArgs().PeekMulti("signup_options") {
			in.SignupOptions = append(in.SignupOptions, string(v))
		}
	}

	if fh, err := c.FormFile("image"); err == nil && fh.Size > 0 {
		url, err := uploadImage(c.UserContext(), h.uploader, "giveaways", fh)
		if err != nil {
			return in, err
		}
		in.ImageURL = url
	}
	return in, nil
}

func uploadImage(ctx context.Context, uploader ImageUploader, prefix string, fh *multipart.FileHeader) (string, error) {
	if uploader == nil {
		return "", &services.GiveawayFieldError{Field: "image", Msg: "image uploads are not configured"}
	}
	key, err := utils.ImageKey(prefix, fh)
	if err != nil {
		return "", err
	}
	return uploader.UploadFile(ctx, fh, key)
}

var formTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func parseFormTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("date is required")
	}
	for _, layout := range formTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected RFC 3339", raw)
}
