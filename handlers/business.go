package handlers

import (
	"raildrops/middleware"
	"raildrops/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBusinessRoutes(app *fiber.App, businesses *services.BusinessService, uploader ImageUploader) {
	app.Post("/s/businesses", func(c *fiber.Ctx) error {
		var in services.BusinessInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if fh, err := c.FormFile("logo"); err == nil && fh.Size > 0 {
			url, err := uploadImage(c.UserContext(), uploader, "logos", fh)
			if err != nil {
				return respondError(c, err)
			}
			in.LogoURL = url
		}

		b, err := businesses.CreateBusiness(c.UserContext(), middleware.AccountFrom(c), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(b)
	})

	// 🔓 Public profile; identity only decides can_create_giveaway
	app.Get("/businesses/:id", func(c *fiber.Ctx) error {
		p, err := businesses.GetPublic(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"business":            p.Business,
			"giveaways":           p.Giveaways,
			"can_create_giveaway": services.CanCreateGiveaway(middleware.AccountFrom(c), p.Business),
		})
	})

	app.Get("/s/business", func(c *fiber.Ctx) error {
		b, err := businesses.GetByOwner(c.UserContext(), middleware.AccountFrom(c).UserID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(b)
	})
}
