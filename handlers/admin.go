package handlers

import (
	"net/url"

	"raildrops/metrics"
	"raildrops/middleware"
	"raildrops/services"
	"raildrops/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupAdminRoutes(app *fiber.App, winners *services.WinnerService, dispatcher *workers.Dispatcher,
	exporter *metrics.Exporter, chunkSize int) {
	admin := app.Group("/s/admin", middleware.RequireRole(middleware.RoleAdmin))

	// Scan for ended giveaways and queue them for selection.
	admin.Post("/winners/select", func(c *fiber.Ctx) error {
		ctx := metrics.WithCollector(c.UserContext(), metrics.NewCollector(exporter))
		run, err := workers.ScanAndDispatch(ctx, winners, dispatcher, chunkSize)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"task_id":         run.ID,
			"status":          run.Status,
			"total_giveaways": run.TotalGiveaways,
			"chunks":          run.Chunks,
			"status_url":      "/s/admin/winners/status?task_id=" + url.QueryEscape(run.ID),
		})
	})

	admin.Post("/giveaways/:id/select-winner", func(c *fiber.Ctx) error {
		mc := metrics.NewCollector(exporter)
		w, err := winners.SelectWinner(metrics.WithCollector(c.UserContext(), mc), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"winner":              w,
			"performance_metrics": mc.Get("select_random_winner"),
		})
	})

	admin.Get("/winners/status", func(c *fiber.Ctx) error {
		taskID := c.Query("task_id")
		if taskID == "" {
			return fieldError(c, "task_id", "task_id is required")
		}
		st, err := dispatcher.Status(c.UserContext(), taskID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(st)
	})
}

// SetupMetricsRoute exposes the Prometheus registry through Fiber.
func SetupMetricsRoute(app *fiber.App, gatherer prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
