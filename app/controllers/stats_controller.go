package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/statistics"
)

const maxStatsDays = 90

type StatsController struct {
	totals  *statistics.Service
	counter *counter.Counter
}

func NewStatsController(totals *statistics.Service, c *counter.Counter) *StatsController {
	return &StatsController{totals: totals, counter: c}
}

// HandleStats returns totals and the per-day transform counters.
func (sc *StatsController) HandleStats(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	if days < 1 || days > maxStatsDays {
		days = 7
	}

	totals, err := sc.totals.Get()
	if err != nil {
		return renderError(c, err)
	}

	body := fiber.Map{"totals": totals}
	if sc.counter != nil {
		daily, err := sc.counter.Daily(c.UserContext(), days)
		if err != nil {
			return renderError(c, err)
		}
		body["transforms"] = daily
	}
	return c.JSON(body)
}
