package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/tableops/tableops/internal/pkg/billing"
)

// CronController exposes the trial sweeps to an external scheduler.
type CronController struct {
	sweeper *billing.Sweeper
}

func NewCronController(sweeper *billing.Sweeper) *CronController {
	return &CronController{sweeper: sweeper}
}

func (cc *CronController) HandleTrialExpiring(c *fiber.Ctx) error {
	report, err := cc.sweeper.TrialExpiring(c.UserContext())
	if err != nil {
		log.Errorf("[Cron] Trial expiring sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Trial expiring sweep failed",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Trial expiring sweep completed",
		"results": report,
	})
}

func (cc *CronController) HandleTrialExpired(c *fiber.Ctx) error {
	report, err := cc.sweeper.TrialExpired(c.UserContext())
	if err != nil {
		log.Errorf("[Cron] Trial expired sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Trial expired sweep failed",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Trial expired sweep completed",
		"results": report,
	})
}
