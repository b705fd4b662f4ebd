package proxy

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/switchboard/pkg/calllog"
	"github.com/papercomputeco/switchboard/pkg/storage"
)

const (
	defaultCallsLimit = 50
	maxCallsLimit     = 1000
)

type callList struct {
	Count int               `json:"count"`
	Calls []*calllog.Record `json:"calls"`
}

// handleListCalls returns the most recent call records, newest first.
func (p *Proxy) handleListCalls(c *fiber.Ctx) error {
	if p.driver == nil {
		return loggingDisabled(c)
	}

	limit := c.QueryInt("limit", defaultCallsLimit)
	if limit <= 0 || limit > maxCallsLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 1000"})
	}

	records, err := p.driver.List(c.UserContext(), limit)
	if err != nil {
		p.logger.Error("failed to list call records", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list calls"})
	}
	if records == nil {
		records = []*calllog.Record{}
	}

	return c.JSON(callList{Count: len(records), Calls: records})
}

// handleGetCall returns a single call record by id.
func (p *Proxy) handleGetCall(c *fiber.Ctx) error {
	if p.driver == nil {
		return loggingDisabled(c)
	}

	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id parameter required"})
	}

	rec, err := p.driver.Get(c.UserContext(), id)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "call not found"})
		}
		p.logger.Error("failed to read call record", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read call"})
	}

	return c.JSON(rec)
}

func loggingDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "call logging is disabled"})
}
