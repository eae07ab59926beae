// Package handler exposes a read-only HTTP inspection surface over a loaded
// feed cache: liveness, summary status, and the raw entry set.
package handler

import (
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"feedwatch-go/pkg/cache"
)

type CacheHandler struct {
	store     *cache.Store
	startedAt time.Time
}

// New builds the fiber application serving the inspection API.
func New(store *cache.Store) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "feedwatch",
		DisableStartupMessage: true,
	})

	h := &CacheHandler{store: store, startedAt: time.Now()}

	app.Get("/healthz", h.Health)
	api := app.Group("/api/v1")
	api.Get("/status", h.Status)
	api.Get("/entries", h.Entries)

	return app
}

func (h *CacheHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *CacheHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"entries":   h.store.Len(),
		"modified":  h.store.Modified(),
		"uptime":    time.Since(h.startedAt).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Entries returns the cached entry set sorted by ID. An optional ?channel=
// query restricts the result to one feed's entries.
func (h *CacheHandler) Entries(c *fiber.Ctx) error {
	channel := c.Query("channel")

	entries := h.store.Entries()
	if channel != "" {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.ChannelURL == channel {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].UniqueID < entries[j].UniqueID })

	return c.JSON(fiber.Map{
		"count":   len(entries),
		"entries": entries,
	})
}
