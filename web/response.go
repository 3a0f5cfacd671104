// Package web holds the HTTP plumbing shared by the domain handlers.
package web

import (
	"github.com/gofiber/fiber/v3"
)

const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Flash is the envelope of every JSON response: a message for the user, the
// page the client should show next and the payload.
type Flash struct {
	Level    string            `json:"level"`
	Message  string            `json:"message,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
	Data     any               `json:"data,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func Data(c fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(Flash{Level: LevelSuccess, Data: data})
}

func Success(c fiber.Ctx, message, redirect string, data any) error {
	return c.Status(fiber.StatusOK).JSON(Flash{
		Level:    LevelSuccess,
		Message:  message,
		Redirect: redirect,
		Data:     data,
	})
}

func Created(c fiber.Ctx, message, redirect string, data any) error {
	return c.Status(fiber.StatusCreated).JSON(Flash{
		Level:    LevelSuccess,
		Message:  message,
		Redirect: redirect,
		Data:     data,
	})
}
