package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/acl"
	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/lock"
)

// Editor runs the lock-protected edit flow: Begin when the form is opened,
// Check right before saving, Finish once saved and Cancel when abandoned.
type Editor struct {
	Locks lock.Manager
}

func NewEditor(locks lock.Manager) *Editor {
	return &Editor{Locks: locks}
}

func holder(c fiber.Ctx) (string, error) {
	p := acl.FromCtx(c)
	if p == nil || p.SessionID == "" {
		return "", apperr.Permission("session requise pour modifier")
	}
	return p.SessionID, nil
}

func (e *Editor) Begin(c fiber.Ctx, key lock.Key, lockMessage string) error {
	h, err := holder(c)
	if err != nil {
		return err
	}
	err = e.Locks.Acquire(c.UserContext(), key, h)
	if errors.Is(err, apperr.ErrAlreadyLocked) {
		return apperr.AlreadyLocked("%s", lockMessage)
	}
	return err
}

// Check fails with an already-locked error when the lock expired or was taken
// by another session since Begin.
func (e *Editor) Check(c fiber.Ctx, key lock.Key, lockMessage string) error {
	h, err := holder(c)
	if err != nil {
		return err
	}
	held, err := e.Locks.IsHeldBy(c.UserContext(), key, h)
	if err != nil {
		return err
	}
	if !held {
		return apperr.AlreadyLocked("%s", lockMessage)
	}
	return nil
}

// Save runs save under the lock taken by Begin. The lock is released once
// saved or when save fails; a validation error keeps it so the form can be
// sent again.
func (e *Editor) Save(c fiber.Ctx, key lock.Key, lockMessage string, save func() error) error {
	if err := e.Check(c, key, lockMessage); err != nil {
		return err
	}
	if err := save(); err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return err
		}
		if ferr := e.Finish(c, key); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}
	return e.Finish(c, key)
}

func (e *Editor) Finish(c fiber.Ctx, key lock.Key) error {
	h, err := holder(c)
	if err != nil {
		return err
	}
	return e.Locks.Release(c.UserContext(), key, h)
}

// Cancel releases the lock and answers with the cancellation flash.
func (e *Editor) Cancel(c fiber.Ctx, key lock.Key, redirect string) error {
	if err := e.Finish(c, key); err != nil {
		return err
	}
	return Success(c, "Demande annulée", redirect, nil)
}
