package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ysocial/yserver/models"
)

// HandleReset drops and recreates every experiment table. Only one reset
// runs at a time; overlapping calls are rejected rather than queued so a
// stuck orchestrator retry cannot pile up destructive work.
func (s *Server) HandleReset(c echo.Context) error {
	if err := s.Reset(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Reset wipes the database back to an empty, migrated schema. It is also
// called at startup when the experiment config asks for a fresh database.
func (s *Server) Reset(ctx context.Context) error {
	if !s.resetLk.TryLock() {
		return ErrResetInProgress
	}
	defer s.resetLk.Unlock()

	db := s.db.WithContext(ctx)
	if err := db.Migrator().DropTable(models.All()...); err != nil {
		return fmt.Errorf("dropping tables: %w", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("recreating schema: %w", err)
	}

	resetsCounter.Inc()
	s.log.Info("experiment database reset", "experiment", s.cfg.Name)
	return nil
}
