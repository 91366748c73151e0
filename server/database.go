package server

import (
	"context"
	"time"

	"skysched/database/schemas"
)

func (s *Server) initDatabase(ctx context.Context) error {

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	targetSchema := schemas.CreateOccurrenceSchema()
	if err := schemas.CreateSchema(ctx, s.DB, targetSchema); err != nil {
		return err
	}

	return nil
}
