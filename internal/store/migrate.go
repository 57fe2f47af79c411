package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies the chat/message schema migrations against dsn. dir is a
// source URL, e.g. "file://internal/store/migrations"; direction is "up"
// or "down"; steps of 0 runs the full migration in that direction.
// Grounded on the teacher's internal/server.Migrate.
func Migrate(dir, dsn, direction string, steps int) error {
	if dir == "" {
		dir = "file://internal/store/migrations"
	}

	m, err := migrate.New(dir, dsn)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown migration direction: %s", direction)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
