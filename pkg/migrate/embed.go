package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedded embed.FS

// EmbeddedDir is the directory name inside the embedded filesystem.
const EmbeddedDir = "migrations"

// RunEmbedded executes a goose command against the migrations compiled into the binary.
func RunEmbedded(ctx context.Context, db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(embedded)
	defer goose.SetBaseFS(nil)

	if err := Run(ctx, db, EmbeddedDir, command, args...); err != nil {
		return fmt.Errorf("embedded migrations: %w", err)
	}
	return nil
}
