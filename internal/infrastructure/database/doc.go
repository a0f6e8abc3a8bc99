// Package database provides the SQLite connection used by brickd.
//
// brickd stores user scripts in SQLite. This package opens the database
// file with WAL mode and a busy timeout, and applies versioned migrations
// from an fs.FS (the migrations package embeds them into the binary).
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
