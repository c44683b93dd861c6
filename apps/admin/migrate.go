package main

import (
	"database/sql"

	"github.com/trezcool/goose"

	appfs "github.com/trezcool/homeworkchat/fs"
	"github.com/trezcool/homeworkchat/storage/database"
)

var gooseRunFunc = goose.RunFS // mockable

// migrator runs goose commands against db; db is opened on demand by open.
func migrator(open func() (*sql.DB, error)) func(command string, args ...string) error {
	return func(command string, args ...string) error {
		db, err := open()
		if err != nil {
			return err
		}
		arguments := make([]string, 0, len(args))
		arguments = append(arguments, args...)
		return gooseRunFunc(command, db, appfs.FS, database.MigrationsDir, arguments...)
	}
}
