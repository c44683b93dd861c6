package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/trezcool/homeworkchat/apps"
	"github.com/trezcool/homeworkchat/core"
	"github.com/trezcool/homeworkchat/services/backend"
	logsvc "github.com/trezcool/homeworkchat/services/logger"
	"github.com/trezcool/homeworkchat/storage/database"
)

func main() {
	logger := logsvc.NewStdLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), logsvc.LevelInfo)

	conf, err := core.NewConfig()
	if err != nil {
		logger.Fatal("loading config", err)
	}
	validate, _ := core.NewValidator()
	if err = conf.Validate(validate); err != nil {
		logger.Fatal("invalid config", err)
	}

	// set up the thread store
	store, db, closer, err := apps.OpenThreadStore(conf)
	if err != nil {
		logger.Fatal("opening thread store", err)
	}

	openDB := func() (*sql.DB, error) {
		if db != nil {
			return db, nil
		}
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		var err error
		db, err = database.Open(conf)
		return db, err
	}

	// start CLI
	cli := newCommandLine(store, backend.NewClient(conf.Backend.BaseURL, conf.Backend.Token, conf.Backend.Timeout), migrator(openDB))
	err = cli.run(os.Args)

	if db != nil && db != closer {
		_ = db.Close()
	}
	if cErr := closer.Close(); cErr != nil {
		logger.Error("closing thread store", cErr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error("error: " + err.Error())
		}
		os.Exit(1)
	}
}
