// Package apps holds what the binaries share.
package apps

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/homeworkchat/core"
	"github.com/trezcool/homeworkchat/core/conversation"
	"github.com/trezcool/homeworkchat/storage/database"
	inmemdb "github.com/trezcool/homeworkchat/storage/database/inmem"
	sqlxrepos "github.com/trezcool/homeworkchat/storage/database/sqlx"
	pebblestore "github.com/trezcool/homeworkchat/storage/pebble"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenThreadStore opens the durable thread store of the configured engine.
// The returned closer releases it; db is only set for the postgres engine.
func OpenThreadStore(conf *core.Config) (store conversation.Store, db *sql.DB, closer io.Closer, err error) {
	switch conf.Store.Engine {
	case "memory":
		return inmemdb.NewThreadStore(inmemdb.Open()), nil, nopCloser{}, nil
	case "postgres":
		if db, err = database.Open(conf); err != nil {
			return nil, nil, nil, errors.Wrap(err, "opening database")
		}
		return sqlxrepos.NewThreadStore(db), db, db, nil
	case "pebble":
		pdb, err := pebblestore.Open(conf.Store.Path, nil)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "opening %s", conf.Store.Path)
		}
		return pebblestore.NewThreadStore(pdb), nil, pdb, nil
	default:
		return nil, nil, nil, NewArgumentError(fmt.Sprintf("unknown store engine %q", conf.Store.Engine))
	}
}
