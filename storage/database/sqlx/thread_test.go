package sqlxrepos

import (
	"testing"

	testutil "github.com/trezcool/homeworkchat/tests"
)

func TestThreadStore(t *testing.T) {
	db := testutil.PrepareDB(t)
	testutil.StoreContract(t, NewThreadStore(db))
}
