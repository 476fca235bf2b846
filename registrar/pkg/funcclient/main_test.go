package funcclient_test

import (
	"context"
	"os"
	"testing"

	agentstesting "github.com/derar-alhussein/agents-workshop/utils/pkg/testing"
	clickhousetesting "github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse/testing"
	postgrestesting "github.com/derar-alhussein/agents-workshop/warehouse/pkg/postgres/testing"
)

var (
	sharedDB *clickhousetesting.DB
	sharedPG *postgrestesting.DB
)

func TestMain(m *testing.M) {
	log := agentstesting.NewLogger()
	var err error
	sharedDB, err = clickhousetesting.NewDB(context.Background(), log, nil)
	if err != nil {
		log.Error("failed to create shared DB", "error", err)
		os.Exit(1)
	}
	sharedPG, err = postgrestesting.NewDB(context.Background(), log, nil)
	if err != nil {
		log.Error("failed to create shared PostgreSQL DB", "error", err)
		sharedDB.Close()
		os.Exit(1)
	}
	code := m.Run()
	sharedPG.Close()
	sharedDB.Close()
	os.Exit(code)
}
