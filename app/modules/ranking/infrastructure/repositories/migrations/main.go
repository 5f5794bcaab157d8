package rankingmigrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()

func init() {
	// Each file registers with MustRegister and gets its id from the file name.
	if err := Migrations.DiscoverCaller(); err != nil {
		panic(err)
	}
}
