package server

import (
	"database/sql"

	"github.com/MuhtasimTanmoy/corrosion/internal/statement"
)

// bindArgs converts a statement.Statement into the args slice
// database/sql expects, covering all three wire shapes (spec §6).
func bindArgs(stmt statement.Statement) []any {
	if named := stmt.NamedArgs(); named != nil {
		args := make([]any, 0, len(named))
		for name, value := range named {
			args = append(args, sql.Named(name, value))
		}
		return args
	}
	return stmt.Args()
}
