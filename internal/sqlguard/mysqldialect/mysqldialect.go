// Package mysqldialect re-parses sanitized statements with the MySQL grammar
// so that syntax the target server would refuse is rejected before execution.
package mysqldialect

import (
	"fmt"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

// DefaultServerVersion selects the grammar features the parser accepts.
const DefaultServerVersion = "8.0.40"

type Verifier struct {
	parser *sqlparser.Parser
}

// New returns a Verifier for the given MySQL server version, or
// DefaultServerVersion when empty.
func New(serverVersion string) (*Verifier, error) {
	if serverVersion == "" {
		serverVersion = DefaultServerVersion
	}
	parser, err := sqlparser.New(sqlparser.Options{MySQLServerVersion: serverVersion})
	if err != nil {
		return nil, fmt.Errorf("mysql parser: %w", err)
	}
	return &Verifier{parser: parser}, nil
}

// Verify parses one statement and reports its kind as MySQL sees it.
func (v *Verifier) Verify(statement string) (sqlguard.Kind, error) {
	stmt, err := v.parser.Parse(statement)
	if err != nil {
		return "", err
	}
	return kindOf(stmt), nil
}

func kindOf(stmt sqlparser.Statement) sqlguard.Kind {
	switch stmt.(type) {
	case sqlparser.SelectStatement:
		return sqlguard.KindSelect
	case *sqlparser.Insert:
		return sqlguard.KindInsert
	case *sqlparser.Update:
		return sqlguard.KindUpdate
	case *sqlparser.Delete:
		return sqlguard.KindDelete
	case *sqlparser.DropTable, *sqlparser.DropView:
		return sqlguard.KindDrop
	case *sqlparser.CreateTable, *sqlparser.CreateView:
		return sqlguard.KindCreate
	case *sqlparser.AlterTable, *sqlparser.AlterView:
		return sqlguard.KindAlter
	}
	return sqlguard.KindOther
}
