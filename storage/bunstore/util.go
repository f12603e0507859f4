package bunstore

import "database/sql"

func isAffected(res sql.Result) bool {
	rows, err := res.RowsAffected()
	if err != nil {
		return true
	}
	return rows != 0
}
