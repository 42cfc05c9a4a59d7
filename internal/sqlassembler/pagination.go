package sqlassembler

import (
	"fmt"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
)

// paginate wraps sql for window [p.Start, p.End) per d's pagination
// strategy, splicing the window bounds in as system bind parameters
// rather than literal integers, so they flow through the same
// finalize() translation step as every other bind.
func paginate(sql string, p *query.Pagination, d dialect.Dialect) (string, []filterBind, error) {
	if p.End <= p.Start {
		return "", nil, queryerr.Newf(queryerr.CodeValidationErr,
			"pagination window end (%d) must be greater than start (%d)", p.End, p.Start)
	}

	switch d.PaginationStrategy() {
	case dialect.StrategyRowNumWrap:
		return paginateRowNum(sql, p), []filterBind{
			{"endRow", p.End}, {"startRow", p.Start},
		}, nil
	case dialect.StrategyOffsetFetch:
		return paginateOffsetFetch(sql), []filterBind{
			{"offset", p.Start}, {"limit", p.End - p.Start},
		}, nil
	case dialect.StrategyLimitOffset:
		return paginateLimitOffset(sql), []filterBind{
			{"limit", p.End - p.Start}, {"offset", p.Start},
		}, nil
	default:
		return "", nil, queryerr.Newf(queryerr.CodeDefinitionErr, "unrecognized pagination strategy")
	}
}

// paginateRowNum is the Oracle 11g double-wrap: an inner ROWNUM <= end
// bound, then an outer rnum > start bound, since ROWNUM can only be
// compared with <= before the row is materialized.
func paginateRowNum(sql string, p *query.Pagination) string {
	return fmt.Sprintf(
		"SELECT * FROM (\n"+
			"  SELECT qre_page.*, ROWNUM qre_rnum FROM (\n%s\n  ) qre_page WHERE ROWNUM <= :endRow\n"+
			") WHERE qre_rnum > :startRow",
		sql)
}

// paginateOffsetFetch is the ANSI SQL:2008 OFFSET/FETCH clause (Oracle
// 12c+, PostgreSQL, SQL Server 2012+, HSQLDB).
func paginateOffsetFetch(sql string) string {
	return fmt.Sprintf("%s\nOFFSET :offset ROWS FETCH NEXT :limit ROWS ONLY", sql)
}

// paginateLimitOffset is MySQL/MariaDB/H2's LIMIT/OFFSET.
func paginateLimitOffset(sql string) string {
	return fmt.Sprintf("%s\nLIMIT :limit OFFSET :offset", sql)
}
