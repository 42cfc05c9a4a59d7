package query

// FilterOperator is one of the sixteen predicate operators a Filter may
// carry.
type FilterOperator string

const (
	OpEquals     FilterOperator = "EQUALS"
	OpNotEquals  FilterOperator = "NOT_EQUALS"
	OpGT         FilterOperator = "GT"
	OpGTE        FilterOperator = "GTE"
	OpLT         FilterOperator = "LT"
	OpLTE        FilterOperator = "LTE"
	OpLike       FilterOperator = "LIKE"
	OpNotLike    FilterOperator = "NOT_LIKE"
	OpIn         FilterOperator = "IN"
	OpNotIn      FilterOperator = "NOT_IN"
	OpBetween    FilterOperator = "BETWEEN"
	OpIsNull     FilterOperator = "IS_NULL"
	OpIsNotNull  FilterOperator = "IS_NOT_NULL"
	OpContains   FilterOperator = "CONTAINS"
	OpStartsWith FilterOperator = "STARTS_WITH"
	OpEndsWith   FilterOperator = "ENDS_WITH"
)

// SortDirection is ASC or DESC.
type SortDirection string

const (
	DirAsc  SortDirection = "ASC"
	DirDesc SortDirection = "DESC"
)

// Arity describes how many values an operator consumes.
type Arity int

const (
	ArityOne  Arity = iota // single `value`
	ArityTwo               // `value` and `value2` (BETWEEN)
	ArityMany              // `values[]` (IN / NOT_IN)
	ArityZero              // no value (IS_NULL / IS_NOT_NULL)
)

// ArityOf returns the expected arity for op, or false if op is unknown.
func ArityOf(op FilterOperator) (Arity, bool) {
	switch op {
	case OpEquals, OpNotEquals, OpGT, OpGTE, OpLT, OpLTE, OpLike, OpNotLike,
		OpContains, OpStartsWith, OpEndsWith:
		return ArityOne, true
	case OpIn, OpNotIn:
		return ArityMany, true
	case OpBetween:
		return ArityTwo, true
	case OpIsNull, OpIsNotNull:
		return ArityZero, true
	default:
		return 0, false
	}
}
