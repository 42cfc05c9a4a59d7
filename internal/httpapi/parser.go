// Package httpapi implements the REST surface: the request grammar
// (_start/_end/_meta/_select/_single/sort/filter.<attr>[.op]/named
// params), the response envelope, and the five HTTP endpoints, wired on
// gorilla/mux behind rs/cors.
package httpapi

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
	"github.com/queryreg/engine/internal/types"
)

// ParsedRequest is the result of parsing one HTTP request's query
// string against a QueryDefinition's declared shape.
type ParsedRequest struct {
	Params         map[string]interface{}
	Filters        []query.Filter
	Sorts          []query.SortSpec
	Pagination     *query.Pagination
	SelectedFields []string
	Meta           MetaVerbosity
	// Single requests the single-record response form: the first row
	// alone, or a 404 when the page is empty.
	Single bool
}

// PostBody is the JSON shape a POST /api/query/{name} request body
// takes: the same intents the GET query-string grammar carries,
// expressed as a structured object instead of URL parameters.
type PostBody struct {
	Params          map[string]interface{} `json:"params"`
	Filters         []PostFilter           `json:"filters"`
	Sorts           []PostSort             `json:"sorts"`
	Start           *int                   `json:"start"`
	End             *int                   `json:"end"`
	IncludeMetadata bool                   `json:"includeMetadata"`
	Meta            string                 `json:"meta"`
	Single          bool                   `json:"single"`
	Select          []string               `json:"select"`
}

// PostFilter is one filter entry in a PostBody.
type PostFilter struct {
	Attribute string      `json:"attribute"`
	Operator  string      `json:"operator"`
	Value     interface{} `json:"value"`
	Value2    interface{} `json:"value2"`
	Values    []interface{} `json:"values"`
}

// PostSort is one sort entry in a PostBody.
type PostSort struct {
	Attribute string `json:"attribute"`
	Direction string `json:"direction"`
}

// ParsePostBody translates a decoded PostBody into a ParsedRequest,
// applying the same type-coercion and validation rules ParseRequest
// applies to the GET query-string grammar.
func ParsePostBody(def *query.QueryDefinition, body *PostBody, defaultPageSize, maxPageSize int) (*ParsedRequest, error) {
	pr := &ParsedRequest{Params: make(map[string]interface{}), SelectedFields: body.Select, Single: body.Single}

	metaRaw := body.Meta
	if metaRaw == "" && body.IncludeMetadata {
		metaRaw = string(MetaFull)
	}
	meta, err := parseMetaVerbosity(metaRaw)
	if err != nil {
		return nil, err
	}
	pr.Meta = meta

	for name, raw := range body.Params {
		pd, ok := def.Params[name]
		if !ok {
			continue
		}
		v, err := types.Coerce(pd.Type, raw)
		if err != nil {
			return nil, err
		}
		pr.Params[name] = v
	}

	for _, pf := range body.Filters {
		attr, ok := def.Attributes[pf.Attribute]
		kind := types.KindString
		if ok {
			kind = attr.Type
		}
		op := shorthandOperator(pf.Operator)
		if _, known := query.ArityOf(op); !known {
			op = query.FilterOperator(strings.ToUpper(pf.Operator))
		}
		f := query.Filter{Attribute: pf.Attribute, Operator: op}
		if pf.Value != nil {
			v, err := types.Coerce(kind, pf.Value)
			if err != nil {
				return nil, err
			}
			f.Value = v
		}
		if pf.Value2 != nil {
			v, err := types.Coerce(kind, pf.Value2)
			if err != nil {
				return nil, err
			}
			f.Value2 = v
		}
		for _, raw := range pf.Values {
			v, err := types.Coerce(kind, raw)
			if err != nil {
				return nil, err
			}
			f.Values = append(f.Values, v)
		}
		pr.Filters = append(pr.Filters, f)
	}

	for _, ps := range body.Sorts {
		if _, ok := def.Attributes[ps.Attribute]; !ok {
			return nil, queryerr.Newf(queryerr.CodeValidationErr, "sort references unknown attribute %q", ps.Attribute).WithQuery(def.Name)
		}
		dir := query.DirAsc
		if strings.EqualFold(ps.Direction, "desc") {
			dir = query.DirDesc
		}
		pr.Sorts = append(pr.Sorts, query.SortSpec{Attribute: ps.Attribute, Direction: dir})
	}

	start := 0
	if body.Start != nil {
		start = *body.Start
	}
	size := defaultPageSize
	end := start + size
	if body.End != nil {
		end = *body.End
	}
	if end-start > maxPageSize {
		end = start + maxPageSize
	}
	pr.Pagination = &query.Pagination{Start: start, End: end}

	return pr, nil
}

// defaultPageSize/maxPageSize come from config; ParseRequest takes them
// explicitly rather than reaching into a global so it stays unit-testable.

// ParseRequest parses raw query-string values against def, coercing
// named parameters and filter values to their declared types and
// applying the heuristic chain to filter values on non-declared
// (dynamic) attributes.
func ParseRequest(def *query.QueryDefinition, values url.Values, defaultPageSize, maxPageSize int) (*ParsedRequest, error) {
	pr := &ParsedRequest{Params: make(map[string]interface{})}

	if err := parsePagination(values, defaultPageSize, maxPageSize, pr); err != nil {
		return nil, err
	}
	meta, err := parseMetaVerbosity(values.Get("_meta"))
	if err != nil {
		return nil, err
	}
	pr.Meta = meta
	pr.Single = values.Get("_single") == "true" || values.Get("_single") == "1"

	if sel := values.Get("_select"); sel != "" {
		for _, f := range strings.Split(sel, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				pr.SelectedFields = append(pr.SelectedFields, f)
			}
		}
	}

	if sortRaw := values.Get("sort"); sortRaw != "" {
		sorts, err := parseSort(def, sortRaw)
		if err != nil {
			return nil, err
		}
		pr.Sorts = sorts
	}

	filterGroups := make(map[string]map[string][]string)
	var filterOrder []string

	for key, raw := range values {
		switch {
		case key == "_start" || key == "_end" || key == "_meta" || key == "_select" || key == "_single" || key == "sort":
			continue
		case strings.HasPrefix(key, "filter."):
			attrName, suffix := splitFilterKey(key)
			g, ok := filterGroups[attrName]
			if !ok {
				g = make(map[string][]string)
				filterGroups[attrName] = g
				filterOrder = append(filterOrder, attrName)
			}
			g[suffix] = raw
		default:
			if pd, ok := def.Params[key]; ok {
				v, err := types.Coerce(pd.Type, firstOrJoin(raw))
				if err != nil {
					return nil, err
				}
				pr.Params[key] = v
			}
		}
	}

	sort.Strings(filterOrder)
	for _, attrName := range filterOrder {
		f, err := parseFilterGroup(def, attrName, filterGroups[attrName])
		if err != nil {
			return nil, err
		}
		pr.Filters = append(pr.Filters, f)
	}

	return pr, nil
}

// parseMetaVerbosity resolves the `_meta` value (full | minimal |
// none). Absent defaults to minimal; "true"/"1" are accepted as aliases
// for full for clients using the older boolean form.
func parseMetaVerbosity(raw string) (MetaVerbosity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "minimal":
		return MetaMinimal, nil
	case "full", "true", "1":
		return MetaFull, nil
	case "none", "false", "0":
		return MetaNone, nil
	default:
		return "", queryerr.Newf(queryerr.CodeValidationErr, "_meta must be full, minimal, or none, got %q", raw)
	}
}

// splitFilterKey splits a `filter.<attr>` or `filter.<attr>.<suffix>` URL
// key into its attribute name and suffix ("" for the bare form).
func splitFilterKey(key string) (attr, suffix string) {
	rest := strings.TrimPrefix(key, "filter.")
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) == 2 {
		return parts[0], strings.ToLower(parts[1])
	}
	return parts[0], ""
}

func parsePagination(values url.Values, defaultPageSize, maxPageSize int, pr *ParsedRequest) error {
	start := 0
	size := defaultPageSize

	if s := values.Get("_start"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return queryerr.Newf(queryerr.CodeValidationErr, "_start must be an integer: %v", err)
		}
		start = n
	}
	end := start + size
	if e := values.Get("_end"); e != "" {
		n, err := strconv.Atoi(e)
		if err != nil {
			return queryerr.Newf(queryerr.CodeValidationErr, "_end must be an integer: %v", err)
		}
		end = n
	}
	if end-start > maxPageSize {
		end = start + maxPageSize
	}
	pr.Pagination = &query.Pagination{Start: start, End: end}
	return nil
}

func parseSort(def *query.QueryDefinition, raw string) ([]query.SortSpec, error) {
	var specs []query.SortSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dir := query.DirAsc
		attr := part
		switch {
		case strings.HasSuffix(strings.ToLower(part), ".desc"):
			dir = query.DirDesc
			attr = part[:len(part)-len(".desc")]
		case strings.HasSuffix(strings.ToLower(part), ".asc"):
			attr = part[:len(part)-len(".asc")]
		}
		if _, ok := def.Attributes[attr]; !ok {
			return nil, queryerr.Newf(queryerr.CodeValidationErr, "sort references unknown attribute %q", attr).WithQuery(def.Name)
		}
		specs = append(specs, query.SortSpec{Attribute: attr, Direction: dir})
	}
	return specs, nil
}

// parseFilterGroup turns every `filter.<attrName>[.suffix]` key collected
// for one attribute into a single query.Filter, coercing value(s) to the
// attribute's declared type when known, or falling back to the
// heuristic chain for a dynamic attribute the definition did not
// declare. group is keyed by suffix ("" for the bare `filter.<attr>=v`
// form, a shortcut name for `filter.<attr>.<op>=v`, or "op"/"value"/
// "value2" for BETWEEN's three-key form).
func parseFilterGroup(def *query.QueryDefinition, attrName string, group map[string][]string) (query.Filter, error) {
	var kind types.Kind
	if attr, ok := def.Attributes[attrName]; ok {
		kind = attr.Type
	}

	// BETWEEN's dedicated three-key form: filter.<attr>.op=between plus
	// filter.<attr>.value / filter.<attr>.value2.
	if opRaw, ok := group["op"]; ok {
		op := shorthandOperator(firstOrJoin(opRaw))
		if op != query.OpBetween {
			return query.Filter{}, queryerr.Newf(queryerr.CodeValidationErr,
				"filter.%s.op only supports \"between\"", attrName)
		}
		loRaw, hasLo := group["value"]
		hiRaw, hasHi := group["value2"]
		if !hasLo || !hasHi {
			return query.Filter{}, queryerr.Newf(queryerr.CodeValidationErr,
				"filter.%s.op=between requires both value and value2", attrName)
		}
		lo, err := coerceOrHeuristic(kind, firstOrJoin(loRaw))
		if err != nil {
			return query.Filter{}, err
		}
		hi, err := coerceOrHeuristic(kind, firstOrJoin(hiRaw))
		if err != nil {
			return query.Filter{}, err
		}
		return query.Filter{Attribute: attrName, Operator: query.OpBetween, Value: lo, Value2: hi}, nil
	}

	// Exactly one remaining suffix key is expected: "" (bare form) or a
	// single operator shortcut (the grammar never mixes two on one
	// attribute in a single request).
	suffix := ""
	var raw []string
	for s, v := range group {
		suffix, raw = s, v
		break
	}

	op := query.OpEquals
	if suffix != "" {
		op = shorthandOperator(suffix)
	} else if len(splitCSV(firstOrJoin(raw))) > 1 {
		// Bare `filter.<attr>=v[,v…]` grammar: a single value is EQUALS,
		// more than one is IN.
		op = query.OpIn
	}
	arity, ok := query.ArityOf(op)
	if !ok {
		return query.Filter{}, queryerr.Newf(queryerr.CodeValidationErr, "unknown filter operator %q", suffix)
	}

	f := query.Filter{Attribute: attrName, Operator: op}
	switch arity {
	case query.ArityZero:
		// no value to coerce
	case query.ArityTwo:
		vals := strings.SplitN(firstOrJoin(raw), ",", 2)
		if len(vals) != 2 {
			return query.Filter{}, queryerr.Newf(queryerr.CodeValidationErr,
				"filter.%s.%s requires two comma-separated values for BETWEEN", attrName, suffix)
		}
		lo, err := coerceOrHeuristic(kind, vals[0])
		if err != nil {
			return query.Filter{}, err
		}
		hi, err := coerceOrHeuristic(kind, vals[1])
		if err != nil {
			return query.Filter{}, err
		}
		f.Value, f.Value2 = lo, hi
	case query.ArityMany:
		for _, part := range splitCSV(firstOrJoin(raw)) {
			v, err := coerceOrHeuristic(kind, part)
			if err != nil {
				return query.Filter{}, err
			}
			f.Values = append(f.Values, v)
		}
	default:
		v, err := coerceOrHeuristic(kind, firstOrJoin(raw))
		if err != nil {
			return query.Filter{}, err
		}
		f.Value = v
	}
	return f, nil
}

// shorthandOperator maps the URL operator shortcuts
// (eq,ne,gt,gte,lt,lte,like,notlike,in,notin,between,null,notnull,
// contains,startswith,endswith) onto the engine's FilterOperator
// constants. An unrecognized shortcut is passed through uppercased so
// the caller's arity check still rejects it as unknown.
func shorthandOperator(shortcut string) query.FilterOperator {
	switch strings.ToLower(shortcut) {
	case "eq":
		return query.OpEquals
	case "ne":
		return query.OpNotEquals
	case "gt":
		return query.OpGT
	case "gte":
		return query.OpGTE
	case "lt":
		return query.OpLT
	case "lte":
		return query.OpLTE
	case "like":
		return query.OpLike
	case "notlike":
		return query.OpNotLike
	case "in":
		return query.OpIn
	case "notin":
		return query.OpNotIn
	case "between":
		return query.OpBetween
	case "null":
		return query.OpIsNull
	case "notnull":
		return query.OpIsNotNull
	case "contains":
		return query.OpContains
	case "startswith":
		return query.OpStartsWith
	case "endswith":
		return query.OpEndsWith
	default:
		return query.FilterOperator(strings.ToUpper(shortcut))
	}
}

// splitCSV splits a comma-separated value list, trimming whitespace and
// dropping empty segments.
func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func coerceOrHeuristic(kind types.Kind, raw string) (interface{}, error) {
	if kind != "" {
		return types.Coerce(kind, raw)
	}
	return types.ParseHeuristic(raw), nil
}

func firstOrJoin(raw []string) string {
	if len(raw) == 0 {
		return ""
	}
	if len(raw) == 1 {
		return raw[0]
	}
	return strings.Join(raw, ",")
}
