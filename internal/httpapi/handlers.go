package httpapi

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/pipeline"
	"github.com/queryreg/engine/internal/query"
	"github.com/queryreg/engine/internal/queryerr"
	"github.com/queryreg/engine/internal/types"
)

// Server is the shared dependency set every HTTP handler closes over:
// the registry, the live connection pool, the configured dialect, and
// the REST paging bounds.
type Server struct {
	Registry        *query.Registry
	DB              *sql.DB
	Dialect         dialect.Dialect
	Logger          *zap.Logger
	DefaultPageSize int
	MaxPageSize     int
}

func (s *Server) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// HandleQuery serves GET/POST /api/query/{name}.
func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	def, err := s.Registry.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}

	var parsed *ParsedRequest
	if r.Method == http.MethodPost {
		var body PostBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, queryerr.Wrap(queryerr.CodeValidationErr, "parsing request body", err).WithQuery(name))
			return
		}
		parsed, err = ParsePostBody(def, &body, s.DefaultPageSize, s.MaxPageSize)
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, queryerr.Wrap(queryerr.CodeValidationErr, "parsing request", err).WithQuery(name))
			return
		}
		parsed, err = ParseRequest(def, r.Form, s.DefaultPageSize, s.MaxPageSize)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := query.NewContext(def)
	ctx.Logger = s.logger()
	ctx.Params = parsed.Params
	ctx.Filters = parsed.Filters
	ctx.Sorts = parsed.Sorts
	ctx.Pagination = parsed.Pagination
	ctx.SelectedAttributes = parsed.SelectedFields
	ctx.IncludeMetadata = parsed.Meta != MetaNone

	result, err := pipeline.Execute(r.Context(), s.DB, def, ctx, s.Dialect)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Ctx.CountError != nil {
		s.logger().Warn("count query degraded to zero", zap.String("query", name), zap.Error(result.Ctx.CountError))
	}

	if parsed.Single {
		record, err := FirstRecord(def, result.Rows)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
		return
	}

	writeJSON(w, http.StatusOK, BuildEnvelope(def, result.Rows, result.Ctx, parsed.Meta))
}

// HandleMetadata serves GET /api/query/{name}/metadata.
func (s *Server) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	def, err := s.Registry.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BuildMetadataInfo(def))
}

// HandleExport serves GET /api/query/{name}/export/{format}, currently
// supporting "csv"; it writes rows batch by batch as pipeline.ExecuteStream
// hands them over. A definition with aggregate calculators or
// post-processors is buffered in full by ExecuteStream before the first
// batch arrives.
func (s *Server) HandleExport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, format := vars["name"], vars["format"]
	if format != "csv" {
		writeError(w, queryerr.Newf(queryerr.CodeValidationErr, "unsupported export format %q", format).WithQuery(name))
		return
	}

	def, err := s.Registry.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, queryerr.Wrap(queryerr.CodeValidationErr, "parsing request", err).WithQuery(name))
		return
	}
	parsed, err := ParseRequest(def, r.Form, s.DefaultPageSize, s.MaxPageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := query.NewContext(def)
	ctx.Logger = s.logger()
	ctx.Params = parsed.Params
	ctx.Filters = parsed.Filters
	ctx.Sorts = parsed.Sorts
	ctx.Pagination = nil // export ignores pagination and streams every matching row
	ctx.SelectedAttributes = parsed.SelectedFields

	header := ctx.SelectedAttributes
	if header == nil {
		header = def.DefaultProjection()
	}

	cw := csv.NewWriter(w)
	// The CSV header (and the 200 status with it) is withheld until the
	// first batch arrives, so a validation or assembly failure can still
	// surface as a proper error response.
	headerWritten := false
	writeHeader := func() error {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+name+".csv\"")
		headerWritten = true
		return cw.Write(header)
	}

	err = pipeline.ExecuteStream(r.Context(), s.DB, def, ctx, s.Dialect, func(batch []*query.Row) error {
		if !headerWritten {
			if err := writeHeader(); err != nil {
				return err
			}
		}
		for _, row := range batch {
			record := make([]string, len(header))
			for i, attr := range header {
				v, _ := row.Get(attr)
				record[i] = csvCell(v)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		if !headerWritten {
			writeError(w, err)
			return
		}
		// Mid-stream failure: the response is already committed as CSV, so
		// all that is left is to stop and log.
		s.logger().Warn("csv export aborted mid-stream", zap.String("query", name), zap.Error(err))
		return
	}
	if !headerWritten {
		if err := writeHeader(); err != nil {
			s.logger().Warn("csv export: writing header", zap.Error(err))
			return
		}
	}
	cw.Flush()
}

// SelectItem is one Select/LOV option served by GET /api/select/{name}.
type SelectItem struct {
	Value     interface{}            `json:"value"`
	Label     interface{}            `json:"label"`
	Additions map[string]interface{} `json:"additions,omitempty"`
}

// HandleSelect serves GET /api/select/{name}, the Select/LOV shorthand
// requiring `value`/`label` attributes: `id=` filters to a multi-valued
// IN on `value`; `search=` maps to a declared `search` parameter if one
// exists, else a contains filter on `label`.
func (s *Server) HandleSelect(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	def, err := s.Registry.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, ok := def.Attributes["value"]; !ok {
		writeError(w, queryerr.Newf(queryerr.CodeDefinitionErr, "query %q has no value attribute for the select shorthand", name).WithQuery(name))
		return
	}
	if _, ok := def.Attributes["label"]; !ok {
		writeError(w, queryerr.Newf(queryerr.CodeDefinitionErr, "query %q has no label attribute for the select shorthand", name).WithQuery(name))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, queryerr.Wrap(queryerr.CodeValidationErr, "parsing request", err).WithQuery(name))
		return
	}

	ctx := query.NewContext(def)
	ctx.Logger = s.logger()
	ctx.Params = make(map[string]interface{})
	ctx.Pagination = nil

	if ids := r.Form["id"]; len(ids) > 0 {
		values := splitCSV(firstOrJoin(ids))
		valueAttr := def.Attributes["value"]
		kind := valueAttr.Type
		filter := query.Filter{Attribute: "value", Operator: query.OpIn}
		for _, raw := range values {
			v, err := types.Coerce(kind, raw)
			if err != nil {
				writeError(w, err)
				return
			}
			filter.Values = append(filter.Values, v)
		}
		ctx.Filters = append(ctx.Filters, filter)
	}

	if search := r.Form.Get("search"); search != "" {
		if _, declared := def.Params["search"]; declared {
			ctx.Params["search"] = search
		} else {
			ctx.Filters = append(ctx.Filters, query.Filter{
				Attribute: "label", Operator: query.OpContains, Value: search,
			})
		}
	}

	result, err := pipeline.Execute(r.Context(), s.DB, def, ctx, s.Dialect)
	if err != nil {
		writeError(w, err)
		return
	}

	additionAttrs := make([]string, 0, len(def.AttributeOrder))
	for _, attrName := range def.AttributeOrder {
		if attrName != "value" && attrName != "label" {
			additionAttrs = append(additionAttrs, attrName)
		}
	}

	options := make([]SelectItem, 0, len(result.Rows))
	for _, row := range result.Rows {
		v, _ := row.Get("value")
		l, _ := row.Get("label")
		item := SelectItem{Value: v, Label: l}
		for _, attrName := range additionAttrs {
			if av, ok := row.Get(attrName); ok {
				if item.Additions == nil {
					item.Additions = make(map[string]interface{})
				}
				item.Additions[attrName] = av
			}
		}
		options = append(options, item)
	}
	writeJSON(w, http.StatusOK, options)
}

func csvCell(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
