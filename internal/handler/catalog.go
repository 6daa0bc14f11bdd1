package handler

import (
	"net/http"

	"connectrpc.com/connect"

	"github.com/atlekbai/lksql/internal/schema"
)

// Handler serves the catalog read-only over REST.
type Handler struct {
	cache *schema.Cache
}

func New(cache *schema.Cache) *Handler {
	return &Handler{cache: cache}
}

// Register mounts the catalog routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tables", h.ListTables)
	mux.HandleFunc("GET /api/tables/{name}", h.GetTable)
}

type tableSummary struct {
	Name      string `json:"name"`
	Schema    string `json:"schema,omitempty"`
	Storage   string `json:"storage"`
	Columns   int    `json:"columns"`
	Container string `json:"container,omitempty"`
}

type columnResponse struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Storage      string `json:"storage"`
	Label        string `json:"label,omitempty"`
	Key          bool   `json:"key,omitempty"`
	Hidden       bool   `json:"hidden,omitempty"`
	Lookup       string `json:"lookup,omitempty"`
	DisplayField string `json:"display_field,omitempty"`
}

type tableResponse struct {
	tableSummary
	Description string           `json:"description,omitempty"`
	ColumnDefs  []columnResponse `json:"column_defs"`
}

func summarize(t *schema.TableDef) tableSummary {
	return tableSummary{
		Name:      t.Name,
		Schema:    t.Schema,
		Storage:   t.TableName(),
		Columns:   len(t.Columns),
		Container: t.ContainerColumn,
	}
}

// ListTables handles GET /api/tables
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables := h.cache.Tables()
	out := make([]tableSummary, len(tables))
	for i, t := range tables {
		out[i] = summarize(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables":      out,
		"total_count": len(out),
	})
}

// GetTable handles GET /api/tables/{name}. The name may be schema-qualified.
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	t, ok := h.cache.Resolve(name)
	if !ok {
		writeError(w, http.StatusNotFound, connect.CodeNotFound, "TABLE_NOT_FOUND",
			"no table resolves from '"+name+"'")
		return
	}

	resp := tableResponse{
		tableSummary: summarize(t),
		Description:  t.Description,
		ColumnDefs:   make([]columnResponse, len(t.Columns)),
	}
	for i := range t.Columns {
		c := &t.Columns[i]
		col := columnResponse{
			Name:         c.Name,
			Type:         string(c.Type),
			Storage:      c.Storage(),
			Label:        c.Label,
			Key:          c.IsKey,
			Hidden:       c.Hidden,
			DisplayField: c.DisplayField,
		}
		if c.FK != nil {
			col.Lookup = c.FK.TargetName()
		}
		resp.ColumnDefs[i] = col
	}
	writeJSON(w, http.StatusOK, resp)
}
