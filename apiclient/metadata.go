package apiclient

import (
	"context"
	"fmt"
)

// MetadataObject is the row shape returned by metadata search,
// carrying only the fields workflows actually branch on; anything
// else the platform returns is discarded at the JSON boundary.
type MetadataObject struct {
	GUID   string `json:"metadata_id"`
	Name   string `json:"metadata_name"`
	Type   string `json:"metadata_type"`
	Header struct {
		Description string `json:"description"`
		Owner       string `json:"owner_name"`
	} `json:"metadata_header"`
}

// MetadataSearchPage fetches one page of metadata/search results
// starting at offset, suitable for driving paginate.All directly.
func (c *Client) MetadataSearchPage(ctx context.Context, metadataTypes []string, pattern string, offset, size int) ([]MetadataObject, error) {
	body := map[string]interface{}{
		"record_offset": offset,
		"record_size":   size,
		"metadata": []map[string]interface{}{
			{"type": firstOrEmpty(metadataTypes)},
		},
	}
	if pattern != "" {
		body["pattern"] = pattern
	}
	if len(metadataTypes) > 1 {
		metas := make([]map[string]interface{}, 0, len(metadataTypes))
		for _, t := range metadataTypes {
			metas = append(metas, map[string]interface{}{"type": t})
		}
		body["metadata"] = metas
	}

	var rows []MetadataObject
	if err := c.do(ctx, "POST", pathMetadataSearch, body, &rows, withCache()); err != nil {
		return nil, fmt.Errorf("apiclient: metadata search: %w", err)
	}
	return rows, nil
}

// MetadataSearchByGUID fetches a single object of the given type by
// identifier, the shape FetchMany needs (one object per request,
// never paginated).
func (c *Client) MetadataSearchByGUID(ctx context.Context, objectType, guid string) ([]MetadataObject, error) {
	body := map[string]interface{}{
		"record_offset": 0,
		"record_size":   1,
		"metadata": []map[string]interface{}{
			{"type": objectType, "identifier": guid},
		},
	}

	var rows []MetadataObject
	if err := c.do(ctx, "POST", pathMetadataSearch, body, &rows, withCache()); err != nil {
		return nil, fmt.Errorf("apiclient: metadata search by guid: %w", err)
	}
	return rows, nil
}

// MetadataColumnInfo fetches a logical table's (worksheet's) column
// names and their declared data types, the detail level a data search
// needs to cast its COMPACT-format result rows. It returns the GUID of
// the resolved logical table alongside the column-name-to-type map,
// since guid may itself be an alias that resolves to a different
// canonical GUID.
func (c *Client) MetadataColumnInfo(ctx context.Context, guid string) (logicalTableGUID string, columnTypes map[string]string, err error) {
	body := map[string]interface{}{
		"record_offset":   0,
		"record_size":     1,
		"include_details": true,
		"metadata": []map[string]interface{}{
			{"type": "LOGICAL_TABLE", "identifier": guid},
		},
	}

	var rows []struct {
		Header struct {
			ID string `json:"id"`
		} `json:"metadata_header"`
		Detail struct {
			Columns []struct {
				Header struct {
					Name string `json:"name"`
				} `json:"header"`
				DataType string `json:"dataType"`
			} `json:"columns"`
		} `json:"metadata_detail"`
	}
	if err := c.do(ctx, "POST", pathMetadataSearch, body, &rows, withCache()); err != nil {
		return "", nil, fmt.Errorf("apiclient: metadata column info: %w", err)
	}
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("apiclient: metadata column info: no logical table found for %s", guid)
	}

	columnTypes = make(map[string]string, len(rows[0].Detail.Columns))
	for _, col := range rows[0].Detail.Columns {
		columnTypes[col.Header.Name] = col.DataType
	}
	return rows[0].Header.ID, columnTypes, nil
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// MetadataDelete permanently removes the named objects.
func (c *Client) MetadataDelete(ctx context.Context, guids []string) error {
	body := map[string]interface{}{"metadata": toGUIDRefs(guids)}
	if err := c.do(ctx, "POST", pathMetadataDelete, body, nil); err != nil {
		return fmt.Errorf("apiclient: metadata delete: %w", err)
	}
	return nil
}

func toGUIDRefs(guids []string) []map[string]string {
	refs := make([]map[string]string, len(guids))
	for i, g := range guids {
		refs[i] = map[string]string{"identifier": g}
	}
	return refs
}

// TMLExportRow is one object's exported TML document, or the error
// that prevented exporting it.
type TMLExportRow struct {
	GUID string
	Name string
	Type string
	TML  []byte
	Err  error
}

type tmlExportEnvelope struct {
	Info struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Type   string `json:"type"`
		Status struct {
			Type    string `json:"status_code"`
			Message string `json:"error_message"`
		} `json:"status"`
	} `json:"info"`
	EDoc string `json:"edoc"`
}

// TMLExport exports every guid's TML. A per-object export failure is
// captured in that row's Err rather than aborting the whole call.
func (c *Client) TMLExport(ctx context.Context, guids []string, exportAssociated bool) ([]TMLExportRow, error) {
	body := map[string]interface{}{
		"metadata":             toGUIDRefs(guids),
		"export_associated":    exportAssociated,
		"export_fqn":           true,
	}

	var envelopes []tmlExportEnvelope
	if err := c.do(ctx, "POST", pathTMLExport, body, &envelopes); err != nil {
		return nil, fmt.Errorf("apiclient: tml export: %w", err)
	}

	rows := make([]TMLExportRow, 0, len(envelopes))
	for _, e := range envelopes {
		row := TMLExportRow{GUID: e.Info.ID, Name: e.Info.Name, Type: e.Info.Type}
		if e.Info.Status.Type == "ERROR" {
			row.Err = fmt.Errorf("tml export failed for %s: %s", e.Info.ID, e.Info.Status.Message)
		} else {
			row.TML = []byte(e.EDoc)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ImportPolicy controls how the platform handles TML validation
// failures during import.
type ImportPolicy string

const (
	ImportValidateOnly ImportPolicy = "VALIDATE_ONLY"
	ImportAllOrNone    ImportPolicy = "ALL_OR_NONE"
	ImportPartial      ImportPolicy = "PARTIAL"
)

// TMLImportResult is one imported document's outcome.
type TMLImportResult struct {
	GUID    string
	Name    string
	Type    string
	Status  string
	Message string
}

// TMLImport imports the given TML documents under policy, optionally
// forcing creation of new objects rather than updating matching ones.
func (c *Client) TMLImport(ctx context.Context, tmls [][]byte, policy ImportPolicy, createNew bool) ([]TMLImportResult, error) {
	docs := make([]string, len(tmls))
	for i, t := range tmls {
		if err := ValidateTML(t); err != nil {
			return nil, fmt.Errorf("apiclient: tml import: document %d: %w", i, err)
		}
		docs[i] = string(t)
	}
	body := map[string]interface{}{
		"metadata_tmls":      docs,
		"import_policy":      policy,
		"create_new":         createNew,
	}

	var rows []struct {
		Response struct {
			Header struct {
				IDGUID string `json:"id_guid"`
				Name   string `json:"name"`
			} `json:"header"`
			Type   string `json:"type"`
			Status struct {
				Code    string `json:"status_code"`
				Message string `json:"error_message"`
			} `json:"status"`
		} `json:"response"`
	}
	if err := c.do(ctx, "POST", pathTMLImport, body, &rows); err != nil {
		return nil, fmt.Errorf("apiclient: tml import: %w", err)
	}

	out := make([]TMLImportResult, len(rows))
	for i, r := range rows {
		out[i] = TMLImportResult{
			GUID:    r.Response.Header.IDGUID,
			Name:    r.Response.Header.Name,
			Type:    r.Response.Type,
			Status:  r.Response.Status.Code,
			Message: r.Response.Status.Message,
		}
	}
	return out, nil
}

// TMLImportAsync behaves like TMLImport but returns immediately with a
// ticket ID; the caller polls TMLImportStatus for the result.
func (c *Client) TMLImportAsync(ctx context.Context, tmls [][]byte, policy ImportPolicy, createNew bool) (string, error) {
	docs := make([]string, len(tmls))
	for i, t := range tmls {
		docs[i] = string(t)
	}
	body := map[string]interface{}{
		"metadata_tmls": docs,
		"import_policy": policy,
		"create_new":    createNew,
	}
	var resp struct {
		TicketID string `json:"ticket_id"`
	}
	if err := c.do(ctx, "POST", pathTMLAsyncImport, body, &resp); err != nil {
		return "", fmt.Errorf("apiclient: async tml import: %w", err)
	}
	return resp.TicketID, nil
}

// TMLImportStatus reports on an async import ticket's progress. done
// is false while the platform is still processing it.
func (c *Client) TMLImportStatus(ctx context.Context, ticketID string) (done bool, results []TMLImportResult, err error) {
	var resp struct {
		Status string `json:"status"`
		Rows   []struct {
			GUID    string `json:"guid"`
			Name    string `json:"name"`
			Type    string `json:"type"`
			Status  string `json:"status_code"`
			Message string `json:"error_message"`
		} `json:"import_responses"`
	}
	if decErr := c.do(ctx, "GET", pathTMLAsyncStatus+"?ticket_id="+ticketID, nil, &resp); decErr != nil {
		return false, nil, fmt.Errorf("apiclient: tml import status: %w", decErr)
	}

	if resp.Status == "IN_PROGRESS" || resp.Status == "PENDING" {
		return false, nil, nil
	}

	out := make([]TMLImportResult, len(resp.Rows))
	for i, r := range resp.Rows {
		out[i] = TMLImportResult{GUID: r.GUID, Name: r.Name, Type: r.Type, Status: r.Status, Message: r.Message}
	}
	return true, out, nil
}
