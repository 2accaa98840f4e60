// Package google stores the ledger tables in worksheets of a Google
// spreadsheet through the Sheets API v4.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"gastos/internal/core"
	ports "gastos/internal/sheets"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const medium = "sheets"

// Config locates the spreadsheet and the credentials used to reach it.
type Config struct {
	// Spreadsheet is the full spreadsheet URL or its bare ID.
	Spreadsheet string
	// CredentialsFile and CredentialsJSON hold a service account key; the
	// inline JSON wins when both are set.
	CredentialsFile string
	CredentialsJSON string
	// Worksheets maps logical table names to worksheet titles. Tables not
	// listed use their logical name.
	Worksheets map[string]string
}

// layout is what the client remembers about a worksheet between calls.
type layout struct {
	header []string
	rows   int // value rows including the header
}

type Client struct {
	svc            *gsheet.Service
	spreadsheetID  string
	serviceAccount string
	worksheets     map[string]string

	mu      sync.Mutex
	known   map[string]bool // worksheet titles present in the spreadsheet
	layouts map[string]layout
}

var (
	_ ports.Medium      = (*Client)(nil)
	_ ports.RowAppender = (*Client)(nil)
)

var spreadsheetURL = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// SpreadsheetID extracts the spreadsheet ID from a URL, or returns the input
// trimmed when it is already an ID.
func SpreadsheetID(urlOrID string) string {
	s := strings.TrimSpace(urlOrID)
	if m := spreadsheetURL.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// NewClient builds a Sheets client and verifies the spreadsheet is reachable.
// Extra options are appended after the credential options; tests use them to
// point the client at a fake endpoint.
func NewClient(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	id := SpreadsheetID(cfg.Spreadsheet)
	if id == "" {
		return nil, core.NewBackingStoreError(medium, "locate spreadsheet", "GOOGLE_SPREADSHEET", core.ErrMissingResource)
	}

	var (
		clientOpts []goption.ClientOption
		email      string
	)
	credJSON, source, err := loadCredentials(cfg)
	switch {
	case err != nil:
		return nil, err
	case credJSON != nil:
		creds, err := oauthgoogle.CredentialsFromJSON(ctx, credJSON, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, core.NewBackingStoreError(medium, "parse credentials", source, err)
		}
		email = serviceAccountEmail(credJSON)
		hc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling()), creds.TokenSource)
		clientOpts = append(clientOpts, goption.WithHTTPClient(hc))
	case len(opts) == 0:
		return nil, core.NewBackingStoreError(medium, "load credentials", "GOOGLE_CREDENTIALS_FILE", core.ErrMissingCredentials)
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, core.NewBackingStoreError(medium, "create service", id, err)
	}

	c := &Client{
		svc:            svc,
		spreadsheetID:  id,
		serviceAccount: email,
		worksheets:     map[string]string{},
		known:          map[string]bool{},
		layouts:        map[string]layout{},
	}
	for _, name := range ports.TableNames() {
		c.worksheets[name] = name
	}
	for name, title := range cfg.Worksheets {
		if strings.TrimSpace(title) != "" {
			c.worksheets[name] = strings.TrimSpace(title)
		}
	}

	if err := c.refreshWorksheets(ctx); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Google Sheets client ready",
		"spreadsheet_id", id,
		"service_account", email,
		"worksheets", len(c.known))
	return c, nil
}

// ServiceAccount returns the e-mail that must have editor access.
func (c *Client) ServiceAccount() string { return c.serviceAccount }

func loadCredentials(cfg Config) ([]byte, string, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), "GOOGLE_CREDENTIALS_JSON", nil
	}
	path := strings.TrimSpace(cfg.CredentialsFile)
	if path == "" {
		return nil, "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, core.NewBackingStoreError(medium, "read credentials", path,
			fmt.Errorf("%w: %v", core.ErrMissingCredentials, err))
	}
	return data, path, nil
}

func serviceAccountEmail(credJSON []byte) string {
	var key struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(credJSON, &key); err != nil {
		return ""
	}
	return key.ClientEmail
}

// newHTTPClientWithPooling is the base transport under the OAuth2 client.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

func (c *Client) refreshWorksheets(ctx context.Context) error {
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("spreadsheetId", "properties.title", "sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return c.wrap("open spreadsheet", c.spreadsheetID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known = map[string]bool{}
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			c.known[sh.Properties.Title] = true
		}
	}
	return nil
}

func (c *Client) title(name string) string {
	if t, ok := c.worksheets[name]; ok {
		return t
	}
	return name
}

func (c *Client) ReadTable(ctx context.Context, name string) (ports.Table, error) {
	schema, err := ports.Lookup(name)
	if err != nil {
		return ports.Table{}, err
	}
	title := c.title(name)

	c.mu.Lock()
	defer c.mu.Unlock()

	values, err := c.readValues(ctx, title)
	if err != nil {
		return ports.Table{}, err
	}
	if len(values) == 0 {
		return schema.Empty(), nil
	}
	records := make([][]string, 0, len(values)-1)
	for _, row := range values[1:] {
		records = append(records, toStrings(row))
	}
	return schema.Decode(toStrings(values[0]), records), nil
}

// WriteTable overwrites the worksheet in a single values update. Cells left
// over from a longer or wider previous table are blanked in the same call.
func (c *Client) WriteTable(ctx context.Context, name string, rows []ports.Row) error {
	schema, err := ports.Lookup(name)
	if err != nil {
		return err
	}
	title := c.title(name)

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, err := c.layout(ctx, title)
	if err != nil {
		return err
	}

	width := len(schema.Columns)
	if len(prev.header) > width {
		width = len(prev.header)
	}
	height := len(rows) + 1
	if prev.rows > height {
		height = prev.rows
	}

	values := make([][]any, 0, height)
	values = append(values, pad(stringsToCells(schema.Columns), width))
	for _, r := range rows {
		values = append(values, pad(encodeCells(schema, r, schema.Columns), width))
	}
	for len(values) < height {
		values = append(values, pad(nil, width))
	}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1(title), &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		delete(c.layouts, title)
		return c.wrap("write", title, err)
	}
	c.layouts[title] = layout{header: append([]string(nil), schema.Columns...), rows: len(rows) + 1}

	slog.DebugContext(ctx, "Overwrote worksheet", "sheet", title, "rows", len(rows), "cleared_rows", height-len(rows)-1)
	return nil
}

// AppendRow inserts one row after the last one, in the worksheet's header
// order. An empty worksheet gets the schema header first.
func (c *Client) AppendRow(ctx context.Context, name string, row ports.Row) error {
	schema, err := ports.Lookup(name)
	if err != nil {
		return err
	}
	title := c.title(name)

	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.layout(ctx, title)
	if err != nil {
		return err
	}

	if l.header == nil {
		values := [][]any{stringsToCells(schema.Columns), encodeCells(schema, row, schema.Columns)}
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1(title), &gsheet.ValueRange{Values: values}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			delete(c.layouts, title)
			return c.wrap("write", title, err)
		}
		c.layouts[title] = layout{header: append([]string(nil), schema.Columns...), rows: 2}
		return nil
	}

	order := make([]string, len(l.header))
	for i, h := range l.header {
		order[i] = ports.CanonicalColumn(h)
	}
	vr := &gsheet.ValueRange{Values: [][]any{encodeCells(schema, row, order)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1(title), vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		delete(c.layouts, title)
		return c.wrap("append", title, err)
	}
	l.rows++
	c.layouts[title] = l
	slog.DebugContext(ctx, "Appended row", "sheet", title, "rows", l.rows)
	return nil
}

// InvalidateLayout drops every remembered worksheet layout.
func (c *Client) InvalidateLayout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layouts = map[string]layout{}
}

// layout returns the cached layout of a worksheet, reading it when unknown.
// Callers hold c.mu.
func (c *Client) layout(ctx context.Context, title string) (layout, error) {
	if l, ok := c.layouts[title]; ok {
		return l, nil
	}
	if _, err := c.readValues(ctx, title); err != nil {
		return layout{}, err
	}
	return c.layouts[title], nil
}

// readValues fetches all values of a worksheet, creating the worksheet when it
// does not exist, and refreshes its cached layout. Callers hold c.mu.
func (c *Client) readValues(ctx context.Context, title string) ([][]any, error) {
	if !c.known[title] {
		if err := c.addSheet(ctx, title); err != nil {
			return nil, err
		}
		c.layouts[title] = layout{}
		return nil, nil
	}

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quote(title)).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if isMissingRange(err) {
		// deleted behind our back
		delete(c.known, title)
		return c.readValues(ctx, title)
	}
	if err != nil {
		return nil, c.wrap("read", title, err)
	}

	l := layout{rows: len(resp.Values)}
	if len(resp.Values) > 0 {
		l.header = toStrings(resp.Values[0])
	}
	c.layouts[title] = l
	return resp.Values, nil
}

func (c *Client) addSheet(ctx context.Context, title string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return c.wrap("create worksheet", title, err)
	}
	c.known[title] = true
	slog.InfoContext(ctx, "Created worksheet", "spreadsheet_id", c.spreadsheetID, "sheet", title)
	return nil
}

// wrap turns an API failure into a BackingStoreError, naming the service
// account when the spreadsheet was not shared with it.
func (c *Client) wrap(op, resource string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			err = fmt.Errorf("%w: %v", core.ErrMissingResource, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			if c.serviceAccount != "" {
				err = fmt.Errorf("%w (share the spreadsheet with %s as editor)", err, c.serviceAccount)
			}
		}
	}
	return core.NewBackingStoreError(medium, op, resource, err)
}

func isMissingRange(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest &&
		strings.Contains(gerr.Message, "Unable to parse range")
}

func quote(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func a1(title string) string { return quote(title) + "!A1" }

func encodeCells(schema ports.Schema, row ports.Row, order []string) []any {
	enc := schema.Encode(row, order)
	out := make([]any, len(enc))
	for i, v := range enc {
		out[i] = v
		if schema.Numeric[order[i]] {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				out[i] = f
			}
		}
	}
	return out
}

func stringsToCells(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func pad(row []any, width int) []any {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case nil:
		case string:
			out[i] = strings.TrimSpace(x)
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(x))
		}
	}
	return out
}
