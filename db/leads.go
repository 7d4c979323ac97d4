// ABOUTME: Lead database operations and the autopilot lead store
// ABOUTME: Field-level updates are serialized per lead and guarded by an optimistic version
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/models"
)

const leadColumns = `id, name, email, phone, location, temperature, tags, product_interest, premium,
	conversion_probability, last_interaction_summary, last_interaction_date, next_follow_up_at,
	notes, assigned_to, version, created_at, updated_at`

// LeadFilter narrows ListLeads. Zero values match everything.
type LeadFilter struct {
	Query       string
	Temperature string
	AssignedTo  string
	Tag         string
	Limit       int
}

func CreateLead(ctx context.Context, db *sql.DB, lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Temperature == "" {
		lead.Temperature = models.TemperatureWarm
	}
	if err := validateTemperature(lead.Temperature); err != nil {
		return err
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	lead.Version = 1

	tags, products, err := encodeLists(lead)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, lead.ID, lead.Name, lead.Email, lead.Phone, lead.Location, lead.Temperature, tags, products,
		lead.Premium, lead.ConversionProbability, lead.LastInteractionSummary, lead.LastInteractionDate,
		lead.NextFollowUpAt, lead.Notes, lead.AssignedTo, lead.Version, lead.CreatedAt, lead.UpdatedAt)
	if err != nil {
		return storeErr(fmt.Errorf("failed to insert lead %s: %w", lead.ID, err))
	}
	return nil
}

func GetLead(ctx context.Context, db *sql.DB, id string) (*models.Lead, error) {
	row := db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLeadNotFound, id)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return lead, nil
}

func ListLeads(ctx context.Context, db *sql.DB, filter LeadFilter) ([]models.Lead, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var where []string
	var args []any
	if filter.Query != "" {
		pattern := "%" + strings.ToLower(filter.Query) + "%"
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(location) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	if filter.Temperature != "" {
		where = append(where, "temperature = ?")
		args = append(args, filter.Temperature)
	}
	if filter.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(leads.tags) WHERE json_each.value = ?)")
		args = append(args, filter.Tag)
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY conversion_probability DESC, name ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() { _ = rows.Close() }()

	var leads []models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *lead)
	}
	return leads, rows.Err()
}

// ImportLeads inserts leads in one transaction, replacing rows with the same id.
func ImportLeads(ctx context.Context, db *sql.DB, leads []models.Lead) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for i := range leads {
		lead := &leads[i]
		if lead.ID == "" {
			lead.ID = uuid.New().String()
		}
		if lead.Temperature == "" {
			lead.Temperature = models.TemperatureWarm
		}
		if err := validateTemperature(lead.Temperature); err != nil {
			return 0, fmt.Errorf("lead %s: %w", lead.ID, err)
		}
		if lead.CreatedAt.IsZero() {
			lead.CreatedAt = now
		}
		lead.UpdatedAt = now
		lead.Version = 1

		tags, products, err := encodeLists(lead)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO leads (`+leadColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, lead.ID, lead.Name, lead.Email, lead.Phone, lead.Location, lead.Temperature, tags, products,
			lead.Premium, lead.ConversionProbability, lead.LastInteractionSummary, lead.LastInteractionDate,
			lead.NextFollowUpAt, lead.Notes, lead.AssignedTo, lead.Version, lead.CreatedAt, lead.UpdatedAt)
		if err != nil {
			return 0, storeErr(fmt.Errorf("failed to import lead %s: %w", lead.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storeErr(err)
	}
	return len(leads), nil
}

// UpdateLead writes every mutable column of lead if the stored version still
// matches lead.Version, then bumps the version.
func UpdateLead(ctx context.Context, db *sql.DB, lead *models.Lead) error {
	tags, products, err := encodeLists(lead)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	res, err := db.ExecContext(ctx, `
		UPDATE leads SET
			name = ?, email = ?, phone = ?, location = ?, temperature = ?, tags = ?,
			product_interest = ?, premium = ?, conversion_probability = ?,
			last_interaction_summary = ?, last_interaction_date = ?, next_follow_up_at = ?,
			notes = ?, assigned_to = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, lead.Name, lead.Email, lead.Phone, lead.Location, lead.Temperature, tags,
		products, lead.Premium, lead.ConversionProbability,
		lead.LastInteractionSummary, lead.LastInteractionDate, lead.NextFollowUpAt,
		lead.Notes, lead.AssignedTo, now, lead.ID, lead.Version)
	if err != nil {
		return storeErr(fmt.Errorf("failed to update lead %s: %w", lead.ID, err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, lead.ID, lead.Version)
	}
	lead.Version++
	lead.UpdatedAt = now
	return nil
}

// ApplyLeadFields sets the named fields on lead. Keys use the JSON names of
// models.Lead; "tag" appends a single tag.
func ApplyLeadFields(lead *models.Lead, fields map[string]any) error {
	for key, value := range fields {
		var err error
		switch key {
		case "name":
			lead.Name, err = asString(key, value)
		case "email":
			lead.Email, err = asString(key, value)
		case "phone":
			lead.Phone, err = asString(key, value)
		case "location":
			lead.Location, err = asString(key, value)
		case "notes":
			lead.Notes, err = asString(key, value)
		case "assignedTo":
			lead.AssignedTo, err = asString(key, value)
		case "lastInteractionSummary":
			lead.LastInteractionSummary, err = asString(key, value)
		case "temperature":
			var t string
			if t, err = asString(key, value); err == nil {
				err = validateTemperature(t)
				lead.Temperature = t
			}
		case "tags":
			lead.Tags, err = asStrings(key, value)
		case "tag":
			var tag string
			if tag, err = asString(key, value); err == nil && tag != "" && !lead.HasTag(tag) {
				lead.Tags = append(lead.Tags, tag)
			}
		case "productInterest":
			lead.ProductInterest, err = asStrings(key, value)
		case "premium":
			lead.Premium, err = asFloat(key, value)
		case "conversionProbability":
			lead.ConversionProbability, err = asFloat(key, value)
		case "lastInteractionDate":
			lead.LastInteractionDate, err = asTime(key, value)
		case "nextFollowUpAt":
			lead.NextFollowUpAt, err = asTime(key, value)
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// LeadStore serves the autopilot. Writes to one lead are serialized in
// process; the version check catches writers in other processes.
type LeadStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*leadLock
}

type leadLock struct {
	mu   sync.Mutex
	refs int
}

var _ autopilot.LeadStore = (*LeadStore)(nil)

func NewLeadStore(db *sql.DB) *LeadStore {
	return &LeadStore{db: db, locks: make(map[string]*leadLock)}
}

func (s *LeadStore) Get(ctx context.Context, id string) (*models.Lead, error) {
	return GetLead(ctx, s.db, id)
}

func (s *LeadStore) List(ctx context.Context, filter LeadFilter) ([]models.Lead, error) {
	return ListLeads(ctx, s.db, filter)
}

func (s *LeadStore) Create(ctx context.Context, lead *models.Lead) error {
	return CreateLead(ctx, s.db, lead)
}

func (s *LeadStore) Import(ctx context.Context, leads []models.Lead) (int, error) {
	return ImportLeads(ctx, s.db, leads)
}

// Update applies fields to the lead and returns the stored result.
func (s *LeadStore) Update(ctx context.Context, id string, fields map[string]any, info models.UpdateInfo) (*models.Lead, error) {
	unlock := s.lock(id)
	defer unlock()

	lead, err := GetLead(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := ApplyLeadFields(lead, fields); err != nil {
		return nil, err
	}
	if err := UpdateLead(ctx, s.db, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *LeadStore) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &leadLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var lead models.Lead
	var email, phone, location, summary, notes, assignedTo sql.NullString
	var tags, products string

	err := row.Scan(
		&lead.ID, &lead.Name, &email, &phone, &location, &lead.Temperature, &tags, &products,
		&lead.Premium, &lead.ConversionProbability, &summary, &lead.LastInteractionDate,
		&lead.NextFollowUpAt, &notes, &assignedTo, &lead.Version, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lead.Email = email.String
	lead.Phone = phone.String
	lead.Location = location.String
	lead.LastInteractionSummary = summary.String
	lead.Notes = notes.String
	lead.AssignedTo = assignedTo.String

	if err := json.Unmarshal([]byte(tags), &lead.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for lead %s: %w", lead.ID, err)
	}
	if err := json.Unmarshal([]byte(products), &lead.ProductInterest); err != nil {
		return nil, fmt.Errorf("failed to decode product interest for lead %s: %w", lead.ID, err)
	}
	return &lead, nil
}

func encodeLists(lead *models.Lead) (string, string, error) {
	tags := lead.Tags
	if tags == nil {
		tags = []string{}
	}
	products := lead.ProductInterest
	if products == nil {
		products = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", "", err
	}
	productsJSON, err := json.Marshal(products)
	if err != nil {
		return "", "", err
	}
	return string(tagsJSON), string(productsJSON), nil
}

func validateTemperature(t string) error {
	switch t {
	case models.TemperatureHot, models.TemperatureWarm, models.TemperatureCold:
		return nil
	}
	return fmt.Errorf("%w: temperature must be hot, warm or cold, got %q", ErrInvalidValue, t)
}

func asString(key string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("%w: %s must be a string", ErrInvalidValue, key)
}

func asStrings(key string, v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a list of strings", ErrInvalidValue, key)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		for _, part := range strings.Split(list, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case nil:
		return []string{}, nil
	}
	return nil, fmt.Errorf("%w: %s must be a list of strings", ErrInvalidValue, key)
}

func asFloat(key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidValue, key)
}

func asTime(key string, v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		u := t.UTC()
		return &u, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		u := t.UTC()
		return &u, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				u := parsed.UTC()
				return &u, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s must be an RFC3339 timestamp", ErrInvalidValue, key)
}
