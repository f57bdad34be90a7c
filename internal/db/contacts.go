package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ldi/taskdesk/pkg/models"
)

const contactColumns = `ID, NAME, PHONE, EMAIL, ADDRESS, SKILLS, CREATED_AT`

// CreateContact validates and inserts c, setting c.ID.
func (db *DB) CreateContact(ctx context.Context, c *models.Contact) error {
	err := db.withTx(ctx, func(q Queryer) error {
		return db.createContact(ctx, q, c)
	})
	if err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) createContact(ctx context.Context, q Queryer, c *models.Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	phone, _ := strconv.ParseInt(c.Phone, 10, 64)

	var email any
	if c.Email != "" {
		email = c.Email
	}

	query, args := db.bind(`
		INSERT INTO CONTACTS (NAME, PHONE, EMAIL, ADDRESS, SKILLS)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ID`,
		c.Name, phone, email, c.Address, c.Skills)
	_, rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("failed to create contact: no id returned")
	}
	c.ID = asInt64(rows[0][0])
	return nil
}

// ListContacts returns every contact ordered by id.
func (db *DB) ListContacts(ctx context.Context) ([]*models.Contact, error) {
	_, rows, err := db.query(ctx, `SELECT `+contactColumns+` FROM CONTACTS ORDER BY ID`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	contacts := make([]*models.Contact, 0, len(rows))
	for _, r := range rows {
		contacts = append(contacts, contactFromRow(r))
	}
	return contacts, nil
}

// GetContactByName looks a contact up by case-insensitive name. It returns
// nil, nil when no contact matches.
func (db *DB) GetContactByName(ctx context.Context, name string) (*models.Contact, error) {
	var c *models.Contact
	err := db.withConn(ctx, func(conn Conn) error {
		var err error
		c, err = db.getContactByName(ctx, conn, name)
		return err
	})
	return c, err
}

func (db *DB) getContactByName(ctx context.Context, q Queryer, name string) (*models.Contact, error) {
	query, args := db.bind(`
		SELECT `+contactColumns+`
		FROM CONTACTS
		WHERE LOWER(NAME) = LOWER(?)
		ORDER BY ID
		LIMIT 1`, name)
	_, rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact by name: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return contactFromRow(rows[0]), nil
}

func contactFromRow(r []any) *models.Contact {
	return &models.Contact{
		ID:        asInt64(r[0]),
		Name:      asString(r[1]),
		Phone:     strconv.FormatInt(asInt64(r[2]), 10),
		Email:     asString(r[3]),
		Address:   asString(r[4]),
		Skills:    asString(r[5]),
		CreatedAt: asNullTime(r[6]),
	}
}

// query runs a read on a pooled connection, binding args for the dialect.
func (db *DB) query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	var cols []string
	var rows [][]any
	query, args = db.bind(query, args...)
	err := db.withConn(ctx, func(conn Conn) error {
		var err error
		cols, rows, err = conn.Query(ctx, query, args...)
		return err
	})
	return cols, rows, err
}
