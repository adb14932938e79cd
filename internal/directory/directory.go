package directory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carraway/dossier/internal/canonical"
)

// Person is one known-identity record: a display name plus the canonical
// email and phone aliases it answers to. Exactly one person may be marked
// as "me".
type Person struct {
	ID        string
	Name      string
	IsMe      bool
	Emails    []string // canonical keys, primary first
	Phones    []string // canonical keys
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrimaryEmail returns the person's primary email, or "" if none recorded.
func (p Person) PrimaryEmail() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0]
}

// All returns every person in the directory with their aliases, ordered by
// name. Resolution passes must read the directory through this accessor
// rather than reusing snapshots cached from a prior pass.
func All(db *sql.DB) ([]Person, error) {
	rows, err := db.Query(`
		SELECT id, name, is_me, created_at, updated_at
		FROM people
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		var p Person
		var isMe int
		var createdAt, updatedAt int64
		if err := rows.Scan(&p.ID, &p.Name, &isMe, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		p.IsMe = isMe == 1
		p.CreatedAt = time.Unix(createdAt, 0)
		p.UpdatedAt = time.Unix(updatedAt, 0)
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating people: %w", err)
	}

	for i := range people {
		if err := loadAliases(db, &people[i]); err != nil {
			return nil, err
		}
	}
	return people, nil
}

// Self returns the person marked as "me", or nil if not set.
func Self(db *sql.DB) (*Person, error) {
	var p Person
	var isMe int
	var createdAt, updatedAt int64
	err := db.QueryRow(`
		SELECT id, name, is_me, created_at, updated_at
		FROM people
		WHERE is_me = 1
		LIMIT 1
	`).Scan(&p.ID, &p.Name, &isMe, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get me person: %w", err)
	}
	p.IsMe = true
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	if err := loadAliases(db, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns one person by id, or nil if absent.
func Get(db *sql.DB, id string) (*Person, error) {
	var p Person
	var isMe int
	var createdAt, updatedAt int64
	err := db.QueryRow(`
		SELECT id, name, is_me, created_at, updated_at
		FROM people
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &isMe, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	p.IsMe = isMe == 1
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	if err := loadAliases(db, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func loadAliases(db *sql.DB, p *Person) error {
	rows, err := db.Query(`
		SELECT email FROM person_emails
		WHERE person_id = ?
		ORDER BY is_primary DESC, email
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query person emails: %w", err)
	}
	p.Emails = nil
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan person email: %w", err)
		}
		p.Emails = append(p.Emails, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed iterating person emails: %w", err)
	}
	rows.Close()

	rows, err = db.Query(`
		SELECT phone FROM person_phones
		WHERE person_id = ?
		ORDER BY phone
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query person phones: %w", err)
	}
	defer rows.Close()
	p.Phones = nil
	for rows.Next() {
		var ph string
		if err := rows.Scan(&ph); err != nil {
			return fmt.Errorf("failed to scan person phone: %w", err)
		}
		p.Phones = append(p.Phones, ph)
	}
	return rows.Err()
}

// Create inserts a new person with the given aliases. Emails and phones are
// canonicalized on the way in; empty keys are dropped.
func Create(db *sql.DB, name string, isMe bool, emails, phones []string) (string, error) {
	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if isMe {
		// Only one person may be me; demote any previous holder.
		if _, err := tx.Exec(`UPDATE people SET is_me = 0 WHERE is_me = 1`); err != nil {
			return "", fmt.Errorf("failed to clear previous me person: %w", err)
		}
	}

	id := uuid.New().String()
	now := time.Now().Unix()
	me := 0
	if isMe {
		me = 1
	}
	_, err = tx.Exec(`
		INSERT INTO people (id, name, is_me, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, me, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create person: %w", err)
	}

	for i, e := range emails {
		key := canonical.Email(e)
		if key == "" {
			continue
		}
		primary := 0
		if i == 0 {
			primary = 1
		}
		_, err := tx.Exec(`
			INSERT INTO person_emails (person_id, email, is_primary)
			VALUES (?, ?, ?)
			ON CONFLICT(person_id, email) DO NOTHING
		`, id, key, primary)
		if err != nil {
			return "", fmt.Errorf("failed to add email: %w", err)
		}
	}
	for _, ph := range phones {
		key := canonical.Phone(ph)
		if key == "" {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO person_phones (person_id, phone)
			VALUES (?, ?)
			ON CONFLICT(person_id, phone) DO NOTHING
		`, id, key)
		if err != nil {
			return "", fmt.Errorf("failed to add phone: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// AddEmail adds a canonicalized email alias to an existing person.
func AddEmail(db *sql.DB, personID, email string) error {
	key := canonical.Email(email)
	if key == "" {
		return fmt.Errorf("empty email")
	}
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO person_emails (person_id, email, is_primary)
		VALUES (?, ?, 0)
		ON CONFLICT(person_id, email) DO NOTHING
	`, personID, key)
	if err != nil {
		return fmt.Errorf("failed to add email: %w", err)
	}
	_, err = db.Exec(`UPDATE people SET updated_at = ? WHERE id = ?`, now, personID)
	if err != nil {
		return fmt.Errorf("failed to touch person: %w", err)
	}
	return nil
}

// AddPhone adds a canonicalized phone alias to an existing person.
func AddPhone(db *sql.DB, personID, phone string) error {
	key := canonical.Phone(phone)
	if key == "" {
		return fmt.Errorf("phone has fewer than 7 digits")
	}
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO person_phones (person_id, phone)
		VALUES (?, ?)
		ON CONFLICT(person_id, phone) DO NOTHING
	`, personID, key)
	if err != nil {
		return fmt.Errorf("failed to add phone: %w", err)
	}
	_, err = db.Exec(`UPDATE people SET updated_at = ? WHERE id = ?`, now, personID)
	if err != nil {
		return fmt.Errorf("failed to touch person: %w", err)
	}
	return nil
}

// Remove deletes a person and their aliases.
func Remove(db *sql.DB, personID string) error {
	res, err := db.Exec(`DELETE FROM people WHERE id = ?`, personID)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("person not found")
	}
	return nil
}

// GetByName finds a person by exact name match, or nil if absent.
func GetByName(db *sql.DB, name string) (*Person, error) {
	var id string
	err := db.QueryRow(`SELECT id FROM people WHERE name = ? LIMIT 1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query person by name: %w", err)
	}
	return Get(db, id)
}

// SetSelf creates or updates the "me" person with the given name and aliases.
func SetSelf(db *sql.DB, name string, emails, phones []string) (string, error) {
	existing, err := Self(db)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return Create(db, name, true, emails, phones)
	}

	now := time.Now().Unix()
	if name != "" {
		if _, err := db.Exec(`UPDATE people SET name = ?, updated_at = ? WHERE id = ?`, name, now, existing.ID); err != nil {
			return "", fmt.Errorf("failed to update me person: %w", err)
		}
	}
	for _, e := range emails {
		if canonical.Email(e) == "" {
			continue
		}
		if err := AddEmail(db, existing.ID, e); err != nil {
			return "", err
		}
	}
	for _, ph := range phones {
		if canonical.Phone(ph) == "" {
			continue
		}
		if err := AddPhone(db, existing.ID, ph); err != nil {
			return "", err
		}
	}
	return existing.ID, nil
}
