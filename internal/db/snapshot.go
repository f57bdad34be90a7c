package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ldi/taskdesk/pkg/models"
	"go.uber.org/zap"
)

const snapshotVersion = 1

type snapshotMeta struct {
	RecordType string    `json:"record_type"`
	Version    int       `json:"version"`
	Dialect    Dialect   `json:"dialect"`
	ExportedAt time.Time `json:"exported_at"`
}

type snapshotContact struct {
	RecordType string `json:"record_type"`
	models.Contact
}

type snapshotTask struct {
	RecordType string `json:"record_type"`
	models.Task
}

// EnableAutoSnapshot sets up a hook that exports a snapshot to path after
// every successful write.
func (db *DB) EnableAutoSnapshot(path string) {
	db.SetOnChange(func(ctx context.Context) {
		// Export failures must not fail the write that triggered them.
		if err := db.ExportSnapshot(ctx, path); err != nil {
			db.logger.Warn("auto snapshot failed", zap.String("path", path), zap.Error(err))
		}
	})
}

// ExportSnapshot writes every contact and task as JSONL to path atomically
// using a temporary file.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	contacts, err := db.ListContacts(ctx)
	if err != nil {
		return err
	}
	tasks, err := db.ListTasks(ctx, nil)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	w := bufio.NewWriter(tempFile)
	enc := json.NewEncoder(w)
	records := make([]any, 0, 1+len(contacts)+len(tasks))
	records = append(records, snapshotMeta{
		RecordType: "meta",
		Version:    snapshotVersion,
		Dialect:    db.Dialect(),
		ExportedAt: time.Now().UTC(),
	})
	for _, c := range contacts {
		records = append(records, snapshotContact{RecordType: "contact", Contact: *c})
	}
	for _, t := range tasks {
		records = append(records, snapshotTask{RecordType: "task", Task: *t})
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write snapshot line: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ImportSnapshot reads a JSONL snapshot and inserts the contacts and tasks it
// does not already hold. Contacts are matched by phone, tasks by title and
// assignee; snapshot ids are mapped to local ids so task references survive.
func (db *DB) ImportSnapshot(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	err = db.withTx(ctx, func(q Queryer) error {
		contactIDs := make(map[int64]int64)
		phoneToID := make(map[string]int64)

		_, rows, err := q.Query(ctx, `SELECT ID, PHONE FROM CONTACTS`)
		if err != nil {
			return fmt.Errorf("failed to query contacts: %w", err)
		}
		for _, r := range rows {
			phoneToID[fmt.Sprint(asInt64(r[1]))] = asInt64(r[0])
		}

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var base struct {
				RecordType string `json:"record_type"`
			}
			if err := json.Unmarshal(line, &base); err != nil {
				return fmt.Errorf("failed to unmarshal base record: %w", err)
			}

			switch base.RecordType {
			case "meta":
			case "contact":
				var c models.Contact
				if err := json.Unmarshal(line, &c); err != nil {
					return fmt.Errorf("failed to unmarshal contact: %w", err)
				}
				snapshotID := c.ID
				localID, exists := phoneToID[c.Phone]
				if !exists {
					if err := db.createContact(ctx, q, &c); err != nil {
						return fmt.Errorf("failed to sync contact %s: %w", c.Name, err)
					}
					localID = c.ID
					phoneToID[c.Phone] = localID
				}
				contactIDs[snapshotID] = localID

			case "task":
				var t models.Task
				if err := json.Unmarshal(line, &t); err != nil {
					return fmt.Errorf("failed to unmarshal task: %w", err)
				}
				assignee, ok := contactIDs[t.AssignedTo]
				if !ok {
					return fmt.Errorf("contact not found for task %s: %d", t.Title, t.AssignedTo)
				}
				t.AssignedTo = assignee
				if t.SupportContact != nil {
					if id, ok := contactIDs[*t.SupportContact]; ok {
						t.SupportContact = &id
					} else {
						t.SupportContact = nil
					}
				}

				query, args := db.bind(`SELECT COUNT(*) FROM TASKS WHERE TITLE = ? AND ASSIGNED_TO = ?`, t.Title, t.AssignedTo)
				_, rows, err := q.Query(ctx, query, args...)
				if err != nil {
					return fmt.Errorf("failed to look up task %s: %w", t.Title, err)
				}
				if len(rows) > 0 && asInt64(rows[0][0]) > 0 {
					continue
				}
				if err := db.createTask(ctx, q, &t); err != nil {
					return fmt.Errorf("failed to sync task %s: %w", t.Title, err)
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("scanner error: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}
