package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that a SQLite document store has the expected layout
// ARCHITECTURAL DISCOVERY: Separate validation component enables deployment
// verification without coupling to the migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every schema check.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateConstraints()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"documents":         "Document storage",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies the documents table columns
func (v *SchemaValidator) ValidateTableStructure() error {
	documentColumns := map[string]string{
		"seq":        "INTEGER",
		"path":       "TEXT",
		"collection": "TEXT",
		"doc_id":     "TEXT",
		"fields":     "TEXT",
		"created_at": "DATETIME",
		"updated_at": "DATETIME",
	}

	if err := v.validateColumns("documents", documentColumns); err != nil {
		return fmt.Errorf("documents table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that the collection scan index exists
// FUNCTIONAL DISCOVERY: Every subscription refresh scans one collection in
// arrival order, so the (collection, seq) index carries the read load
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_documents_collection_seq": "Collection scans in arrival order",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that document paths are unique
func (v *SchemaValidator) ValidateConstraints() error {
	const probe = "__schema_probe__/x"
	insert := `INSERT INTO documents (path, collection, doc_id, fields) VALUES (?, '__schema_probe__', 'x', '{}')`

	if _, err := v.db.Exec(insert, probe); err != nil {
		return fmt.Errorf("failed to insert probe document: %w", err)
	}
	defer func() { _, _ = v.db.Exec("DELETE FROM documents WHERE path = ?", probe) }()

	if _, err := v.db.Exec(insert, probe); err == nil {
		return fmt.Errorf("unique constraint not enforced: documents.path")
	}

	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}

		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
