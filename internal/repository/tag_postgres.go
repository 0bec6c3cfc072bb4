// internal/repository/tag_postgres.go
//
// Package repository loads TagDeclaration rows from the Postgres-backed
// tabular store (spec §6's column list) and records a write-flush audit
// trail, in the teacher's raw database/sql query style (no ORM).
package repository

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"s7gateway/internal/tag"
)

// TagRepository loads tag declarations and records write outcomes.
type TagRepository struct {
	db *sql.DB
}

// NewTagRepository wraps db.
func NewTagRepository(db *sql.DB) *TagRepository {
	return &TagRepository{db: db}
}

// LoadDeclarations reads every row from plc_tags, in the column order spec
// §6 specifies: id, plc, group, tagpath, name, description, default_value,
// config_monitor, data_type, db_number, byte_offset, bit_index, size.
func (r *TagRepository) LoadDeclarations() ([]tag.Declaration, error) {
	query := `
		SELECT id, plc, "group", tagpath, name, description, default_value,
		       config_monitor, data_type, db_number, byte_offset, bit_index, size
		FROM plc_tags
		ORDER BY id
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("repository: falha ao consultar plc_tags: %w", err)
	}
	defer rows.Close()

	var decls []tag.Declaration
	for rows.Next() {
		var (
			id             int
			plc            string
			group          string
			tagPath        string
			name           string
			description    sql.NullString
			defaultValue   sql.NullString
			configMonitor  bool
			dataType       string
			dbNumber       int
			byteOffset     int
			bitIndex       sql.NullInt64
			size           int
		)

		if err := rows.Scan(
			&id, &plc, &group, &tagPath, &name, &description, &defaultValue,
			&configMonitor, &dataType, &dbNumber, &byteOffset, &bitIndex, &size,
		); err != nil {
			return nil, fmt.Errorf("repository: falha ao ler linha de plc_tags: %w", err)
		}

		kind := tag.Kind(dataType)
		decl := tag.Declaration{
			TagPath:       tagPath,
			PLC:           plc,
			Group:         group,
			Name:          name,
			DBNumber:      dbNumber,
			StartOffset:   byteOffset,
			Size:          size,
			DataType:      kind,
			ConfigMonitor: configMonitor,
		}
		if description.Valid {
			decl.Description = description.String
		}
		if bitIndex.Valid {
			decl.BitIndex = int(bitIndex.Int64)
		}
		if defaultValue.Valid {
			dv, err := parseDefaultValue(kind, defaultValue.String)
			if err != nil {
				return nil, fmt.Errorf("repository: tag %q: %w", tagPath, err)
			}
			decl.DefaultValue = dv
		} else {
			decl.DefaultValue = zeroValue(kind)
		}

		decls = append(decls, decl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: erro ao iterar plc_tags: %w", err)
	}

	return decls, nil
}

func parseDefaultValue(kind tag.Kind, raw string) (interface{}, error) {
	switch kind {
	case tag.Bool:
		return strconv.ParseBool(raw)
	case tag.Int:
		v, err := strconv.ParseInt(raw, 10, 16)
		return int16(v), err
	case tag.DInt:
		v, err := strconv.ParseInt(raw, 10, 32)
		return int32(v), err
	case tag.Real:
		v, err := strconv.ParseFloat(raw, 32)
		return float32(v), err
	case tag.LReal:
		return strconv.ParseFloat(raw, 64)
	case tag.String:
		return raw, nil
	default:
		return nil, fmt.Errorf("tipo de dado desconhecido %q", kind)
	}
}

func zeroValue(kind tag.Kind) interface{} {
	switch kind {
	case tag.Bool:
		return false
	case tag.Int:
		return int16(0)
	case tag.DInt:
		return int32(0)
	case tag.Real:
		return float32(0)
	case tag.LReal:
		return float64(0)
	case tag.String:
		return ""
	default:
		return nil
	}
}

// RecordWrite appends one row to the write-flush audit trail. This table
// is informational only — spec.md's Non-goals forbid persisting tag
// *values* across restart, so this is history of write attempts, not a
// cache the gateway reads back from on startup.
func (r *TagRepository) RecordWrite(tagPath string, value interface{}, success bool, occurredAt time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO tag_write_audit (tag_path, value, success, occurred_at) VALUES ($1, $2, $3, $4)`,
		tagPath, fmt.Sprintf("%v", value), success, occurredAt,
	)
	if err != nil {
		return fmt.Errorf("repository: falha ao registrar auditoria de escrita para %q: %w", tagPath, err)
	}
	return nil
}
