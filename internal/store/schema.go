package store

import "strings"

// schema is written for Postgres; sqlite gets the same statements with its
// column types substituted.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS teachers (
		id             TEXT PRIMARY KEY,
		email          TEXT NOT NULL UNIQUE,
		name           TEXT NOT NULL,
		password_hash  TEXT NOT NULL,
		total_classes  INTEGER NOT NULL DEFAULT 0,
		total_students INTEGER NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		teacher_id     TEXT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		custom_columns JSONB NOT NULL,
		thresholds     JSONB NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_classes_teacher ON classes(teacher_id)`,
	`CREATE TABLE IF NOT EXISTS student_records (
		id         BIGINT NOT NULL,
		class_id   TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		roll_no    TEXT NOT NULL,
		email      TEXT NOT NULL,
		attendance JSONB NOT NULL,
		PRIMARY KEY (class_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id                    TEXT PRIMARY KEY,
		student_id            TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		class_id              TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		student_record_id     BIGINT NOT NULL,
		roll_no               TEXT NOT NULL,
		status                TEXT NOT NULL,
		enrolled_at           TIMESTAMPTZ NOT NULL,
		unenrolled_at         TIMESTAMPTZ,
		re_enrolled_at        TIMESTAMPTZ,
		removed_by_teacher_at TIMESTAMPTZ,
		UNIQUE (student_id, class_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_class_status ON enrollments(class_id, status)`,
	`CREATE TABLE IF NOT EXISTS qr_sessions (
		id                TEXT PRIMARY KEY,
		class_id          TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		teacher_id        TEXT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		current_code      TEXT NOT NULL,
		attendance_date   TEXT NOT NULL,
		rotation_interval INTEGER NOT NULL,
		status            TEXT NOT NULL,
		scanned_records   JSONB NOT NULL,
		started_at        TIMESTAMPTZ NOT NULL,
		code_generated_at TIMESTAMPTZ NOT NULL,
		stopped_at        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_qr_sessions_class_status ON qr_sessions(class_id, status)`,
	`CREATE TABLE IF NOT EXISTS contact_messages (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL,
		subject    TEXT NOT NULL,
		message    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

var sqliteTypes = strings.NewReplacer("JSONB", "TEXT", "TIMESTAMPTZ", "TIMESTAMP")
