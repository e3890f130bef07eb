package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Recognition logs - one row per Face/Pose/Gesture result
		`CREATE TABLE IF NOT EXISTS recognition_logs (
			id TEXT PRIMARY KEY,
			type_recognition TEXT NOT NULL CHECK(type_recognition IN ('Face', 'Pose', 'Gesture')),
			log_info TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_recognition_logs_created_at ON recognition_logs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_recognition_logs_type ON recognition_logs(type_recognition, created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
