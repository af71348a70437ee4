package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/perfcal/internal/domain/model"
	"github.com/okian/perfcal/pkg/metrics"
)

// GormStore persists through gorm. Rows read for update are locked with
// SELECT ... FOR UPDATE where the dialect supports it, and every update is
// guarded by the row's version column.
type GormStore struct {
	db          *gorm.DB
	driver      string
	autoMigrate bool
}

// NewGormStore wraps an open connection and, unless disabled, migrates the schema.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...GormOption) (*GormStore, error) {
	s := &GormStore{db: db, driver: db.Dialector.Name(), autoMigrate: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.autoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(allRows()...); err != nil {
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}
	return s, nil
}

// OpenPostgres connects to PostgreSQL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a SQLite database. Writers are serialized through a
// single connection, which also keeps ":memory:" databases alive.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

// Open builds the store named by driver: memory, postgres or sqlite.
func Open(ctx context.Context, driver, dsn string, opts ...GormOption) (Store, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "memory", "":
		return NewMemStore(), nil
	case "postgres":
		db, err = OpenPostgres(dsn)
	case "sqlite":
		db, err = OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	return NewGormStore(ctx, db, opts...)
}

// WithinTx implements Store.
func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
	outcome := "commit"
	if err != nil {
		outcome = "rollback"
	}
	metrics.RecordStoreTransaction(s.driver, outcome, time.Since(start).Seconds())
	return err
}

// View implements Store.
func (s *GormStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db, readOnly: true})
	})
}

// Close implements Store.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db       *gorm.DB
	readOnly bool
}

func (t *gormTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "duplicate") || strings.Contains(low, "unique")
}

func createErr(entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		return model.Integrity(entity, id, "conflicts with an existing row")
	}
	return fmt.Errorf("create %s %s: %w", entity, id, err)
}

func readErr(entity, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NotFound(entity, id)
	}
	return fmt.Errorf("read %s %s: %w", entity, id, err)
}

// versioned applies an update guarded by the version column and tells a
// missing row apart from a stale one.
func (t *gormTx) versioned(entity, id, idCol, versionCol string, target, row any, oldVersion int) error {
	res := t.db.Model(target).Where(idCol+" = ? AND "+versionCol+" = ?", id, oldVersion).Select("*").Updates(row)
	if res.Error != nil {
		return fmt.Errorf("update %s %s: %w", entity, id, res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := t.db.Model(target).Where(idCol+" = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("update %s %s: %w", entity, id, err)
		}
		if n == 0 {
			return model.NotFound(entity, id)
		}
		return model.Integrity(entity, id, fmt.Sprintf("stale version %d", oldVersion))
	}
	return nil
}

func (t *gormTx) CreateCycle(c *model.Cycle) error {
	if err := t.writable(); err != nil {
		return err
	}
	row, err := cycleToRow(c)
	if err != nil {
		return err
	}
	return createErr("cycle", c.ID, t.db.Create(row).Error)
}

func (t *gormTx) Cycle(id string) (*model.Cycle, error) {
	var row cycleRow
	if err := t.db.Where("cycle_id = ?", id).Take(&row).Error; err != nil {
		return nil, readErr("cycle", id, err)
	}
	return row.toModel()
}

func (t *gormTx) UpdateCycle(c *model.Cycle) error {
	if err := t.writable(); err != nil {
		return err
	}
	row, err := cycleToRow(c)
	if err != nil {
		return err
	}
	res := t.db.Model(&cycleRow{}).Where("cycle_id = ?", c.ID).Select("*").Updates(row)
	if res.Error != nil {
		return fmt.Errorf("update cycle %s: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NotFound("cycle", c.ID)
	}
	return nil
}

func (t *gormTx) CreateRating(r *model.Rating) error {
	if err := t.writable(); err != nil {
		return err
	}
	row, err := ratingToRow(r)
	if err != nil {
		return err
	}
	return createErr("rating", r.ID, t.db.Create(row).Error)
}

func (t *gormTx) rating(q *gorm.DB, entityID string) (*model.Rating, error) {
	var row ratingRow
	if err := q.Take(&row).Error; err != nil {
		return nil, readErr("rating", entityID, err)
	}
	return row.toModel()
}

func (t *gormTx) Rating(id string) (*model.Rating, error) {
	return t.rating(t.db.Where("rating_id = ?", id), id)
}

func (t *gormTx) LockRating(id string) (*model.Rating, error) {
	return t.rating(t.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("rating_id = ?", id), id)
}

func (t *gormTx) RatingByEmployee(cycleID, employeeID string) (*model.Rating, error) {
	return t.rating(t.db.Where("rating_cycle_id = ? AND rating_employee_id = ?", cycleID, employeeID), enrollKey(cycleID, employeeID))
}

func (t *gormTx) UpdateRating(r *model.Rating) error {
	if err := t.writable(); err != nil {
		return err
	}
	row, err := ratingToRow(r)
	if err != nil {
		return err
	}
	old := r.Version
	row.Version = old + 1
	if err := t.versioned("rating", r.ID, "rating_id", "rating_version", &ratingRow{}, row, old); err != nil {
		return err
	}
	r.Version = old + 1
	return nil
}

func (t *gormTx) Ratings(f RatingFilter) ([]*model.Rating, error) {
	q := t.db.Model(&ratingRow{})
	if f.CycleID != "" {
		q = q.Where("rating_cycle_id = ?", f.CycleID)
	}
	if f.Department != "" {
		q = q.Where("rating_department = ?", f.Department)
	}
	if f.ManagerID != "" {
		q = q.Where("rating_manager_id = ?", f.ManagerID)
	}
	if len(f.IDs) > 0 {
		q = q.Where("rating_id IN ?", f.IDs)
	}
	var rows []ratingRow
	if err := q.Order("rating_employee_id ASC").Order("rating_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	out := make([]*model.Rating, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

const effectiveScoreExpr = "COALESCE(rating_final_score, rating_calculated_score)"

func (t *gormTx) TopRatings(cycleID string, n int) ([]Ranked, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	var rows []ratingRow
	err := t.db.
		Where("rating_cycle_id = ? AND "+effectiveScoreExpr+" IS NOT NULL", cycleID).
		Order(effectiveScoreExpr + " DESC").
		Order("rating_employee_id ASC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("rank cycle %s: %w", cycleID, err)
	}
	out := make([]Ranked, 0, len(rows))
	for _, row := range rows {
		score := row.CalculatedScore
		if row.FinalScore != nil {
			score = row.FinalScore
		}
		out = append(out, Ranked{RatingID: row.ID, EmployeeID: row.EmployeeID, EmployeeName: row.EmployeeName, Score: *score})
	}
	rankEntries(out)
	return out, nil
}

func (t *gormTx) Assignment(id string) (*model.EvaluationAssignment, error) {
	var row assignmentRow
	if err := t.db.Where("assignment_id = ?", id).Take(&row).Error; err != nil {
		return nil, readErr("assignment", id, err)
	}
	a, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *gormTx) UpsertAssignment(a *model.EvaluationAssignment) error {
	if err := t.writable(); err != nil {
		return err
	}
	row, err := assignmentToRow(a)
	if err != nil {
		return err
	}
	err = t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "assignment_id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert assignment %s: %w", a.ID, err)
	}
	return nil
}

func (t *gormTx) Assignments(cycleID, employeeID string) ([]model.EvaluationAssignment, error) {
	var rows []assignmentRow
	err := t.db.Where("assignment_cycle_id = ? AND assignment_employee_id = ?", cycleID, employeeID).
		Order("assignment_id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	out := make([]model.EvaluationAssignment, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (t *gormTx) CreateSession(s *model.CalibrationSession) error {
	if err := t.writable(); err != nil {
		return err
	}
	row, err := sessionToRow(s)
	if err != nil {
		return err
	}
	return createErr("session", s.ID, t.db.Create(row).Error)
}

func (t *gormTx) session(q *gorm.DB, id string) (*model.CalibrationSession, error) {
	var row sessionRow
	if err := q.Where("session_id = ?", id).Take(&row).Error; err != nil {
		return nil, readErr("session", id, err)
	}
	return row.toModel()
}

func (t *gormTx) Session(id string) (*model.CalibrationSession, error) {
	return t.session(t.db, id)
}

func (t *gormTx) LockSession(id string) (*model.CalibrationSession, error) {
	return t.session(t.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (t *gormTx) UpdateSession(s *model.CalibrationSession) error {
	if err := t.writable(); err != nil {
		return err
	}
	row, err := sessionToRow(s)
	if err != nil {
		return err
	}
	old := s.Version
	row.Version = old + 1
	if err := t.versioned("session", s.ID, "session_id", "session_version", &sessionRow{}, row, old); err != nil {
		return err
	}
	s.Version = old + 1
	return nil
}

func (t *gormTx) OpenSessions(cycleID string) ([]*model.CalibrationSession, error) {
	var rows []sessionRow
	err := t.db.Where("session_cycle_id = ? AND session_status IN ?", cycleID,
		[]string{string(model.SessionDraft), string(model.SessionInProgress)}).
		Order("session_id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	out := make([]*model.CalibrationSession, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (t *gormTx) AppendAdjustment(a *model.CalibrationAdjustment) error {
	if err := t.writable(); err != nil {
		return err
	}
	var last int
	err := t.db.Model(&adjustmentRow{}).
		Where("adjustment_session_id = ?", a.SessionID).
		Select("COALESCE(MAX(adjustment_seq), 0)").
		Scan(&last).Error
	if err != nil {
		return fmt.Errorf("next sequence for session %s: %w", a.SessionID, err)
	}
	a.Seq = last + 1
	return createErr("adjustment", a.ID, t.db.Create(adjustmentToRow(a)).Error)
}

func (t *gormTx) Adjustment(id string) (*model.CalibrationAdjustment, error) {
	var row adjustmentRow
	if err := t.db.Where("adjustment_id = ?", id).Take(&row).Error; err != nil {
		return nil, readErr("adjustment", id, err)
	}
	a := row.toModel()
	return &a, nil
}

func (t *gormTx) Adjustments(sessionID string) ([]model.CalibrationAdjustment, error) {
	var rows []adjustmentRow
	if err := t.db.Where("adjustment_session_id = ?", sessionID).Order("adjustment_seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	out := make([]model.CalibrationAdjustment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (t *gormTx) RatingAdjusted(ratingID string) (bool, error) {
	var n int64
	if err := t.db.Model(&adjustmentRow{}).Where("adjustment_rating_id = ?", ratingID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count adjustments: %w", err)
	}
	return n > 0, nil
}

func (t *gormTx) SaveArtifact(a *model.AuditArtifact) error {
	if err := t.writable(); err != nil {
		return err
	}
	row, err := artifactToRow(a)
	if err != nil {
		return err
	}
	return createErr("artifact", a.ID, t.db.Create(row).Error)
}

func (t *gormTx) Artifact(id string) (*model.AuditArtifact, error) {
	var row artifactRow
	if err := t.db.Where("artifact_id = ?", id).Take(&row).Error; err != nil {
		return nil, readErr("artifact", id, err)
	}
	return row.toModel()
}

func (t *gormTx) Artifacts(sessionID string) ([]*model.AuditArtifact, error) {
	var rows []artifactRow
	if err := t.db.Where("artifact_session_id = ?", sessionID).Order("artifact_version ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make([]*model.AuditArtifact, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
