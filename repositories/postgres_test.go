package repositories

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/ohshane/p3bl-sub002/models"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestTeamAddMember(t *testing.T) {
	joined := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	insert := regexp.QuoteMeta(`INSERT INTO team_members`)

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "inserted",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(insert).
					WithArgs("t1", "p1", "u1", sqlmock.AnyArg(), 4).
					WillReturnRows(sqlmock.NewRows([]string{"joined_at"}).AddRow(joined))
			},
		},
		{
			name: "no spare capacity",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"joined_at"}))
			},
			wantErr: ErrTeamFull,
		},
		{
			name: "already placed",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(insert).WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "team_members_project_user_key"})
			},
			wantErr: ErrMembershipConflict,
		},
		{
			name: "team deleted",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(insert).WillReturnError(&pq.Error{Code: pqForeignKeyViolation})
			},
			wantErr: ErrTeamNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setup(mock)

			m := &models.TeamMembership{TeamID: "t1", ProjectID: "p1", UserID: "u1"}
			err := NewPostgresTeamRepository(db).AddMember(context.Background(), m, 4)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AddMember() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && !m.JoinedAt.Equal(joined) {
				t.Errorf("JoinedAt = %v, want %v", m.JoinedAt, joined)
			}
		})
	}
}

func TestProjectGetByJoinCode(t *testing.T) {
	columns := []string{"id", "title", "creator_id", "join_code", "join_code_expires_at",
		"start_date", "end_date", "team_size", "max_participants", "created_at"}
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	start := created.Add(48 * time.Hour)

	t.Run("found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM projects WHERE join_code = $1`)).
			WithArgs("ABC123").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("p1", "Robots", "c1", "ABC123", nil, start, nil, 4, int64(20), created))

		p, err := NewPostgresProjectRepository(db).GetByJoinCode(context.Background(), "ABC123")
		if err != nil {
			t.Fatalf("GetByJoinCode() error = %v", err)
		}
		if p.JoinCodeExpiresAt != nil || p.EndDate != nil {
			t.Errorf("null columns mapped to %v / %v, want nil", p.JoinCodeExpiresAt, p.EndDate)
		}
		if p.StartDate == nil || !p.StartDate.Equal(start) {
			t.Errorf("StartDate = %v, want %v", p.StartDate, start)
		}
		if p.MaxParticipants == nil || *p.MaxParticipants != 20 {
			t.Errorf("MaxParticipants = %v, want 20", p.MaxParticipants)
		}
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM projects WHERE join_code = $1`)).
			WillReturnRows(sqlmock.NewRows(columns))

		if _, err := NewPostgresProjectRepository(db).GetByJoinCode(context.Background(), "ZZZ999"); !errors.Is(err, ErrProjectNotFound) {
			t.Errorf("GetByJoinCode() error = %v, want ErrProjectNotFound", err)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM projects WHERE id = $1`)).
			WillReturnError(&pq.Error{Code: pqInvalidTextRepr})

		if _, err := NewPostgresProjectRepository(db).GetByID(context.Background(), "not-a-uuid"); !errors.Is(err, ErrProjectNotFound) {
			t.Errorf("GetByID() error = %v, want ErrProjectNotFound", err)
		}
	})
}

func TestProjectUpdateJoinCodeConflict(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE projects SET join_code`)).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "projects_join_code_key"})

	err := NewPostgresProjectRepository(db).UpdateJoinCode(context.Background(), "p1", "ABC123", nil)
	if !errors.Is(err, ErrJoinCodeConflict) {
		t.Errorf("UpdateJoinCode() error = %v, want ErrJoinCodeConflict", err)
	}
}

func TestInvitationUpdateStatus(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	update := regexp.QuoteMeta(`UPDATE invitations SET status = $1, responded_at = $2 WHERE id = $3 AND status = $4`)

	tests := []struct {
		name    string
		rows    int64
		err     error
		wantErr error
	}{
		{name: "moved", rows: 1},
		{name: "status changed underneath", rows: 0, wantErr: ErrInvitationStale},
		{name: "second accepted row", err: &pq.Error{Code: pqUniqueViolation, Constraint: "invitations_accepted_project_user_key"}, wantErr: ErrInvitationConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			exp := mock.ExpectExec(update).WithArgs(models.InvitationAccepted, now, "i1", models.InvitationPending)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.rows))
			}

			err := NewPostgresInvitationRepository(db).UpdateStatus(context.Background(), "i1", models.InvitationPending, models.InvitationAccepted, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateStatus() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJoinAttemptCountRecentFailures(t *testing.T) {
	db, mock := newMock(t)
	since := time.Date(2026, 3, 2, 8, 55, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*)`)).
		WithArgs("u1", "10.0.0.1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := NewPostgresJoinAttemptRepository(db).CountRecentFailures(context.Background(), "u1", "10.0.0.1", since)
	if err != nil {
		t.Fatalf("CountRecentFailures() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CountRecentFailures() = %d, want 3", n)
	}
}

func TestChannelInsertIfAbsent(t *testing.T) {
	tests := []struct {
		name        string
		rows        int64
		wantCreated bool
	}{
		{"new row", 1, true},
		{"already there", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (id) DO NOTHING`)).
				WithArgs("c1", "p1", "t1", "Team 1").
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			created, err := NewPostgresChannelRepository(db).InsertIfAbsent(context.Background(),
				&models.Channel{ID: "c1", ProjectID: "p1", TeamID: "t1", Name: "Team 1"})
			if err != nil {
				t.Fatalf("InsertIfAbsent() error = %v", err)
			}
			if created != tt.wantCreated {
				t.Errorf("InsertIfAbsent() = %v, want %v", created, tt.wantCreated)
			}
		})
	}
}

func TestChannelAddMemberIfAbsent(t *testing.T) {
	db, mock := newMock(t)
	insert := regexp.QuoteMeta(`INSERT INTO channel_members`)
	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"joined_at"}).AddRow(time.Now()))
	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"joined_at"}))

	repo := NewPostgresChannelRepository(db)
	for i, want := range []bool{true, false} {
		added, err := repo.AddMemberIfAbsent(context.Background(), &models.ChannelMembership{ChannelID: "c1", UserID: "u1"})
		if err != nil {
			t.Fatalf("call %d: AddMemberIfAbsent() error = %v", i, err)
		}
		if added != want {
			t.Errorf("call %d: AddMemberIfAbsent() = %v, want %v", i, added, want)
		}
	}
}
