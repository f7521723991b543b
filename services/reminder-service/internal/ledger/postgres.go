package ledger

import (
	"context"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

// Postgres keeps the ledger in reminder_dispatches so it survives restarts
// and is shared by every reminder instance.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Claim(ctx context.Context, appointmentID, label string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO reminder_dispatches (appointment_id, window_label)
		VALUES ($1, $2)
		ON CONFLICT (appointment_id, window_label) DO NOTHING
	`, appointmentID, label)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Contains(ctx context.Context, appointmentID, label string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reminder_dispatches WHERE appointment_id = $1 AND window_label = $2)
	`, appointmentID, label).Scan(&ok)
	return ok, err
}

func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM reminder_dispatches`)
	return err
}
