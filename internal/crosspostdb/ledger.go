package crosspostdb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"crosspost/internal/social"
)

// Ledger records which (guid, network) pairs have been syndicated.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Find returns the record for (guid, network), or nil if the pair was never
// syndicated.
func (l *Ledger) Find(ctx context.Context, guid string, network social.Network) (*social.SyndicatedPost, error) {
	row := l.db.QueryRowContext(ctx, `SELECT remote_id, original_uri, created_at FROM syndicated_posts WHERE original_guid = ? AND network = ?`, guid, network.String())
	var (
		remoteID  string
		uri       sql.NullString
		createdAt time.Time
	)
	if err := row.Scan(&remoteID, &uri, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("find", err)
	}
	return &social.SyndicatedPost{
		Network:      network,
		RemoteID:     remoteID,
		OriginalGUID: guid,
		OriginalURI:  uri.String,
		CreatedAt:    createdAt,
	}, nil
}

// Store inserts a record. An existing record for the same key is left
// untouched and ErrDuplicate is returned.
func (l *Ledger) Store(ctx context.Context, p social.SyndicatedPost) error {
	if strings.TrimSpace(p.OriginalGUID) == "" || strings.TrimSpace(p.Network.String()) == "" {
		return storageErr("store", errors.New("missing guid or network"))
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := l.db.ExecContext(ctx, `INSERT INTO syndicated_posts
        (original_guid, network, remote_id, original_uri, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(original_guid, network) DO NOTHING`,
		p.OriginalGUID, p.Network.String(), p.RemoteID, nullIfEmpty(p.OriginalURI), createdAt,
	)
	if err != nil {
		return storageErr("store", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("store", err)
	}
	if n == 0 {
		return storageErr("store", ErrDuplicate)
	}
	return nil
}

// List returns records newest first. An empty network lists all networks;
// limit <= 0 means no limit.
func (l *Ledger) List(ctx context.Context, network social.Network, limit int) ([]social.SyndicatedPost, error) {
	q := `SELECT original_guid, network, remote_id, original_uri, created_at FROM syndicated_posts`
	var args []any
	if network != "" {
		q += " WHERE network = ?"
		args = append(args, network.String())
	}
	q += " ORDER BY created_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()
	var out []social.SyndicatedPost
	for rows.Next() {
		var (
			p   social.SyndicatedPost
			net string
			uri sql.NullString
		)
		if err := rows.Scan(&p.OriginalGUID, &net, &p.RemoteID, &uri, &p.CreatedAt); err != nil {
			return nil, storageErr("list", err)
		}
		parsed, err := social.ParseNetwork(net)
		if err != nil {
			return nil, storageErr("list", err)
		}
		p.Network = parsed
		p.OriginalURI = uri.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}
	return out, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
