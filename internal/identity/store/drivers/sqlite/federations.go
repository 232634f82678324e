package sqlite

import (
	"context"

	"github.com/campushq/identity/internal/identity/domain"
)

type federationsRepo struct {
	q querier
}

const federationColumns = `id, tenant_id, name, auth_url, token_url, client_id, client_secret, redirect_url, scopes, auth_method, email_domains, position, created_at, updated_at`

// scopes and email_domains are stored space-delimited; both are flat
// whitespace-free token lists.
func scanFederation(scan func(dest ...any) error) (domain.Federation, error) {
	var (
		f            domain.Federation
		scopes       string
		emailDomains string
	)
	err := scan(
		&f.ID,
		&f.TenantID,
		&f.Name,
		&f.AuthURL,
		&f.TokenURL,
		&f.ClientID,
		&f.ClientSecret,
		&f.RedirectURL,
		&scopes,
		&f.AuthMethod,
		&emailDomains,
		&f.Position,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return domain.Federation{}, mapNotFound(err)
	}
	f.Scopes = splitFields(scopes)
	f.EmailDomains = splitFields(emailDomains)
	return f, nil
}

func (r *federationsRepo) GetFederationByName(ctx context.Context, tenantID, name string) (domain.Federation, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+federationColumns+` FROM federations
		 WHERE tenant_id = ? AND lower(name) = lower(?)`,
		tenantID, name)
	return scanFederation(row.Scan)
}

func (r *federationsRepo) ListFederations(ctx context.Context, tenantID string) ([]domain.Federation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+federationColumns+` FROM federations
		 WHERE tenant_id = ?
		 ORDER BY position ASC`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Federation
	for rows.Next() {
		f, err := scanFederation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *federationsRepo) CreateFederation(ctx context.Context, f domain.Federation) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO federations (`+federationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.TenantID,
		f.Name,
		f.AuthURL,
		f.TokenURL,
		f.ClientID,
		f.ClientSecret,
		f.RedirectURL,
		joinFields(f.Scopes),
		f.AuthMethod,
		joinFields(f.EmailDomains),
		f.Position,
		f.CreatedAt.UTC(),
		f.UpdatedAt.UTC(),
	)
	return mapUnique(err)
}
