package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/staffadmin/internal/platform/auth"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	DBConnKey   contextKey = "db_conn"

	TenantHeader = "X-Tenant-ID"
	schemaPrefix = "tenant_"
)

var (
	ErrInvalidTenant     = errors.New("invalid tenant identifier")
	ErrTenantUnavailable = errors.New("tenant database unavailable")
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,48}$`)

// ValidTenantID reports whether id can be turned into a schema name.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// SchemaName returns the PostgreSQL schema holding a tenant's tables.
func SchemaName(tenantID string) string {
	return schemaPrefix + tenantID
}

// WithTenant runs fn with a pooled connection whose search_path points at
// the tenant schema. The connection and tenant ID travel in fn's context;
// repositories pick the connection up through ConnFromContext. Errors from
// fn are returned unchanged.
func WithTenant(ctx context.Context, pool *pgxpool.Pool, tenantID string, fn func(ctx context.Context) error) error {
	if !ValidTenantID(tenantID) {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenantID)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %v", ErrTenantUnavailable, err)
	}
	defer func() {
		// A connection whose search_path cannot be reset must not be reused.
		if _, err := conn.Exec(context.Background(), "RESET search_path"); err != nil {
			conn.Conn().Close(context.Background()) //nolint:errcheck
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", quoteSchema(SchemaName(tenantID)))); err != nil {
		return fmt.Errorf("%w: set search_path: %v", ErrTenantUnavailable, err)
	}

	ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	ctx = context.WithValue(ctx, DBConnKey, conn)
	return fn(ctx)
}

// TenantMiddleware scopes each request to one tenant schema. The tenant
// comes from the token claim, then the X-Tenant-ID header (public invite
// routes carry no token), then defaultTenant.
func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := extractTenantID(c, defaultTenant)

			err := WithTenant(c.Request().Context(), pool, tenantID, func(ctx context.Context) error {
				c.SetRequest(c.Request().WithContext(ctx))
				c.Set("tenant_id", tenantID)
				return next(c)
			})
			switch {
			case errors.Is(err, ErrInvalidTenant):
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			case errors.Is(err, ErrTenantUnavailable):
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			return err
		}
	}
}

func extractTenantID(c echo.Context, defaultTenant string) string {
	if tid, ok := c.Get(auth.TenantContextKey).(string); ok && tid != "" {
		return tid
	}
	if tid := c.Request().Header.Get(TenantHeader); tid != "" {
		return tid
	}
	return defaultTenant
}

// ConnFromContext retrieves the tenant-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// ConnBound reports whether queries on ctx go through a single pinned
// connection or transaction. A pgx connection runs one query at a time, so
// callers fanning out queries must serialize them when this is true.
func ConnBound(ctx context.Context) bool {
	return ConnFromContext(ctx) != nil || TxFromContext(ctx) != nil
}

// WithOwnConn runs fn on a connection of its own, scoped to the tenant of
// ctx, so that fn can query while the request's pinned connection is busy.
// Inside a transaction, or without a tenant, fn runs on ctx unchanged.
func WithOwnConn(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tid := TenantFromContext(ctx)
	if tid == "" {
		return fn(ctx)
	}
	return WithTenant(ctx, pool, tid, fn)
}

// TenantFromContext retrieves the tenant ID from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}

// CreateTenantSchema creates the tenant schema and applies every migration
// to it. It returns the number of migrations applied.
func CreateTenantSchema(ctx context.Context, m *Migrator, tenantID string) (int, error) {
	if !ValidTenantID(tenantID) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTenant, tenantID)
	}
	n, err := m.Up(ctx, SchemaName(tenantID))
	if err != nil {
		return n, fmt.Errorf("migrate tenant %s: %w", tenantID, err)
	}
	return n, nil
}
