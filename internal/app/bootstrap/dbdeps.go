package bootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store/pgstore"
	dbredis "github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/db/redis"
)

// DBDeps holds the backends opened at startup. Pool, PG and Redis are nil
// when not configured.
type DBDeps struct {
	Store store.Store

	Pool  *pgxpool.Pool
	PG    *pgstore.Store
	Redis *dbredis.Client
}

// Close releases the connections.
func (d DBDeps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}
