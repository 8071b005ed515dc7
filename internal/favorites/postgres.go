package favorites

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at open. The row trigger notifies on every mutation, so
// changes made by other clients and sessions reach our LISTEN loop too.
const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS favorites (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	owner_id   TEXT NOT NULL REFERENCES identities(id),
	city_name  TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL DEFAULT (extract(epoch from now()) * 1000)::bigint
);

CREATE INDEX IF NOT EXISTS idx_favorites_owner ON favorites(owner_id);

CREATE OR REPLACE FUNCTION notify_favorites_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('favorites_changed', COALESCE(NEW.owner_id, OLD.owner_id));
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS favorites_notify ON favorites;
CREATE TRIGGER favorites_notify
	AFTER INSERT OR UPDATE OR DELETE ON favorites
	FOR EACH ROW EXECUTE FUNCTION notify_favorites_change();
`

// PostgresChannel implements Channel on top of a Postgres-backed real-time
// collection: plain SQL for writes, LISTEN/NOTIFY for the live subscription.
type PostgresChannel struct {
	pool    *pgxpool.Pool
	offered string

	mu       sync.Mutex
	identity string
	feedStop context.CancelFunc
}

// NewPostgresChannel connects, verifies the connection, and ensures the
// schema. A non-empty offered identity is reused on sign-in so a device keeps
// its collection across restarts.
func NewPostgresChannel(ctx context.Context, dsn, offered string) (*PostgresChannel, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("favorites: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("favorites: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("favorites: init schema: %w", err)
	}

	return &PostgresChannel{pool: pool, offered: offered}, nil
}

func (c *PostgresChannel) SignIn(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity != "" {
		return c.identity, nil
	}

	id := c.offered
	if id == "" {
		id = uuid.NewString()
	}

	_, err := c.pool.Exec(ctx, `
		INSERT INTO identities (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		return "", fmt.Errorf("favorites: sign in: %w", err)
	}

	c.identity = id
	return id, nil
}

func (c *PostgresChannel) currentIdentity() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == "" {
		return "", ErrNotAuthenticated
	}
	return c.identity, nil
}

func (c *PostgresChannel) Add(ctx context.Context, cityName, note string) (Favorite, error) {
	owner, err := c.currentIdentity()
	if err != nil {
		return Favorite{}, err
	}

	fav := Favorite{CityName: cityName, Note: note, Owner: owner}
	err = c.pool.QueryRow(ctx, `
		INSERT INTO favorites (owner_id, city_name, note)
		VALUES ($1, $2, $3)
		RETURNING id::text, created_at
	`, owner, cityName, note).Scan(&fav.ID, &fav.CreatedAt)
	if err != nil {
		return Favorite{}, fmt.Errorf("favorites: add: %w", err)
	}

	return fav, nil
}

func (c *PostgresChannel) UpdateNote(ctx context.Context, id, note string) error {
	owner, err := c.currentIdentity()
	if err != nil {
		return err
	}

	// A malformed id cannot reference any row; treat it like an unknown id.
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}

	_, err = c.pool.Exec(ctx, `
		UPDATE favorites SET note = $1 WHERE id = $2 AND owner_id = $3
	`, note, id, owner)
	if err != nil {
		return fmt.Errorf("favorites: update note: %w", err)
	}
	return nil
}

func (c *PostgresChannel) Delete(ctx context.Context, id string) error {
	owner, err := c.currentIdentity()
	if err != nil {
		return err
	}

	if _, err := uuid.Parse(id); err != nil {
		return nil
	}

	_, err = c.pool.Exec(ctx, `
		DELETE FROM favorites WHERE id = $1 AND owner_id = $2
	`, id, owner)
	if err != nil {
		return fmt.Errorf("favorites: delete: %w", err)
	}
	return nil
}

func (c *PostgresChannel) Observe(ctx context.Context) (<-chan []Favorite, error) {
	owner, err := c.currentIdentity()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.feedStop != nil {
		c.feedStop()
	}
	feedCtx, cancel := context.WithCancel(ctx)
	c.feedStop = cancel
	c.mu.Unlock()

	// A dedicated connection holds the LISTEN for the feed's lifetime.
	conn, err := c.pool.Acquire(feedCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("favorites: observe: acquire: %w", err)
	}
	if _, err := conn.Exec(feedCtx, `LISTEN favorites_changed`); err != nil {
		conn.Release()
		cancel()
		return nil, fmt.Errorf("favorites: observe: listen: %w", err)
	}

	out := make(chan []Favorite, 1)

	go func() {
		defer close(out)
		defer conn.Release()

		// Initial full read so subscribers start from the current collection.
		if list, err := c.readAll(feedCtx, owner); err == nil {
			deliver(out, list)
		} else if feedCtx.Err() == nil {
			log.Printf("favorites: initial read failed: %v", err)
		}

		for {
			notification, err := conn.Conn().WaitForNotification(feedCtx)
			if err != nil {
				if feedCtx.Err() == nil {
					log.Printf("favorites: subscription ended: %v", err)
				}
				return
			}
			if notification.Payload != owner {
				continue
			}

			list, err := c.readAll(feedCtx, owner)
			if err != nil {
				if feedCtx.Err() == nil {
					log.Printf("favorites: re-read failed: %v", err)
				}
				continue
			}
			deliver(out, list)
		}
	}()

	return out, nil
}

func (c *PostgresChannel) Close() {
	c.mu.Lock()
	stop := c.feedStop
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.pool.Close()
}

// readAll loads the owner's full collection, oldest first.
func (c *PostgresChannel) readAll(ctx context.Context, owner string) ([]Favorite, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id::text, city_name, note, created_at, owner_id
		FROM favorites
		WHERE owner_id = $1
		ORDER BY created_at, id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("favorites: query: %w", err)
	}
	defer rows.Close()

	var list []Favorite
	for rows.Next() {
		var fav Favorite
		if err := rows.Scan(&fav.ID, &fav.CityName, &fav.Note, &fav.CreatedAt, &fav.Owner); err != nil {
			return nil, fmt.Errorf("favorites: scan: %w", err)
		}
		list = append(list, fav)
	}
	return list, rows.Err()
}

// deliver replaces any undelivered snapshot with the newer one; the feed is a
// latest-value channel, not a queue.
func deliver(out chan []Favorite, list []Favorite) {
	select {
	case out <- list:
	default:
		select {
		case <-out:
		default:
		}
		out <- list
	}
}
