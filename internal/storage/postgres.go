package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresStorage struct {
	db *pgxpool.Pool
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewPostgreStorage(ctx context.Context, DatabaseURI string) (*PostgresStorage, error) {
	db, err := pgxpool.New(ctx, DatabaseURI)
	if err != nil {
		return nil, err
	}

	storage := &PostgresStorage{db: db}

	if err := storage.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (store *PostgresStorage) Ping(ctx context.Context) error {
	return store.db.Ping(ctx)
}

func (store *PostgresStorage) Close() {
	store.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (store *PostgresStorage) CreateUser(ctx context.Context, login, passwordHash string, role model.Role) (model.User, error) {
	const insertUserQuery = `INSERT INTO users (id, login, password_hash, role) VALUES ($1, $2, $3, $4)`

	user := model.User{ID: uuid.New(), Login: login, Role: role}
	_, err := store.db.Exec(ctx, insertUserQuery, user.ID, login, passwordHash, string(role))
	if err != nil {
		if isUniqueViolation(err) {
			// 23505: уникальное ограничение нарушено
			return model.User{}, errs.ErrLoginAlreadyExists
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (s *PostgresStorage) GetUserByLogin(ctx context.Context, login string) (model.User, string, error) {
	const query = `SELECT id, login, role, fee_plan_id, password_hash FROM users WHERE lower(login) = $1`

	var user model.User
	var hash string

	err := s.db.QueryRow(ctx, query, strings.ToLower(login)).Scan(&user.ID, &user.Login, &user.Role, &user.FeePlanID, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, "", errs.ErrUserNotFound
		}
		return model.User{}, "", fmt.Errorf("get user by login: %w", err)
	}

	return user, hash, nil
}

func (s *PostgresStorage) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	const query = `SELECT id, login, role, fee_plan_id FROM users WHERE id = $1`

	var user model.User

	err := s.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Login, &user.Role, &user.FeePlanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, errs.ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user by id: %w", err)
	}

	return user, nil
}

func (s *PostgresStorage) AssignFeePlan(ctx context.Context, userID, planID uuid.UUID) error {
	const query = `UPDATE users SET fee_plan_id = $2 WHERE id = $1`

	if _, err := s.GetFeePlan(ctx, planID); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, query, userID, planID)
	if err != nil {
		return fmt.Errorf("assign fee plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

func (s *PostgresStorage) CreateFeePlan(ctx context.Context, plan model.FeePlan) error {
	const query = `
		INSERT INTO fee_plans (
			id, name,
			pix_percentual, pix_fixed, pix_release_days,
			card_percentual, card_fixed, card_release_days,
			boleto_percentual, boleto_fixed, boleto_release_days
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.Exec(ctx, query, plan.ID, plan.Name,
		plan.Pix.Percentual.String(), plan.Pix.Fixed.String(), plan.Pix.ReleaseDelayDays,
		plan.Card.Percentual.String(), plan.Card.Fixed.String(), plan.Card.ReleaseDelayDays,
		plan.Boleto.Percentual.String(), plan.Boleto.Fixed.String(), plan.Boleto.ReleaseDelayDays,
	)
	if err != nil {
		return fmt.Errorf("insert fee plan: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetFeePlan(ctx context.Context, id uuid.UUID) (model.FeePlan, error) {
	const query = `
		SELECT id, name,
			pix_percentual, pix_fixed, pix_release_days,
			card_percentual, card_fixed, card_release_days,
			boleto_percentual, boleto_fixed, boleto_release_days
		FROM fee_plans
		WHERE id = $1`

	var p model.FeePlan
	err := s.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name,
		&p.Pix.Percentual, &p.Pix.Fixed, &p.Pix.ReleaseDelayDays,
		&p.Card.Percentual, &p.Card.Fixed, &p.Card.ReleaseDelayDays,
		&p.Boleto.Percentual, &p.Boleto.Fixed, &p.Boleto.ReleaseDelayDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.FeePlan{}, errs.ErrFeePlanNotFound
		}
		return model.FeePlan{}, fmt.Errorf("get fee plan: %w", err)
	}
	return p, nil
}

func (s *PostgresStorage) CreateOffer(ctx context.Context, offer model.Offer) error {
	const query = `INSERT INTO offers (id, seller_id, title, price, active) VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, query, offer.ID, offer.SellerID, offer.Title, offer.Price.String(), offer.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return errs.ErrUserNotFound
		}
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetOffer(ctx context.Context, id uuid.UUID) (model.Offer, error) {
	const query = `SELECT id, seller_id, title, price, active FROM offers WHERE id = $1`

	var o model.Offer
	err := s.db.QueryRow(ctx, query, id).Scan(&o.ID, &o.SellerID, &o.Title, &o.Price, &o.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Offer{}, errs.ErrOfferNotFound
		}
		return model.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}
